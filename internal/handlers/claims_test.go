package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"escrow/internal/store"

	"github.com/lib/pq"
)

func TestCreateClaimCodeRequiresAdmin(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		claims: stubClaimStore{
			createFn: func(context.Context, store.Execer, store.ClaimCodeInput) error {
				t.Fatalf("non-admin request must not create a code")
				return nil
			},
		},
	})

	expires := time.Now().Add(24 * time.Hour).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{"code":"SELFMINT","percentage":100,"expires_at":%q}`, expires))
	req := httptest.NewRequest(http.MethodPost, "/claim-codes", bytes.NewReader(body))
	rr := serveAuthed(t, handler.CreateClaimCode, req, "mallory@example.com", false)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}
}

func TestCreateClaimCodeDefaultsOwnerToCaller(t *testing.T) {
	var gotInput store.ClaimCodeInput
	handler := newTestHandler(handlerDeps{
		claims: stubClaimStore{
			createFn: func(_ context.Context, _ store.Execer, input store.ClaimCodeInput) error {
				gotInput = input
				return nil
			},
		},
	})

	expires := time.Now().Add(24 * time.Hour).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{"code":"SAVE30","percentage":30,"expires_at":%q}`, expires))
	req := httptest.NewRequest(http.MethodPost, "/claim-codes", bytes.NewReader(body))
	rr := serveAuthed(t, handler.CreateClaimCode, req, "root@example.com", true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotInput.Code != "SAVE30" || gotInput.OwnerEmail != "root@example.com" || gotInput.Percentage != 30 {
		t.Fatalf("unexpected input: %+v", gotInput)
	}
}

func TestCreateClaimCodeForNamedOwner(t *testing.T) {
	var gotInput store.ClaimCodeInput
	handler := newTestHandler(handlerDeps{
		claims: stubClaimStore{
			createFn: func(_ context.Context, _ store.Execer, input store.ClaimCodeInput) error {
				gotInput = input
				return nil
			},
		},
	})

	expires := time.Now().Add(24 * time.Hour).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{"code":"SAVE30","owner_email":"carol@example.com","percentage":30,"expires_at":%q}`, expires))
	req := httptest.NewRequest(http.MethodPost, "/claim-codes", bytes.NewReader(body))
	rr := serveAuthed(t, handler.CreateClaimCode, req, "root@example.com", true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotInput.OwnerEmail != "carol@example.com" {
		t.Fatalf("owner not taken from request: %+v", gotInput)
	}
}

func TestCreateClaimCodeValidation(t *testing.T) {
	handler := newTestHandler(handlerDeps{})
	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	cases := []string{
		fmt.Sprintf(`{"code":"ab","percentage":30,"expires_at":%q}`, future),
		fmt.Sprintf(`{"code":"SAVE30","percentage":0,"expires_at":%q}`, future),
		fmt.Sprintf(`{"code":"SAVE30","percentage":101,"expires_at":%q}`, future),
		fmt.Sprintf(`{"code":"SAVE30","percentage":30,"expires_at":%q}`, past),
		fmt.Sprintf(`{"code":"SAVE30","percentage":30,"expires_at":%q,"max_usage":0}`, future),
		fmt.Sprintf(`{"code":"SAVE30","owner_email":"nope","percentage":30,"expires_at":%q}`, future),
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/claim-codes", bytes.NewReader([]byte(body)))
		rr := serveAuthed(t, handler.CreateClaimCode, req, "root@example.com", true)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestCreateClaimCodeDuplicate(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		claims: stubClaimStore{
			createFn: func(context.Context, store.Execer, store.ClaimCodeInput) error {
				return &pq.Error{Code: "23505"}
			},
		},
	})

	expires := time.Now().Add(time.Hour).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{"code":"SAVE30","percentage":30,"expires_at":%q}`, expires))
	req := httptest.NewRequest(http.MethodPost, "/claim-codes", bytes.NewReader(body))
	rr := serveAuthed(t, handler.CreateClaimCode, req, "root@example.com", true)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestValidateClaimCodeReportsEligibility(t *testing.T) {
	eligible := &store.ClaimCode{Code: "SAVE30", Percentage: 30, ExpiresAt: time.Now().Add(time.Hour)}
	handler := newTestHandler(handlerDeps{
		claimEngine: stubClaimEngine{
			validateFn: func(context.Context, string) (*store.ClaimCode, error) { return eligible, nil },
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/claim-codes/SAVE30/validate", nil)
	rr := serveAuthed(t, handler.ValidateClaimCode, req, "buyer@example.com", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	_ = json.NewDecoder(rr.Body).Decode(&payload)
	if payload["eligible"] != true || payload["percentage"] != float64(30) {
		t.Fatalf("unexpected payload: %v", payload)
	}

	handler = newTestHandler(handlerDeps{
		claimEngine: stubClaimEngine{
			validateFn: func(context.Context, string) (*store.ClaimCode, error) { return nil, nil },
		},
	})
	req = httptest.NewRequest(http.MethodGet, "/claim-codes/EXPIRED/validate", nil)
	rr = serveAuthed(t, handler.ValidateClaimCode, req, "buyer@example.com", false)
	_ = json.NewDecoder(rr.Body).Decode(&payload)
	if payload["eligible"] != false {
		t.Fatalf("ineligible code reported as eligible: %v", payload)
	}
}

func TestDeactivateClaimCodeOwnerGuard(t *testing.T) {
	deps := handlerDeps{
		claims: stubClaimStore{
			getByCodeFn: func(context.Context, string) (store.ClaimCode, error) {
				return store.ClaimCode{Code: "SAVE30", OwnerEmail: "carol@example.com"}, nil
			},
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/claim-codes/SAVE30/deactivate", nil)
	rr := serveAuthed(t, newTestHandler(deps).DeactivateClaimCode, req, "mallory@example.com", false)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/claim-codes/SAVE30/deactivate", nil)
	rr = serveAuthed(t, newTestHandler(deps).DeactivateClaimCode, req, "carol@example.com", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rr.Code)
	}

	// Admins may manage any code.
	req = httptest.NewRequest(http.MethodPost, "/claim-codes/SAVE30/deactivate", nil)
	rr = serveAuthed(t, newTestHandler(deps).DeactivateClaimCode, req, "root@example.com", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}
}

func TestDeleteClaimCodeUnknown(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		claims: stubClaimStore{
			getByCodeFn: func(context.Context, string) (store.ClaimCode, error) {
				return store.ClaimCode{}, sql.ErrNoRows
			},
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/claim-codes/GHOST", nil)
	rr := serveAuthed(t, handler.DeleteClaimCode, req, "carol@example.com", false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
