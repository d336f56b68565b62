package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"escrow/internal/middleware"
	"escrow/internal/store"
	"escrow/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type createClaimCodeRequest struct {
	Code       string    `json:"code"`
	OwnerEmail string    `json:"owner_email"`
	Percentage int       `json:"percentage"`
	ExpiresAt  time.Time `json:"expires_at"`
	MaxUsage   *int      `json:"max_usage"`
}

// CreateClaimCode mints a discount code. Only admins may mint: the
// code owner collects a share of every fee it is redeemed against, so
// an open endpoint would let users zero out their own fees.
func (h *Handler) CreateClaimCode(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !principal.IsAdmin {
		respondError(w, http.StatusForbidden, "admin only")
		return
	}
	var req createClaimCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.OwnerEmail == "" {
		req.OwnerEmail = principal.Email
	}
	if err := validator.ValidateEmail(req.OwnerEmail); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateClaimCode(req.Code); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidatePercentage(req.Percentage); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.ExpiresAt.After(time.Now()) {
		respondError(w, http.StatusBadRequest, "expires_at must be in the future")
		return
	}
	if req.MaxUsage != nil && *req.MaxUsage <= 0 {
		respondError(w, http.StatusBadRequest, "max_usage must be positive")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		input := store.ClaimCodeInput{
			Code:       req.Code,
			OwnerEmail: req.OwnerEmail,
			Percentage: req.Percentage,
			ExpiresAt:  req.ExpiresAt,
			MaxUsage:   req.MaxUsage,
		}
		if err := h.claims.Create(r.Context(), tx, input); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, principal.Email, "claim_code_create", "claim_code", req.Code, "{}")
	})
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "code already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "claim code creation failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"code": req.Code})
}

func (h *Handler) ListClaimCodes(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rows, err := h.claims.ListByOwner(r.Context(), principal.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load claim codes")
		return
	}
	payload := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, claimCodeJSON(row))
	}
	respondJSON(w, http.StatusOK, payload)
}

// ValidateClaimCode previews a code's eligibility without consuming a
// use; escrow creation forms call it to show the discount up front.
func (h *Handler) ValidateClaimCode(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.PrincipalFromContext(r.Context()); !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	code, err := h.claimEngine.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to validate code")
		return
	}
	if code == nil {
		respondJSON(w, http.StatusOK, map[string]any{"eligible": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"eligible":   true,
		"percentage": code.Percentage,
		"expires_at": code.ExpiresAt,
	})
}

func (h *Handler) DeactivateClaimCode(w http.ResponseWriter, r *http.Request) {
	h.mutateOwnedClaimCode(w, r, "claim_code_deactivate", h.claims.Deactivate)
}

func (h *Handler) DeleteClaimCode(w http.ResponseWriter, r *http.Request) {
	h.mutateOwnedClaimCode(w, r, "claim_code_delete", h.claims.SoftDelete)
}

func (h *Handler) mutateOwnedClaimCode(w http.ResponseWriter, r *http.Request, action string, mutate func(ctx context.Context, tx store.Execer, code string) error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	code := chi.URLParam(r, "code")
	row, err := h.claims.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "code not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load code")
		return
	}
	if !principal.IsAdmin && row.OwnerEmail != principal.Email {
		respondError(w, http.StatusForbidden, "not your code")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := mutate(r.Context(), tx, code); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, principal.Email, action, "claim_code", code, "{}")
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "claim code update failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func claimCodeJSON(row store.ClaimCode) map[string]any {
	return map[string]any{
		"code":        row.Code,
		"owner_email": row.OwnerEmail,
		"percentage":  row.Percentage,
		"expires_at":  row.ExpiresAt,
		"is_active":   row.IsActive,
		"usage_count": row.UsageCount,
		"max_usage":   row.MaxUsage,
		"created_at":  row.CreatedAt,
	}
}
