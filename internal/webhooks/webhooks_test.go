package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

const testSecret = "whsec_test"

func hexSig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func base64Sig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func legacySig(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"order_id":"ord-1","status":"success"}`)

	cases := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{"hex sha256", testSecret, hexSig(testSecret, body), true},
		{"prefixed hex", testSecret, "sha256=" + hexSig(testSecret, body), true},
		{"base64 sha256", testSecret, base64Sig(testSecret, body), true},
		{"legacy base64 sha1", testSecret, legacySig(testSecret, body), true},
		{"wrong secret", "other", hexSig(testSecret, body), false},
		{"tampered signature", testSecret, hexSig(testSecret, []byte("other body")), false},
		{"garbage", testSecret, "not-a-signature", false},
		{"empty signature", testSecret, "", false},
		{"empty secret", "", hexSig(testSecret, body), false},
	}
	for _, tc := range cases {
		if got := VerifySignature(tc.secret, body, tc.signature); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"success":    StatusSuccess,
		"SUCCESSFUL": StatusSuccess,
		"completed":  StatusSuccess,
		"paid":       StatusSuccess,
		"failed":     StatusFailed,
		"Cancelled":  StatusFailed,
		"reversed":   StatusFailed,
		"declined":   StatusFailed,
		"pending":    StatusPending,
		"in_review":  StatusPending,
		"":           StatusPending,
	}
	for input, want := range cases {
		if got := NormalizeStatus(input); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseDepositEvent(t *testing.T) {
	event, err := ParseDepositEvent([]byte(`{"order_id":"ord-1","status":"success","amount":5000,"currency":"USD"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.OrderID != "ord-1" || event.Amount != 5000 || event.Currency != "USD" {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := ParseDepositEvent([]byte(`not json`)); err != ErrBadPayload {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
	if _, err := ParseDepositEvent([]byte(`{"status":"success"}`)); err != ErrBadPayload {
		t.Fatalf("expected ErrBadPayload for missing order id, got %v", err)
	}
}

func TestParsePayoutEvent(t *testing.T) {
	event, err := ParsePayoutEvent([]byte(`{"order_id":"ord-2","status":"failed","reason":"account closed"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Reason != "account closed" {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := ParsePayoutEvent([]byte(`{"order_id":"ord-2"}`)); err != ErrBadPayload {
		t.Fatalf("expected ErrBadPayload for missing status, got %v", err)
	}
}
