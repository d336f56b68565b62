// Package webhooks parses and authenticates payment-provider
// callbacks before they reach the settlement engine.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrBadSignature = errors.New("invalid webhook signature")
	ErrBadPayload   = errors.New("invalid webhook payload")
)

// Normalized provider statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// DepositEvent is a provider callback for an inbound payment.
type DepositEvent struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PayoutEvent is a provider callback for an outbound transfer.
type PayoutEvent struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

func ParseDepositEvent(body []byte) (DepositEvent, error) {
	var event DepositEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return DepositEvent{}, ErrBadPayload
	}
	if event.OrderID == "" || event.Status == "" {
		return DepositEvent{}, ErrBadPayload
	}
	return event, nil
}

func ParsePayoutEvent(body []byte) (PayoutEvent, error) {
	var event PayoutEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return PayoutEvent{}, ErrBadPayload
	}
	if event.OrderID == "" || event.Status == "" {
		return PayoutEvent{}, ErrBadPayload
	}
	return event, nil
}

// NormalizeStatus maps the provider's status vocabulary onto the three
// states the settlement engine acts on. Unknown statuses stay pending.
func NormalizeStatus(providerStatus string) string {
	switch strings.ToLower(providerStatus) {
	case "success", "successful", "completed", "paid":
		return StatusSuccess
	case "failed", "cancelled", "reversed", "declined":
		return StatusFailed
	default:
		return StatusPending
	}
}

// VerifySignature checks the provider's HMAC over the raw request body.
// Accepts hex (with or without the "sha256=" prefix) and base64 SHA-256
// digests, plus the base64 SHA-1 form older provider accounts still
// send. All comparisons are constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	signature = strings.TrimSpace(strings.TrimPrefix(signature, "sha256="))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	if decoded, err := hex.DecodeString(signature); err == nil && hmac.Equal(decoded, sum) {
		return true
	}
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		if hmac.Equal(decoded, sum) {
			return true
		}
		legacy := hmac.New(sha1.New, []byte(secret))
		legacy.Write(body)
		if hmac.Equal(decoded, legacy.Sum(nil)) {
			return true
		}
	}
	return false
}
