package handlers

import (
	"errors"
	"io"
	"net/http"

	"escrow/internal/settlement"
	"escrow/internal/webhooks"
)

const maxWebhookBody = 64 * 1024

// Webhook endpoints respond 200 on replays so the provider stops
// retrying; the settlement layer guarantees the money moved only once.

func (h *Handler) DepositWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	if !webhooks.VerifySignature(h.cfg.DepositWebhookSecret, body, r.Header.Get("X-Webhook-Signature")) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	event, err := webhooks.ParseDepositEvent(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.settlement.ProcessDepositWebhook(r.Context(), event); err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown order")
			return
		}
		if errors.Is(err, settlement.ErrWrongType) || errors.Is(err, settlement.ErrValidation) {
			respondError(w, http.StatusBadRequest, "invalid webhook")
			return
		}
		respondError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) PayoutWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	if !webhooks.VerifySignature(h.cfg.PayoutWebhookSecret, body, r.Header.Get("X-Webhook-Signature")) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	event, err := webhooks.ParsePayoutEvent(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.settlement.ProcessPayoutWebhook(r.Context(), event); err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown order")
			return
		}
		if errors.Is(err, settlement.ErrWrongType) || errors.Is(err, settlement.ErrValidation) {
			respondError(w, http.StatusBadRequest, "invalid webhook")
			return
		}
		respondError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
