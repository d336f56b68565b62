package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"escrow/internal/middleware"
	"escrow/internal/money"
	"escrow/internal/settlement"
	"escrow/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallets.GetByEmail(r.Context(), principal.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"owner_email":    wallet.OwnerEmail,
		"balance":        money.FormatMinor(wallet.Balance),
		"frozen_balance": money.FormatMinor(wallet.FrozenBalance),
		"has_dispute":    wallet.HasDispute,
	})
}

func (h *Handler) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	txType := query.Get("type")
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	rows, err := h.ledger.ListByUser(r.Context(), principal.Email, txType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, walletTxListJSON(rows))
}

type depositRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (h *Handler) InitiateDeposit(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	orderID, err := h.settlement.InitiateDeposit(r.Context(), principal.Email, amountMinor, req.Currency)
	if err != nil {
		respondSettlementError(w, err, "deposit_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func (h *Handler) CancelDeposit(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID := chi.URLParam(r, "orderID")
	if err := h.settlement.CancelPending(r.Context(), principal.Email, orderID); err != nil {
		respondSettlementError(w, err, "cancel_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type withdrawalRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) InitiateWithdrawal(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	orderID, err := h.settlement.InitiateWithdrawal(r.Context(), principal.Email, amountMinor)
	if err != nil {
		respondSettlementError(w, err, "withdrawal_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func respondSettlementError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, settlement.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, settlement.ErrNotFound):
		respondError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, settlement.ErrInsufficientFunds):
		respondError(w, http.StatusBadRequest, "insufficient_funds")
	case errors.Is(err, settlement.ErrWrongType):
		respondError(w, http.StatusBadRequest, "wrong_transaction_type")
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func walletTxJSON(row store.WalletTransactionRow) map[string]any {
	return map[string]any{
		"id":                 row.ID,
		"order_id":           row.OrderID,
		"user_email":         row.UserEmail,
		"type":               row.Type,
		"amount":             money.FormatMinor(row.Amount),
		"currency":           row.Currency,
		"status":             row.Status,
		"description":        row.Description,
		"counterparty_email": row.CounterpartyEmail,
		"transfer_kind":      row.TransferKind,
		"escrow_id":          row.EscrowID,
		"wallet_credited":    row.WalletCredited,
		"refunded":           row.Refunded,
		"admin_note":         row.AdminNote,
		"created_at":         row.CreatedAt,
	}
}

func walletTxListJSON(rows []store.WalletTransactionRow) []map[string]any {
	payload := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, walletTxJSON(row))
	}
	return payload
}
