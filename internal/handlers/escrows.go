package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"escrow/internal/escrow"
	"escrow/internal/middleware"
	"escrow/internal/money"
	"escrow/internal/store"
	"escrow/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
)

type createEscrowRequest struct {
	BuyerEmail   string  `json:"buyer_email"`
	SellerEmail  string  `json:"seller_email"`
	BrokerEmail  *string `json:"broker_email"`
	Amount       string  `json:"amount"`
	Fee          string  `json:"fee"`
	Currency     string  `json:"currency"`
	PayerRole    string  `json:"payer_role"`
	ClaimCode    string  `json:"claim_code"`
	MaxCheckTime *int    `json:"max_check_time"`
}

func (h *Handler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateEmail(req.BuyerEmail); err != nil {
		respondError(w, http.StatusBadRequest, "invalid buyer email")
		return
	}
	if err := validator.ValidateEmail(req.SellerEmail); err != nil {
		respondError(w, http.StatusBadRequest, "invalid seller email")
		return
	}
	if req.BrokerEmail != nil {
		if err := validator.ValidateEmail(*req.BrokerEmail); err != nil {
			respondError(w, http.StatusBadRequest, "invalid broker email")
			return
		}
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	feeMinor := int64(0)
	if req.Fee != "" {
		feeMinor, err = money.ParseMinor(req.Fee)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_fee")
			return
		}
	}
	escrowID, err := h.escrowSvc.Create(r.Context(), escrow.CreateRequest{
		Actor:        principal,
		BuyerEmail:   req.BuyerEmail,
		SellerEmail:  req.SellerEmail,
		BrokerEmail:  req.BrokerEmail,
		Amount:       amountMinor,
		Fee:          feeMinor,
		Currency:     req.Currency,
		PayerRole:    req.PayerRole,
		ClaimCode:    req.ClaimCode,
		MaxCheckTime: req.MaxCheckTime,
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_create_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"escrow_id": escrowID})
}

func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	escrowID := chi.URLParam(r, "id")
	row, err := h.escrows.GetByID(r.Context(), escrowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "escrow not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load escrow")
		return
	}
	if !principal.IsAdmin && !isEscrowParty(row, principal.Email) {
		respondError(w, http.StatusNotFound, "escrow not found")
		return
	}
	participants, err := h.escrows.ListParticipants(r.Context(), escrowID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load participants")
		return
	}
	payload := escrowJSON(row)
	joined := make([]map[string]any, 0, len(participants))
	for _, p := range participants {
		joined = append(joined, map[string]any{
			"email":     p.Email,
			"role":      p.Role,
			"joined_at": p.JoinedAt,
		})
	}
	payload["participants"] = joined
	respondJSON(w, http.StatusOK, payload)
}

func (h *Handler) ListEscrows(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	rows, err := h.escrows.ListByEmail(r.Context(), principal.Email, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load escrows")
		return
	}
	respondJSON(w, http.StatusOK, escrowListJSON(rows))
}

func (h *Handler) ListEscrowLedger(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	escrowID := chi.URLParam(r, "id")
	row, err := h.escrows.GetByID(r.Context(), escrowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "escrow not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load escrow")
		return
	}
	if !principal.IsAdmin && !isEscrowParty(row, principal.Email) {
		respondError(w, http.StatusNotFound, "escrow not found")
		return
	}
	entries, err := h.ledger.ListByEscrow(r.Context(), escrowID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load ledger")
		return
	}
	respondJSON(w, http.StatusOK, walletTxListJSON(entries))
}

type joinEscrowRequest struct {
	Role string `json:"role"`
}

func (h *Handler) JoinEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req joinEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.escrowSvc.Join(r.Context(), escrow.JoinRequest{
		Actor:    principal,
		EscrowID: chi.URLParam(r, "id"),
		Role:     req.Role,
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_join_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (h *Handler) ApproveEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.escrowSvc.Approve(r.Context(), escrow.ApproveRequest{
		Actor:    principal,
		EscrowID: chi.URLParam(r, "id"),
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_approve_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *Handler) CancelEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.escrowSvc.Cancel(r.Context(), escrow.CancelRequest{
		Actor:    principal,
		EscrowID: chi.URLParam(r, "id"),
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_cancel_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type disputeEscrowRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) DisputeEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req disputeEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.escrowSvc.Dispute(r.Context(), escrow.DisputeRequest{
		Actor:    principal,
		EscrowID: chi.URLParam(r, "id"),
		Reason:   req.Reason,
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_dispute_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "disputed"})
}

type resolveEscrowRequest struct {
	Note string `json:"note"`
}

func (h *Handler) ResolveEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req resolveEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.escrowSvc.Resolve(r.Context(), escrow.ResolveRequest{
		Actor:    principal,
		EscrowID: chi.URLParam(r, "id"),
		Note:     req.Note,
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_resolve_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (h *Handler) ReopenEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.escrowSvc.Reopen(r.Context(), escrow.ReopenRequest{
		Actor:    principal,
		EscrowID: chi.URLParam(r, "id"),
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_reopen_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "new"})
}

type editEscrowRequest struct {
	Amount    string `json:"amount"`
	Fee       string `json:"fee"`
	Currency  string `json:"currency"`
	PayerRole string `json:"payer_role"`
	ClaimCode string `json:"claim_code"`
}

func (h *Handler) EditEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req editEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	feeMinor := int64(0)
	if req.Fee != "" {
		feeMinor, err = money.ParseMinor(req.Fee)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_fee")
			return
		}
	}
	err = h.escrowSvc.Edit(r.Context(), escrow.EditRequest{
		Actor:     principal,
		EscrowID:  chi.URLParam(r, "id"),
		Amount:    amountMinor,
		Fee:       feeMinor,
		Currency:  req.Currency,
		PayerRole: req.PayerRole,
		ClaimCode: req.ClaimCode,
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_edit_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) DeleteEscrow(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	err := h.escrowSvc.Delete(r.Context(), escrow.DeleteRequest{
		Actor:    principal,
		EscrowID: chi.URLParam(r, "id"),
	})
	if err != nil {
		respondEscrowError(w, err, "escrow_delete_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func respondEscrowError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, escrow.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, escrow.ErrNotFound):
		respondError(w, http.StatusNotFound, "escrow not found")
	case errors.Is(err, escrow.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "operation_not_allowed")
	case errors.Is(err, escrow.ErrInvalidStateTransition):
		respondError(w, http.StatusConflict, "invalid_state_transition")
	case errors.Is(err, escrow.ErrAlreadyJoined):
		respondError(w, http.StatusConflict, "already_joined")
	case errors.Is(err, escrow.ErrInsufficientBuyerBalance):
		respondError(w, http.StatusBadRequest, "insufficient_buyer_balance")
	case errors.Is(err, escrow.ErrInsufficientSellerBalance):
		respondError(w, http.StatusBadRequest, "insufficient_seller_balance")
	case errors.Is(err, escrow.ErrConcurrencyConflict):
		respondError(w, http.StatusConflict, "concurrent_update")
	default:
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "duplicate_request")
			return
		}
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func isEscrowParty(row store.Escrow, email string) bool {
	if email == row.BuyerEmail || email == row.SellerEmail || email == row.CreatedBy {
		return true
	}
	return row.BrokerEmail != nil && email == *row.BrokerEmail
}

func escrowJSON(row store.Escrow) map[string]any {
	return map[string]any{
		"id":               row.ID,
		"buyer_email":      row.BuyerEmail,
		"seller_email":     row.SellerEmail,
		"broker_email":     row.BrokerEmail,
		"amount":           money.FormatMinor(row.Amount),
		"fee":              money.FormatMinor(row.Fee),
		"currency":         row.Currency,
		"amount_usd":       money.FormatMinor(row.AmountUSD),
		"fee_usd":          money.FormatMinor(row.FeeUSD),
		"payer_role":       row.PayerRole,
		"buyer_fee_usd":    money.FormatMinor(row.BuyerFeeUSD),
		"seller_fee_usd":   money.FormatMinor(row.SellerFeeUSD),
		"discount_percent": row.DiscountPercent,
		"claim_code":       row.ClaimCode,
		"is_claimed":       row.IsClaimed,
		"is_paid":          row.IsPaid,
		"has_dispute":      row.HasDispute,
		"dispute_reason":   row.DisputeReason,
		"disputed_by":      row.DisputedBy,
		"status":           row.Status,
		"max_check_time":   row.MaxCheckTime,
		"created_by":       row.CreatedBy,
		"created_at":       row.CreatedAt,
	}
}

func escrowListJSON(rows []store.Escrow) []map[string]any {
	payload := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, escrowJSON(row))
	}
	return payload
}
