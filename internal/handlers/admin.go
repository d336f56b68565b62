package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"escrow/internal/auth"
	"escrow/internal/middleware"
	"escrow/internal/validator"
	"escrow/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) AdminListEscrows(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	rows, err := h.escrows.ListAll(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load escrows")
		return
	}
	respondJSON(w, http.StatusOK, escrowListJSON(rows))
}

type promoteRequest struct {
	Email string `json:"email"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.users.PromoteAdmin(r.Context(), tx, req.Email); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, principal.Email, "admin_promote", "user", req.Email, "{}")
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "promotion failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "promoted"})
}

type annotateRequest struct {
	Note string `json:"note"`
}

func (h *Handler) AnnotateLedger(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req annotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	orderID := chi.URLParam(r, "orderID")
	if err := h.settlement.Annotate(r.Context(), principal.Email, orderID, req.Note); err != nil {
		respondSettlementError(w, err, "annotation failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "annotated"})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	logs, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	principal, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, principal.Email)
}
