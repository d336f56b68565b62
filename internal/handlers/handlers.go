package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"escrow/internal/config"
	"escrow/internal/db"
	"escrow/internal/money"
	"escrow/internal/websocket"
)

type Handler struct {
	txRunner    db.TxRunner
	cfg         config.Config
	users       UserStore
	wallets     WalletStore
	ledger      LedgerStore
	escrows     EscrowStore
	claims      ClaimStore
	audit       AuditStore
	escrowSvc   EscrowService
	settlement  SettlementService
	claimEngine ClaimEngine
	hub         *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, wallets WalletStore, ledger LedgerStore, escrows EscrowStore, claims ClaimStore, audit AuditStore, escrowSvc EscrowService, settlement SettlementService, claimEngine ClaimEngine, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:    txRunner,
		cfg:         cfg,
		users:       users,
		wallets:     wallets,
		ledger:      ledger,
		escrows:     escrows,
		claims:      claims,
		audit:       audit,
		escrowSvc:   escrowSvc,
		settlement:  settlement,
		claimEngine: claimEngine,
		hub:         hub,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func valueToString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func valueToBool(value any) bool {
	b, _ := value.(bool)
	return b
}

func valueToMoney(value any) string {
	return money.FormatMinor(money.ValueToInt64(value))
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
