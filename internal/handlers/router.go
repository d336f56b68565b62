package handlers

import (
	"net/http"

	"escrow/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/wallet", h.GetWallet)
		r.Get("/wallet/transactions", h.ListWalletTransactions)
		r.Post("/wallet/deposits", h.InitiateDeposit)
		r.Delete("/wallet/deposits/{orderID}", h.CancelDeposit)
		r.Post("/wallet/withdrawals", h.InitiateWithdrawal)

		r.Post("/escrows", h.CreateEscrow)
		r.Get("/escrows", h.ListEscrows)
		r.Get("/escrows/{id}", h.GetEscrow)
		r.Get("/escrows/{id}/ledger", h.ListEscrowLedger)
		r.Post("/escrows/{id}/join", h.JoinEscrow)
		r.Post("/escrows/{id}/approve", h.ApproveEscrow)
		r.Post("/escrows/{id}/cancel", h.CancelEscrow)
		r.Post("/escrows/{id}/dispute", h.DisputeEscrow)
		r.Post("/escrows/{id}/resolve", h.ResolveEscrow)
		r.Post("/escrows/{id}/reopen", h.ReopenEscrow)
		r.Put("/escrows/{id}", h.EditEscrow)
		r.Delete("/escrows/{id}", h.DeleteEscrow)

		r.Post("/claims", h.CreateClaimCode)
		r.Get("/claims", h.ListClaimCodes)
		r.Get("/claims/{code}", h.ValidateClaimCode)
		r.Post("/claims/{code}/deactivate", h.DeactivateClaimCode)
		r.Delete("/claims/{code}", h.DeleteClaimCode)
	})

	router.Post("/webhooks/deposit", h.DepositWebhook)
	router.Post("/webhooks/payout", h.PayoutWebhook)
	router.Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAdmin())
		r.Get("/users", h.AdminListUsers)
		r.Get("/escrows", h.AdminListEscrows)
		r.Post("/promote", h.PromoteAdmin)
		r.Post("/ledger/{orderID}/annotate", h.AnnotateLedger)
		r.Get("/audit", h.ListAuditLogs)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
