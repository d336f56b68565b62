package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrow/internal/claims"
	"escrow/internal/config"
	"escrow/internal/currency"
	"escrow/internal/db"
	"escrow/internal/escrow"
	"escrow/internal/handlers"
	"escrow/internal/ledger"
	"escrow/internal/settlement"
	"escrow/internal/store"
	"escrow/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	entries := store.NewLedgerStore(database)
	escrows := store.NewEscrowStore(database)
	claimCodes := store.NewClaimStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	funds := ledger.New(wallets, entries)
	converter := currency.NewFixedRateConverter()
	claimEngine := claims.NewEngine(claimCodes, funds, cfg.PlatformEmail)
	escrowSvc := escrow.NewService(txRunner, escrows, wallets, users, funds, claimEngine, converter, audit, hub)
	settlementSvc := settlement.NewService(txRunner, wallets, entries, converter, audit, hub)

	handler := handlers.New(txRunner, cfg, users, wallets, entries, escrows, claimCodes, audit, escrowSvc, settlementSvc, claimEngine, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("escrow API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
