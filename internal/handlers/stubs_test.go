package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"escrow/internal/auth"
	"escrow/internal/config"
	"escrow/internal/escrow"
	"escrow/internal/middleware"
	"escrow/internal/store"
	"escrow/internal/webhooks"
	"escrow/internal/websocket"

	"github.com/jmoiron/sqlx"
)

const testJWTSecret = "test-secret"

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

type stubUserStore struct {
	createFn       func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn   func(ctx context.Context, email string) (map[string]any, error)
	hasAnyAdminFn  func(ctx context.Context) (bool, error)
	promoteAdminFn func(ctx context.Context, tx store.Execer, email string) error
	listFn         func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (map[string]any, error) {
	if s.getByEmailFn == nil {
		return map[string]any{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx)
}

func (s stubUserStore) PromoteAdmin(ctx context.Context, tx store.Execer, email string) error {
	if s.promoteAdminFn == nil {
		return nil
	}
	return s.promoteAdminFn(ctx, tx, email)
}

func (s stubUserStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubWalletStore struct {
	createFn     func(ctx context.Context, tx store.Execer, ownerEmail string) error
	getByEmailFn func(ctx context.Context, ownerEmail string) (store.Wallet, error)
}

func (s stubWalletStore) Create(ctx context.Context, tx store.Execer, ownerEmail string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, ownerEmail)
}

func (s stubWalletStore) GetByEmail(ctx context.Context, ownerEmail string) (store.Wallet, error) {
	if s.getByEmailFn == nil {
		return store.Wallet{OwnerEmail: ownerEmail}, nil
	}
	return s.getByEmailFn(ctx, ownerEmail)
}

type stubLedgerStore struct {
	getByOrderIDFn func(ctx context.Context, orderID string) (store.WalletTransactionRow, error)
	listByUserFn   func(ctx context.Context, userEmail, txType string, limit, offset int) ([]store.WalletTransactionRow, error)
	listByEscrowFn func(ctx context.Context, escrowID string) ([]store.WalletTransactionRow, error)
}

func (s stubLedgerStore) GetByOrderID(ctx context.Context, orderID string) (store.WalletTransactionRow, error) {
	if s.getByOrderIDFn == nil {
		return store.WalletTransactionRow{}, nil
	}
	return s.getByOrderIDFn(ctx, orderID)
}

func (s stubLedgerStore) ListByUser(ctx context.Context, userEmail, txType string, limit, offset int) ([]store.WalletTransactionRow, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userEmail, txType, limit, offset)
}

func (s stubLedgerStore) ListByEscrow(ctx context.Context, escrowID string) ([]store.WalletTransactionRow, error) {
	if s.listByEscrowFn == nil {
		return nil, nil
	}
	return s.listByEscrowFn(ctx, escrowID)
}

type stubEscrowStore struct {
	getByIDFn          func(ctx context.Context, escrowID string) (store.Escrow, error)
	listByEmailFn      func(ctx context.Context, email string, limit, offset int) ([]store.Escrow, error)
	listAllFn          func(ctx context.Context, limit, offset int) ([]store.Escrow, error)
	listParticipantsFn func(ctx context.Context, escrowID string) ([]store.ParticipantRow, error)
}

func (s stubEscrowStore) GetByID(ctx context.Context, escrowID string) (store.Escrow, error) {
	if s.getByIDFn == nil {
		return store.Escrow{}, nil
	}
	return s.getByIDFn(ctx, escrowID)
}

func (s stubEscrowStore) ListByEmail(ctx context.Context, email string, limit, offset int) ([]store.Escrow, error) {
	if s.listByEmailFn == nil {
		return nil, nil
	}
	return s.listByEmailFn(ctx, email, limit, offset)
}

func (s stubEscrowStore) ListAll(ctx context.Context, limit, offset int) ([]store.Escrow, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

func (s stubEscrowStore) ListParticipants(ctx context.Context, escrowID string) ([]store.ParticipantRow, error) {
	if s.listParticipantsFn == nil {
		return nil, nil
	}
	return s.listParticipantsFn(ctx, escrowID)
}

type stubClaimStore struct {
	createFn      func(ctx context.Context, tx store.Execer, input store.ClaimCodeInput) error
	getByCodeFn   func(ctx context.Context, code string) (store.ClaimCode, error)
	listByOwnerFn func(ctx context.Context, ownerEmail string) ([]store.ClaimCode, error)
	deactivateFn  func(ctx context.Context, tx store.Execer, code string) error
	softDeleteFn  func(ctx context.Context, tx store.Execer, code string) error
}

func (s stubClaimStore) Create(ctx context.Context, tx store.Execer, input store.ClaimCodeInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubClaimStore) GetByCode(ctx context.Context, code string) (store.ClaimCode, error) {
	if s.getByCodeFn == nil {
		return store.ClaimCode{}, nil
	}
	return s.getByCodeFn(ctx, code)
}

func (s stubClaimStore) ListByOwner(ctx context.Context, ownerEmail string) ([]store.ClaimCode, error) {
	if s.listByOwnerFn == nil {
		return nil, nil
	}
	return s.listByOwnerFn(ctx, ownerEmail)
}

func (s stubClaimStore) Deactivate(ctx context.Context, tx store.Execer, code string) error {
	if s.deactivateFn == nil {
		return nil
	}
	return s.deactivateFn(ctx, tx, code)
}

func (s stubClaimStore) SoftDelete(ctx context.Context, tx store.Execer, code string) error {
	if s.softDeleteFn == nil {
		return nil
	}
	return s.softDeleteFn(ctx, tx, code)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorEmail, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorEmail, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorEmail, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubEscrowService struct {
	createFn  func(ctx context.Context, req escrow.CreateRequest) (string, error)
	joinFn    func(ctx context.Context, req escrow.JoinRequest) error
	approveFn func(ctx context.Context, req escrow.ApproveRequest) error
	cancelFn  func(ctx context.Context, req escrow.CancelRequest) error
	disputeFn func(ctx context.Context, req escrow.DisputeRequest) error
	resolveFn func(ctx context.Context, req escrow.ResolveRequest) error
	reopenFn  func(ctx context.Context, req escrow.ReopenRequest) error
	editFn    func(ctx context.Context, req escrow.EditRequest) error
	deleteFn  func(ctx context.Context, req escrow.DeleteRequest) error
}

func (s stubEscrowService) Create(ctx context.Context, req escrow.CreateRequest) (string, error) {
	if s.createFn == nil {
		return "esc-1", nil
	}
	return s.createFn(ctx, req)
}

func (s stubEscrowService) Join(ctx context.Context, req escrow.JoinRequest) error {
	if s.joinFn == nil {
		return nil
	}
	return s.joinFn(ctx, req)
}

func (s stubEscrowService) Approve(ctx context.Context, req escrow.ApproveRequest) error {
	if s.approveFn == nil {
		return nil
	}
	return s.approveFn(ctx, req)
}

func (s stubEscrowService) Cancel(ctx context.Context, req escrow.CancelRequest) error {
	if s.cancelFn == nil {
		return nil
	}
	return s.cancelFn(ctx, req)
}

func (s stubEscrowService) Dispute(ctx context.Context, req escrow.DisputeRequest) error {
	if s.disputeFn == nil {
		return nil
	}
	return s.disputeFn(ctx, req)
}

func (s stubEscrowService) Resolve(ctx context.Context, req escrow.ResolveRequest) error {
	if s.resolveFn == nil {
		return nil
	}
	return s.resolveFn(ctx, req)
}

func (s stubEscrowService) Reopen(ctx context.Context, req escrow.ReopenRequest) error {
	if s.reopenFn == nil {
		return nil
	}
	return s.reopenFn(ctx, req)
}

func (s stubEscrowService) Edit(ctx context.Context, req escrow.EditRequest) error {
	if s.editFn == nil {
		return nil
	}
	return s.editFn(ctx, req)
}

func (s stubEscrowService) Delete(ctx context.Context, req escrow.DeleteRequest) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, req)
}

type stubSettlementService struct {
	initiateDepositFn    func(ctx context.Context, userEmail string, amount int64, currencyCode string) (string, error)
	initiateWithdrawalFn func(ctx context.Context, userEmail string, amountUSD int64) (string, error)
	processDepositFn     func(ctx context.Context, event webhooks.DepositEvent) error
	processPayoutFn      func(ctx context.Context, event webhooks.PayoutEvent) error
	cancelPendingFn      func(ctx context.Context, actorEmail, orderID string) error
	annotateFn           func(ctx context.Context, actorEmail, orderID, note string) error
}

func (s stubSettlementService) InitiateDeposit(ctx context.Context, userEmail string, amount int64, currencyCode string) (string, error) {
	if s.initiateDepositFn == nil {
		return "ord-1", nil
	}
	return s.initiateDepositFn(ctx, userEmail, amount, currencyCode)
}

func (s stubSettlementService) InitiateWithdrawal(ctx context.Context, userEmail string, amountUSD int64) (string, error) {
	if s.initiateWithdrawalFn == nil {
		return "ord-1", nil
	}
	return s.initiateWithdrawalFn(ctx, userEmail, amountUSD)
}

func (s stubSettlementService) ProcessDepositWebhook(ctx context.Context, event webhooks.DepositEvent) error {
	if s.processDepositFn == nil {
		return nil
	}
	return s.processDepositFn(ctx, event)
}

func (s stubSettlementService) ProcessPayoutWebhook(ctx context.Context, event webhooks.PayoutEvent) error {
	if s.processPayoutFn == nil {
		return nil
	}
	return s.processPayoutFn(ctx, event)
}

func (s stubSettlementService) CancelPending(ctx context.Context, actorEmail, orderID string) error {
	if s.cancelPendingFn == nil {
		return nil
	}
	return s.cancelPendingFn(ctx, actorEmail, orderID)
}

func (s stubSettlementService) Annotate(ctx context.Context, actorEmail, orderID, note string) error {
	if s.annotateFn == nil {
		return nil
	}
	return s.annotateFn(ctx, actorEmail, orderID, note)
}

type stubClaimEngine struct {
	validateFn func(ctx context.Context, code string) (*store.ClaimCode, error)
}

func (s stubClaimEngine) Validate(ctx context.Context, code string) (*store.ClaimCode, error) {
	if s.validateFn == nil {
		return nil, nil
	}
	return s.validateFn(ctx, code)
}

type handlerDeps struct {
	users       UserStore
	wallets     WalletStore
	ledger      LedgerStore
	escrows     EscrowStore
	claims      ClaimStore
	audit       AuditStore
	escrowSvc   EscrowService
	settlement  SettlementService
	claimEngine ClaimEngine
	secrets     config.Config
}

func newTestHandler(deps handlerDeps) *Handler {
	cfg := deps.secrets
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testJWTSecret
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	if deps.users == nil {
		deps.users = stubUserStore{}
	}
	if deps.wallets == nil {
		deps.wallets = stubWalletStore{}
	}
	if deps.ledger == nil {
		deps.ledger = stubLedgerStore{}
	}
	if deps.escrows == nil {
		deps.escrows = stubEscrowStore{}
	}
	if deps.claims == nil {
		deps.claims = stubClaimStore{}
	}
	if deps.audit == nil {
		deps.audit = stubAuditStore{}
	}
	if deps.escrowSvc == nil {
		deps.escrowSvc = stubEscrowService{}
	}
	if deps.settlement == nil {
		deps.settlement = stubSettlementService{}
	}
	if deps.claimEngine == nil {
		deps.claimEngine = stubClaimEngine{}
	}
	return New(fakeTxRunner{}, cfg, deps.users, deps.wallets, deps.ledger, deps.escrows, deps.claims, deps.audit, deps.escrowSvc, deps.settlement, deps.claimEngine, websocket.NewHub())
}

// serveAuthed runs the handler behind the auth middleware with a real
// bearer token for the given identity.
func serveAuthed(t *testing.T, handlerFn http.HandlerFunc, req *http.Request, email string, isAdmin bool) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken(testJWTSecret, email, isAdmin, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	middleware.Auth(testJWTSecret)(handlerFn).ServeHTTP(rr, req)
	return rr
}
