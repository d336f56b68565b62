package handlers

import (
	"context"

	"escrow/internal/escrow"
	"escrow/internal/store"
	"escrow/internal/webhooks"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (map[string]any, error)
	HasAnyAdmin(ctx context.Context) (bool, error)
	PromoteAdmin(ctx context.Context, tx store.Execer, email string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, ownerEmail string) error
	GetByEmail(ctx context.Context, ownerEmail string) (store.Wallet, error)
}

type LedgerStore interface {
	GetByOrderID(ctx context.Context, orderID string) (store.WalletTransactionRow, error)
	ListByUser(ctx context.Context, userEmail, txType string, limit, offset int) ([]store.WalletTransactionRow, error)
	ListByEscrow(ctx context.Context, escrowID string) ([]store.WalletTransactionRow, error)
}

type EscrowStore interface {
	GetByID(ctx context.Context, escrowID string) (store.Escrow, error)
	ListByEmail(ctx context.Context, email string, limit, offset int) ([]store.Escrow, error)
	ListAll(ctx context.Context, limit, offset int) ([]store.Escrow, error)
	ListParticipants(ctx context.Context, escrowID string) ([]store.ParticipantRow, error)
}

type ClaimStore interface {
	Create(ctx context.Context, tx store.Execer, input store.ClaimCodeInput) error
	GetByCode(ctx context.Context, code string) (store.ClaimCode, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]store.ClaimCode, error)
	Deactivate(ctx context.Context, tx store.Execer, code string) error
	SoftDelete(ctx context.Context, tx store.Execer, code string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorEmail, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type EscrowService interface {
	Create(ctx context.Context, req escrow.CreateRequest) (string, error)
	Join(ctx context.Context, req escrow.JoinRequest) error
	Approve(ctx context.Context, req escrow.ApproveRequest) error
	Cancel(ctx context.Context, req escrow.CancelRequest) error
	Dispute(ctx context.Context, req escrow.DisputeRequest) error
	Resolve(ctx context.Context, req escrow.ResolveRequest) error
	Reopen(ctx context.Context, req escrow.ReopenRequest) error
	Edit(ctx context.Context, req escrow.EditRequest) error
	Delete(ctx context.Context, req escrow.DeleteRequest) error
}

type SettlementService interface {
	InitiateDeposit(ctx context.Context, userEmail string, amount int64, currencyCode string) (string, error)
	InitiateWithdrawal(ctx context.Context, userEmail string, amountUSD int64) (string, error)
	ProcessDepositWebhook(ctx context.Context, event webhooks.DepositEvent) error
	ProcessPayoutWebhook(ctx context.Context, event webhooks.PayoutEvent) error
	CancelPending(ctx context.Context, actorEmail, orderID string) error
	Annotate(ctx context.Context, actorEmail, orderID, note string) error
}

type ClaimEngine interface {
	Validate(ctx context.Context, code string) (*store.ClaimCode, error)
}
