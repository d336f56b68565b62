package escrow

import (
	"context"
	"errors"

	"escrow/internal/currency"
	"escrow/internal/db"
	"escrow/internal/ledger"
	"escrow/internal/money"
	"escrow/internal/store"
	"escrow/internal/websocket"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation                = errors.New("validation failed")
	ErrNotFound                  = errors.New("not found")
	ErrUnauthorized              = errors.New("not authorized for this operation")
	ErrInvalidStateTransition    = errors.New("invalid state transition")
	ErrAlreadyJoined             = errors.New("already joined")
	ErrInsufficientBuyerBalance  = errors.New("insufficient buyer balance")
	ErrInsufficientSellerBalance = errors.New("insufficient seller balance")
	ErrConcurrencyConflict       = errors.New("concurrent update conflict")
)

type EscrowStore interface {
	Create(ctx context.Context, tx store.Execer, input store.EscrowInput) error
	GetByID(ctx context.Context, escrowID string) (store.Escrow, error)
	GetForUpdate(ctx context.Context, tx store.Getter, escrowID string) (store.Escrow, error)
	UpdateStatus(ctx context.Context, tx store.Execer, escrowID, fromStatus, toStatus string) (int64, error)
	SetPaid(ctx context.Context, tx store.Execer, escrowID string, isPaid bool) error
	SetClaimed(ctx context.Context, tx store.Execer, escrowID string) (int64, error)
	SetDispute(ctx context.Context, tx store.Execer, escrowID, reason, disputedBy string) error
	ClearDispute(ctx context.Context, tx store.Execer, escrowID string) error
	ResetForReopen(ctx context.Context, tx store.Execer, escrowID string) error
	UpdateTerms(ctx context.Context, tx store.Execer, escrowID string, input store.EscrowInput) error
	Delete(ctx context.Context, tx store.Execer, escrowID string) error
	AddParticipant(ctx context.Context, tx store.Execer, escrowID, email, role string) error
	HasParticipant(ctx context.Context, tx store.Getter, escrowID, email, role string) (bool, error)
	HasRoleJoined(ctx context.Context, tx store.Getter, escrowID, role string) (bool, error)
	ClearParticipants(ctx context.Context, tx store.Execer, escrowID string) error
}

type WalletStore interface {
	GetByEmail(ctx context.Context, ownerEmail string) (store.Wallet, error)
	SetDispute(ctx context.Context, tx store.Execer, ownerEmail string, hasDispute bool) error
}

type UserStore interface {
	Exists(ctx context.Context, email string) (bool, error)
}

// Funds is the ledger-primitive surface the state machine moves money
// through. Every call appends its own audit row.
type Funds interface {
	Freeze(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry ledger.Entry) error
	Release(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry ledger.Entry) error
	Unfreeze(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry ledger.Entry) error
	Credit(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry ledger.Entry) error
	Debit(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry ledger.Entry) error
}

type ClaimEngine interface {
	Validate(ctx context.Context, code string) (*store.ClaimCode, error)
	RedeemReward(ctx context.Context, tx store.Tx, escrowID, code string, collectedFeeUSD int64) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorEmail, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(email string, update websocket.BalanceUpdate)
}

// Service owns the escrow transaction lifecycle. Each transition runs
// in one transactional unit covering the escrow row, every affected
// wallet, and the ledger rows the transition generates.
type Service struct {
	txRunner  db.TxRunner
	escrows   EscrowStore
	wallets   WalletStore
	users     UserStore
	funds     Funds
	claims    ClaimEngine
	converter currency.Converter
	audit     AuditStore
	hub       BalanceHub
}

func NewService(txRunner db.TxRunner, escrows EscrowStore, wallets WalletStore, users UserStore, funds Funds, claims ClaimEngine, converter currency.Converter, audit AuditStore, hub BalanceHub) *Service {
	return &Service{
		txRunner:  txRunner,
		escrows:   escrows,
		wallets:   wallets,
		users:     users,
		funds:     funds,
		claims:    claims,
		converter: converter,
		audit:     audit,
		hub:       hub,
	}
}

// splitFee divides the discounted fee between buyer and seller
// according to the payer-role policy.
func splitFee(feeUSD int64, payerRole string) (int64, int64, error) {
	switch payerRole {
	case "buyer":
		return feeUSD, 0, nil
	case "seller":
		return 0, feeUSD, nil
	case "split":
		half := decimal.NewFromInt(feeUSD).Div(decimal.NewFromInt(2)).RoundBank(0).IntPart()
		return half, feeUSD - half, nil
	default:
		return 0, 0, ErrValidation
	}
}

func validPayerRole(role string) bool {
	return role == "buyer" || role == "seller" || role == "split"
}

func (s *Service) broadcastWallet(ctx context.Context, email string) {
	wallet, err := s.wallets.GetByEmail(ctx, email)
	if err != nil {
		return
	}
	s.hub.BroadcastBalance(email, websocket.BalanceUpdate{
		Email:         email,
		Balance:       money.FormatMinor(wallet.Balance),
		FrozenBalance: money.FormatMinor(wallet.FrozenBalance),
	})
}

// allPartiesJoined reports whether every named party, broker included,
// has joined the escrow.
func (s *Service) allPartiesJoined(ctx context.Context, tx store.Getter, e store.Escrow) (bool, error) {
	roles := []string{"buyer", "seller"}
	if e.BrokerEmail != nil {
		roles = append(roles, "broker")
	}
	for _, role := range roles {
		joined, err := s.escrows.HasRoleJoined(ctx, tx, e.ID, role)
		if err != nil {
			return false, err
		}
		if !joined {
			return false, nil
		}
	}
	return true, nil
}

func isParty(e store.Escrow, email string) bool {
	if email == e.BuyerEmail || email == e.SellerEmail {
		return true
	}
	return e.BrokerEmail != nil && email == *e.BrokerEmail
}

func roleEmail(e store.Escrow, role string) (string, bool) {
	switch role {
	case "buyer":
		return e.BuyerEmail, true
	case "seller":
		return e.SellerEmail, true
	case "broker":
		if e.BrokerEmail == nil {
			return "", false
		}
		return *e.BrokerEmail, true
	default:
		return "", false
	}
}

func claimCodeOf(e store.Escrow) string {
	if e.ClaimCode == nil {
		return ""
	}
	return *e.ClaimCode
}
