// Package settlement moves money across the platform boundary:
// provider-backed deposits into wallets and payouts out of them. It is
// the only writer of deposit and withdrawal ledger rows.
package settlement

import (
	"context"
	"database/sql"
	"errors"

	"escrow/internal/currency"
	"escrow/internal/db"
	"escrow/internal/models"
	"escrow/internal/money"
	"escrow/internal/store"
	"escrow/internal/webhooks"
	"escrow/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("transaction not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWrongType         = errors.New("wrong transaction type")
)

type WalletStore interface {
	GetByEmail(ctx context.Context, ownerEmail string) (store.Wallet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, ownerEmail string) (store.Wallet, error)
	UpdateBalances(ctx context.Context, tx store.Execer, ownerEmail string, balance, frozenBalance int64) error
}

type EntryStore interface {
	Insert(ctx context.Context, tx store.Execer, input store.WalletTransactionInput) error
	GetByOrderID(ctx context.Context, orderID string) (store.WalletTransactionRow, error)
	GetByOrderIDForUpdate(ctx context.Context, tx store.Getter, orderID string) (store.WalletTransactionRow, error)
	MarkCredited(ctx context.Context, tx store.Execer, orderID, status string) (int64, error)
	MarkRefunded(ctx context.Context, tx store.Execer, orderID, status string) (int64, error)
	UpdateStatus(ctx context.Context, tx store.Execer, orderID, status string) error
	Annotate(ctx context.Context, tx store.Execer, orderID, note string) error
	DeleteNonTerminal(ctx context.Context, tx store.Execer, orderID string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorEmail, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(email string, update websocket.BalanceUpdate)
}

// Service owns deposit and withdrawal settlement. Provider webhooks
// replay; every state change that moves money is guarded by a
// check-and-set on the ledger row so each credit and each refund
// happens at most once.
type Service struct {
	txRunner  db.TxRunner
	wallets   WalletStore
	entries   EntryStore
	converter currency.Converter
	audit     AuditStore
	hub       BalanceHub
}

func NewService(txRunner db.TxRunner, wallets WalletStore, entries EntryStore, converter currency.Converter, audit AuditStore, hub BalanceHub) *Service {
	return &Service{
		txRunner:  txRunner,
		wallets:   wallets,
		entries:   entries,
		converter: converter,
		audit:     audit,
		hub:       hub,
	}
}

// InitiateDeposit records a pending inbound payment. The wallet is
// credited only when the provider confirms through the webhook.
func (s *Service) InitiateDeposit(ctx context.Context, userEmail string, amount int64, currencyCode string) (string, error) {
	if amount <= 0 {
		return "", ErrValidation
	}
	if _, err := s.converter.ConvertToUSD(amount, currencyCode); err != nil {
		return "", ErrValidation
	}
	orderID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		input := store.WalletTransactionInput{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			UserEmail:   userEmail,
			Type:        models.LedgerDeposit,
			Amount:      amount,
			Currency:    currencyCode,
			Status:      models.LedgerPending,
			Description: "Wallet deposit",
		}
		if err := s.entries.Insert(ctx, tx, input); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userEmail, "deposit_initiate", "wallet_transaction", orderID, "{}")
	})
	if err != nil {
		return "", err
	}
	return orderID, nil
}

// InitiateWithdrawal debits the wallet up front and hands the order to
// the provider. A failed payout is refunded by the webhook handler.
func (s *Service) InitiateWithdrawal(ctx context.Context, userEmail string, amountUSD int64) (string, error) {
	if amountUSD <= 0 {
		return "", ErrValidation
	}
	orderID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.wallets.GetForUpdate(ctx, tx, userEmail)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if wallet.Balance < amountUSD {
			return ErrInsufficientFunds
		}
		if err := s.wallets.UpdateBalances(ctx, tx, userEmail, wallet.Balance-amountUSD, wallet.FrozenBalance); err != nil {
			return err
		}
		input := store.WalletTransactionInput{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			UserEmail:   userEmail,
			Type:        models.LedgerWithdrawal,
			Amount:      amountUSD,
			Currency:    "USD",
			Status:      models.LedgerProcessing,
			Description: "Wallet withdrawal",
		}
		if err := s.entries.Insert(ctx, tx, input); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, userEmail, "withdrawal_initiate", "wallet_transaction", orderID, "{}")
	})
	if err != nil {
		return "", err
	}
	s.broadcastWallet(ctx, userEmail)
	return orderID, nil
}

// ProcessDepositWebhook applies a provider callback for an inbound
// payment. Credits exactly once no matter how often the provider
// retries; failure updates are ignored once the credit has happened.
func (s *Service) ProcessDepositWebhook(ctx context.Context, event webhooks.DepositEvent) error {
	var credited bool
	var userEmail string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		credited = false
		row, err := s.entries.GetByOrderIDForUpdate(ctx, tx, event.OrderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if row.Type != models.LedgerDeposit {
			return ErrWrongType
		}
		userEmail = row.UserEmail

		switch webhooks.NormalizeStatus(event.Status) {
		case webhooks.StatusSuccess:
			rows, err := s.entries.MarkCredited(ctx, tx, event.OrderID, models.LedgerCompleted)
			if err != nil {
				return err
			}
			if rows == 0 {
				return nil
			}
			amountUSD, err := s.converter.ConvertToUSD(row.Amount, row.Currency)
			if err != nil {
				return ErrValidation
			}
			wallet, err := s.wallets.GetForUpdate(ctx, tx, row.UserEmail)
			if err != nil {
				return err
			}
			if err := s.wallets.UpdateBalances(ctx, tx, row.UserEmail, wallet.Balance+amountUSD, wallet.FrozenBalance); err != nil {
				return err
			}
			credited = true
			return s.audit.Log(ctx, tx, row.UserEmail, "deposit_settle", "wallet_transaction", event.OrderID, "{}")
		case webhooks.StatusFailed:
			if row.WalletCredited {
				return nil
			}
			return s.entries.UpdateStatus(ctx, tx, event.OrderID, models.LedgerFailed)
		default:
			if row.WalletCredited {
				return nil
			}
			return s.entries.UpdateStatus(ctx, tx, event.OrderID, models.LedgerProcessing)
		}
	})
	if err != nil {
		return err
	}
	if credited {
		s.broadcastWallet(ctx, userEmail)
	}
	return nil
}

// ProcessPayoutWebhook applies a provider callback for an outbound
// transfer. A failed payout refunds the debited amount exactly once.
func (s *Service) ProcessPayoutWebhook(ctx context.Context, event webhooks.PayoutEvent) error {
	var refunded bool
	var userEmail string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		refunded = false
		row, err := s.entries.GetByOrderIDForUpdate(ctx, tx, event.OrderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if row.Type != models.LedgerWithdrawal {
			return ErrWrongType
		}
		userEmail = row.UserEmail

		switch webhooks.NormalizeStatus(event.Status) {
		case webhooks.StatusSuccess:
			if row.Refunded {
				return nil
			}
			return s.entries.UpdateStatus(ctx, tx, event.OrderID, models.LedgerCompleted)
		case webhooks.StatusFailed:
			rows, err := s.entries.MarkRefunded(ctx, tx, event.OrderID, models.LedgerFailed)
			if err != nil {
				return err
			}
			if rows == 0 {
				return nil
			}
			wallet, err := s.wallets.GetForUpdate(ctx, tx, row.UserEmail)
			if err != nil {
				return err
			}
			if err := s.wallets.UpdateBalances(ctx, tx, row.UserEmail, wallet.Balance+row.Amount, wallet.FrozenBalance); err != nil {
				return err
			}
			refunded = true
			return s.audit.Log(ctx, tx, row.UserEmail, "payout_refund", "wallet_transaction", event.OrderID, "{}")
		default:
			if row.Refunded {
				return nil
			}
			return s.entries.UpdateStatus(ctx, tx, event.OrderID, models.LedgerProcessing)
		}
	})
	if err != nil {
		return err
	}
	if refunded {
		s.broadcastWallet(ctx, userEmail)
	}
	return nil
}

// CancelPending removes a deposit order the provider never settled.
// Rows that reached a terminal status stay.
func (s *Service) CancelPending(ctx context.Context, actorEmail, orderID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		row, err := s.entries.GetByOrderIDForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if row.UserEmail != actorEmail {
			return ErrNotFound
		}
		if row.Type != models.LedgerDeposit || row.WalletCredited {
			return ErrValidation
		}
		rows, err := s.entries.DeleteNonTerminal(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrValidation
		}
		return s.audit.Log(ctx, tx, actorEmail, "deposit_cancel", "wallet_transaction", orderID, "{}")
	})
}

// Annotate lets an operator attach a note to a ledger row.
func (s *Service) Annotate(ctx context.Context, actorEmail, orderID, note string) error {
	if note == "" {
		return ErrValidation
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.entries.GetByOrderIDForUpdate(ctx, tx, orderID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := s.entries.Annotate(ctx, tx, orderID, note); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actorEmail, "ledger_annotate", "wallet_transaction", orderID, "{}")
	})
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
