package ledger

import (
	"context"
	"errors"
	"log"

	"escrow/internal/models"
	"escrow/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

type WalletStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, ownerEmail string) (store.Wallet, error)
	UpdateBalances(ctx context.Context, tx store.Execer, ownerEmail string, balance, frozenBalance int64) error
}

type EntryStore interface {
	Insert(ctx context.Context, tx store.Execer, input store.WalletTransactionInput) error
}

// Ledger is the single chokepoint for internal wallet transfers. Every call
// locks the wallet row, applies the balance change, and appends exactly
// one wallet_transactions row inside the caller's transaction.
type Ledger struct {
	wallets WalletStore
	entries EntryStore
}

func New(wallets WalletStore, entries EntryStore) *Ledger {
	return &Ledger{wallets: wallets, entries: entries}
}

// Entry describes the audit row emitted alongside a wallet mutation.
type Entry struct {
	Reason       string
	Counterparty *string
	EscrowID     *string
}

// Freeze moves amount from the spendable balance into the frozen
// bucket. Fails without mutation if the spendable balance is short.
func (l *Ledger) Freeze(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry Entry) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, ownerEmail)
	if err != nil {
		return err
	}
	if wallet.Balance < amount {
		return ErrInsufficientFunds
	}
	if err := l.wallets.UpdateBalances(ctx, tx, ownerEmail, wallet.Balance-amount, wallet.FrozenBalance+amount); err != nil {
		return err
	}
	return l.record(ctx, tx, ownerEmail, amount, "freeze", entry)
}

// Release moves amount from the frozen bucket back into the spendable
// balance. A frozen balance shorter than amount is a recoverable
// inconsistency: the wallet is clamped at zero and the event logged.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry Entry) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, ownerEmail)
	if err != nil {
		return err
	}
	frozen := wallet.FrozenBalance - amount
	if frozen < 0 {
		log.Printf("ledger: frozen balance underflow for %s (frozen=%d release=%d), clamping", ownerEmail, wallet.FrozenBalance, amount)
		frozen = 0
	}
	if err := l.wallets.UpdateBalances(ctx, tx, ownerEmail, wallet.Balance+amount, frozen); err != nil {
		return err
	}
	return l.record(ctx, tx, ownerEmail, amount, "release", entry)
}

// Unfreeze reduces the frozen bucket without re-crediting the spendable
// balance; the funds left custody elsewhere in the same settlement.
// Clamped at zero the same way as Release.
func (l *Ledger) Unfreeze(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry Entry) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, ownerEmail)
	if err != nil {
		return err
	}
	frozen := wallet.FrozenBalance - amount
	if frozen < 0 {
		log.Printf("ledger: frozen balance underflow for %s (frozen=%d unfreeze=%d), clamping", ownerEmail, wallet.FrozenBalance, amount)
		frozen = 0
	}
	if err := l.wallets.UpdateBalances(ctx, tx, ownerEmail, wallet.Balance, frozen); err != nil {
		return err
	}
	return l.record(ctx, tx, ownerEmail, amount, "unfreeze", entry)
}

// Credit adds amount to the spendable balance.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry Entry) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, ownerEmail)
	if err != nil {
		return err
	}
	if err := l.wallets.UpdateBalances(ctx, tx, ownerEmail, wallet.Balance+amount, wallet.FrozenBalance); err != nil {
		return err
	}
	return l.record(ctx, tx, ownerEmail, amount, "credit", entry)
}

// Debit removes amount from the spendable balance. Fails without
// mutation if the balance would go negative.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry Entry) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, ownerEmail)
	if err != nil {
		return err
	}
	if wallet.Balance < amount {
		return ErrInsufficientFunds
	}
	if err := l.wallets.UpdateBalances(ctx, tx, ownerEmail, wallet.Balance-amount, wallet.FrozenBalance); err != nil {
		return err
	}
	return l.record(ctx, tx, ownerEmail, amount, "debit", entry)
}

func (l *Ledger) record(ctx context.Context, tx store.Execer, ownerEmail string, amount int64, kind string, entry Entry) error {
	return l.entries.Insert(ctx, tx, store.WalletTransactionInput{
		ID:                uuid.NewString(),
		OrderID:           uuid.NewString(),
		UserEmail:         ownerEmail,
		Type:              models.LedgerTransfer,
		Amount:            amount,
		Currency:          "USD",
		Status:            models.LedgerCompleted,
		Description:       entry.Reason,
		CounterpartyEmail: entry.Counterparty,
		TransferKind:      &kind,
		EscrowID:          entry.EscrowID,
	})
}
