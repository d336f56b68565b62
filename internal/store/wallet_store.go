package store

import "context"

type WalletStore struct {
	db DB
}

type Wallet struct {
	OwnerEmail    string `db:"owner_email"`
	Balance       int64  `db:"balance"`
	FrozenBalance int64  `db:"frozen_balance"`
	HasDispute    bool   `db:"has_dispute"`
	CreatedAt     any    `db:"created_at"`
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Create(ctx context.Context, tx Execer, ownerEmail string) error {
	query := `
		INSERT INTO wallets (owner_email, balance, frozen_balance, has_dispute)
		VALUES ($1, 0, 0, FALSE)
	`
	_, err := tx.ExecContext(ctx, query, ownerEmail)
	return err
}

func (s *WalletStore) GetByEmail(ctx context.Context, ownerEmail string) (Wallet, error) {
	var row Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT owner_email, balance, frozen_balance, has_dispute, created_at
		FROM wallets
		WHERE owner_email = $1
	`, ownerEmail)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, ownerEmail string) (Wallet, error) {
	var row Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT owner_email, balance, frozen_balance, has_dispute
		FROM wallets
		WHERE owner_email = $1
		FOR UPDATE
	`, ownerEmail)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) UpdateBalances(ctx context.Context, tx Execer, ownerEmail string, balance, frozenBalance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $1, frozen_balance = $2, updated_at = NOW()
		WHERE owner_email = $3
	`, balance, frozenBalance, ownerEmail)
	return err
}

func (s *WalletStore) SetDispute(ctx context.Context, tx Execer, ownerEmail string, hasDispute bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET has_dispute = $1, updated_at = NOW()
		WHERE owner_email = $2
	`, hasDispute, ownerEmail)
	return err
}
