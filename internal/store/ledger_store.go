package store

import "context"

// LedgerStore persists wallet_transactions, the append-only audit
// trail behind every wallet mutation. Rows never change after insert
// except status progression and admin annotation.
type LedgerStore struct {
	db DB
}

type WalletTransactionRow struct {
	ID                string  `db:"id"`
	OrderID           string  `db:"order_id"`
	UserEmail         string  `db:"user_email"`
	Type              string  `db:"type"`
	Amount            int64   `db:"amount"`
	Currency          string  `db:"currency"`
	Status            string  `db:"status"`
	Description       string  `db:"description"`
	CounterpartyEmail *string `db:"counterparty_email"`
	TransferKind      *string `db:"transfer_kind"`
	EscrowID          *string `db:"escrow_id"`
	WalletCredited    bool    `db:"wallet_credited"`
	Refunded          bool    `db:"refunded"`
	AdminNote         *string `db:"admin_note"`
	CreatedAt         any     `db:"created_at"`
}

type WalletTransactionInput struct {
	ID                string
	OrderID           string
	UserEmail         string
	Type              string
	Amount            int64
	Currency          string
	Status            string
	Description       string
	CounterpartyEmail *string
	TransferKind      *string
	EscrowID          *string
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Insert(ctx context.Context, tx Execer, input WalletTransactionInput) error {
	query := `
		INSERT INTO wallet_transactions (
			id, order_id, user_email, type, amount, currency, status,
			description, counterparty_email, transfer_kind, escrow_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.OrderID, input.UserEmail, input.Type, input.Amount,
		input.Currency, input.Status, input.Description,
		input.CounterpartyEmail, input.TransferKind, input.EscrowID,
	)
	return err
}

const walletTxColumns = `
	id, order_id, user_email, type, amount, currency, status, description,
	counterparty_email, transfer_kind, escrow_id, wallet_credited, refunded,
	admin_note, created_at
`

func (s *LedgerStore) GetByOrderID(ctx context.Context, orderID string) (WalletTransactionRow, error) {
	var row WalletTransactionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+walletTxColumns+`
		FROM wallet_transactions
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return WalletTransactionRow{}, err
	}
	return row, nil
}

func (s *LedgerStore) GetByOrderIDForUpdate(ctx context.Context, tx Getter, orderID string) (WalletTransactionRow, error) {
	var row WalletTransactionRow
	err := tx.GetContext(ctx, &row, `
		SELECT `+walletTxColumns+`
		FROM wallet_transactions
		WHERE order_id = $1
		FOR UPDATE
	`, orderID)
	if err != nil {
		return WalletTransactionRow{}, err
	}
	return row, nil
}

// MarkCredited flips the idempotency guard for deposit settlement.
// Zero affected rows means a replayed webhook already credited.
func (s *LedgerStore) MarkCredited(ctx context.Context, tx Execer, orderID, status string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_transactions
		SET wallet_credited = TRUE, status = $1
		WHERE order_id = $2 AND wallet_credited = FALSE
	`, status, orderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkRefunded flips the idempotency guard for payout-failure refunds.
func (s *LedgerStore) MarkRefunded(ctx context.Context, tx Execer, orderID, status string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_transactions
		SET refunded = TRUE, status = $1
		WHERE order_id = $2 AND refunded = FALSE
	`, status, orderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *LedgerStore) UpdateStatus(ctx context.Context, tx Execer, orderID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallet_transactions SET status = $1 WHERE order_id = $2
	`, status, orderID)
	return err
}

func (s *LedgerStore) Annotate(ctx context.Context, tx Execer, orderID, note string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallet_transactions SET admin_note = $1 WHERE order_id = $2
	`, note, orderID)
	return err
}

// DeleteNonTerminal removes a row only while it is still pending or
// processing. Settled history is immutable.
func (s *LedgerStore) DeleteNonTerminal(ctx context.Context, tx Execer, orderID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		DELETE FROM wallet_transactions
		WHERE order_id = $1 AND status IN ('pending', 'processing')
	`, orderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *LedgerStore) ListByUser(ctx context.Context, userEmail, txType string, limit, offset int) ([]WalletTransactionRow, error) {
	var rows []WalletTransactionRow
	query := `
		SELECT ` + walletTxColumns + `
		FROM wallet_transactions
		WHERE user_email = $1
	`
	args := []any{userEmail}
	param := 2
	if txType != "" {
		query += " AND type = $2"
		args = append(args, txType)
		param = 3
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) ListByEscrow(ctx context.Context, escrowID string) ([]WalletTransactionRow, error) {
	var rows []WalletTransactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+walletTxColumns+`
		FROM wallet_transactions
		WHERE escrow_id = $1
		ORDER BY created_at
	`, escrowID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
