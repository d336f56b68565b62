package store

import (
	"context"
	"time"
)

type EscrowStore struct {
	db DB
}

type Escrow struct {
	ID              string  `db:"id"`
	BuyerEmail      string  `db:"buyer_email"`
	SellerEmail     string  `db:"seller_email"`
	BrokerEmail     *string `db:"broker_email"`
	Amount          int64   `db:"amount"`
	Fee             int64   `db:"fee"`
	Currency        string  `db:"currency"`
	AmountUSD       int64   `db:"amount_usd"`
	FeeUSD          int64   `db:"fee_usd"`
	PayerRole       string  `db:"payer_role"`
	BuyerFeeUSD     int64   `db:"buyer_fee_usd"`
	SellerFeeUSD    int64   `db:"seller_fee_usd"`
	DiscountPercent int     `db:"discount_percent"`
	ClaimCode       *string `db:"claim_code"`
	IsClaimed       bool    `db:"is_claimed"`
	IsPaid          bool    `db:"is_paid"`
	HasDispute      bool    `db:"has_dispute"`
	DisputeReason   *string `db:"dispute_reason"`
	DisputedBy      *string `db:"disputed_by"`
	Status          string  `db:"status"`
	MaxCheckTime    *int    `db:"max_check_time"`
	CreatedBy       string  `db:"created_by"`
	CreatedAt       any     `db:"created_at"`
}

type EscrowInput struct {
	ID              string
	BuyerEmail      string
	SellerEmail     string
	BrokerEmail     *string
	Amount          int64
	Fee             int64
	Currency        string
	AmountUSD       int64
	FeeUSD          int64
	PayerRole       string
	BuyerFeeUSD     int64
	SellerFeeUSD    int64
	DiscountPercent int
	ClaimCode       *string
	IsPaid          bool
	MaxCheckTime    *int
	CreatedBy       string
}

type ParticipantRow struct {
	Email    string    `db:"email"`
	Role     string    `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}

func NewEscrowStore(db DB) *EscrowStore {
	return &EscrowStore{db: db}
}

func (s *EscrowStore) Create(ctx context.Context, tx Execer, input EscrowInput) error {
	query := `
		INSERT INTO escrow_transactions (
			id, buyer_email, seller_email, broker_email,
			amount, fee, currency, amount_usd, fee_usd,
			payer_role, buyer_fee_usd, seller_fee_usd,
			discount_percent, claim_code, is_claimed, is_paid,
			has_dispute, status, max_check_time, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, $15, FALSE, 'new', $16, $17)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.BuyerEmail, input.SellerEmail, input.BrokerEmail,
		input.Amount, input.Fee, input.Currency, input.AmountUSD, input.FeeUSD,
		input.PayerRole, input.BuyerFeeUSD, input.SellerFeeUSD,
		input.DiscountPercent, input.ClaimCode, input.IsPaid,
		input.MaxCheckTime, input.CreatedBy,
	)
	return err
}

const escrowColumns = `
	id, buyer_email, seller_email, broker_email,
	amount, fee, currency, amount_usd, fee_usd,
	payer_role, buyer_fee_usd, seller_fee_usd,
	discount_percent, claim_code, is_claimed, is_paid,
	has_dispute, dispute_reason, disputed_by, status, max_check_time,
	created_by, created_at
`

func (s *EscrowStore) GetByID(ctx context.Context, escrowID string) (Escrow, error) {
	var row Escrow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		WHERE id = $1
	`, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	return row, nil
}

func (s *EscrowStore) GetForUpdate(ctx context.Context, tx Getter, escrowID string) (Escrow, error) {
	var row Escrow
	err := tx.GetContext(ctx, &row, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		WHERE id = $1
		FOR UPDATE
	`, escrowID)
	if err != nil {
		return Escrow{}, err
	}
	return row, nil
}

// UpdateStatus advances the lifecycle only from the expected prior
// status. Zero affected rows means another transition won the race.
func (s *EscrowStore) UpdateStatus(ctx context.Context, tx Execer, escrowID, fromStatus, toStatus string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, toStatus, escrowID, fromStatus)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *EscrowStore) SetPaid(ctx context.Context, tx Execer, escrowID string, isPaid bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE escrow_transactions SET is_paid = $1, updated_at = NOW() WHERE id = $2
	`, isPaid, escrowID)
	return err
}

// SetClaimed flips the at-most-once redemption gate. Zero affected
// rows means the reward was already redeemed by an earlier transition.
func (s *EscrowStore) SetClaimed(ctx context.Context, tx Execer, escrowID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET is_claimed = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_claimed = FALSE
	`, escrowID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *EscrowStore) SetDispute(ctx context.Context, tx Execer, escrowID, reason, disputedBy string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET has_dispute = TRUE, dispute_reason = $1, disputed_by = $2, updated_at = NOW()
		WHERE id = $3
	`, reason, disputedBy, escrowID)
	return err
}

func (s *EscrowStore) ClearDispute(ctx context.Context, tx Execer, escrowID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET has_dispute = FALSE, dispute_reason = NULL, disputed_by = NULL, updated_at = NOW()
		WHERE id = $1
	`, escrowID)
	return err
}

// ResetForReopen clears funding and dispute state so a fresh join
// cycle can re-fund the transaction.
func (s *EscrowStore) ResetForReopen(ctx context.Context, tx Execer, escrowID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET is_paid = FALSE, has_dispute = FALSE, dispute_reason = NULL, disputed_by = NULL, updated_at = NOW()
		WHERE id = $1
	`, escrowID)
	return err
}

// UpdateTerms rewrites the financial terms of a transaction. Used only
// by the edit flow after the prior freeze was fully reversed.
func (s *EscrowStore) UpdateTerms(ctx context.Context, tx Execer, escrowID string, input EscrowInput) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET amount = $1, fee = $2, currency = $3, amount_usd = $4, fee_usd = $5,
		    payer_role = $6, buyer_fee_usd = $7, seller_fee_usd = $8,
		    discount_percent = $9, claim_code = $10, is_paid = $11, updated_at = NOW()
		WHERE id = $12
	`, input.Amount, input.Fee, input.Currency, input.AmountUSD, input.FeeUSD,
		input.PayerRole, input.BuyerFeeUSD, input.SellerFeeUSD,
		input.DiscountPercent, input.ClaimCode, input.IsPaid, escrowID)
	return err
}

func (s *EscrowStore) Delete(ctx context.Context, tx Execer, escrowID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM escrow_participants WHERE escrow_id = $1`, escrowID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM escrow_transactions WHERE id = $1`, escrowID)
	return err
}

func (s *EscrowStore) AddParticipant(ctx context.Context, tx Execer, escrowID, email, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_participants (escrow_id, email, role)
		VALUES ($1, $2, $3)
	`, escrowID, email, role)
	return err
}

func (s *EscrowStore) HasParticipant(ctx context.Context, tx Getter, escrowID, email, role string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM escrow_participants
			WHERE escrow_id = $1 AND email = $2 AND role = $3
		)
	`, escrowID, email, role)
	return exists, err
}

func (s *EscrowStore) HasRoleJoined(ctx context.Context, tx Getter, escrowID, role string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM escrow_participants
			WHERE escrow_id = $1 AND role = $2
		)
	`, escrowID, role)
	return exists, err
}

func (s *EscrowStore) ListParticipants(ctx context.Context, escrowID string) ([]ParticipantRow, error) {
	var rows []ParticipantRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT email, role, joined_at
		FROM escrow_participants
		WHERE escrow_id = $1
		ORDER BY joined_at
	`, escrowID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *EscrowStore) ClearParticipants(ctx context.Context, tx Execer, escrowID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM escrow_participants WHERE escrow_id = $1`, escrowID)
	return err
}

func (s *EscrowStore) ListByEmail(ctx context.Context, email string, limit, offset int) ([]Escrow, error) {
	var rows []Escrow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		WHERE buyer_email = $1 OR seller_email = $1 OR broker_email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, email, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *EscrowStore) ListAll(ctx context.Context, limit, offset int) ([]Escrow, error) {
	var rows []Escrow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
