package store

import (
	"context"
	"time"
)

type ClaimStore struct {
	db DB
}

type ClaimCode struct {
	Code       string     `db:"code"`
	OwnerEmail string     `db:"owner_email"`
	Percentage int        `db:"percentage"`
	ExpiresAt  time.Time  `db:"expires_at"`
	IsActive   bool       `db:"is_active"`
	UsageCount int        `db:"usage_count"`
	MaxUsage   *int       `db:"max_usage"`
	CreatedAt  any        `db:"created_at"`
	DeletedAt  *time.Time `db:"deleted_at"`
}

type ClaimCodeInput struct {
	Code       string
	OwnerEmail string
	Percentage int
	ExpiresAt  time.Time
	MaxUsage   *int
}

func NewClaimStore(db DB) *ClaimStore {
	return &ClaimStore{db: db}
}

func (s *ClaimStore) Create(ctx context.Context, tx Execer, input ClaimCodeInput) error {
	query := `
		INSERT INTO claim_codes (code, owner_email, percentage, expires_at, is_active, usage_count, max_usage)
		VALUES ($1, $2, $3, $4, TRUE, 0, $5)
	`
	_, err := tx.ExecContext(ctx, query, input.Code, input.OwnerEmail, input.Percentage, input.ExpiresAt, input.MaxUsage)
	return err
}

func (s *ClaimStore) GetByCode(ctx context.Context, code string) (ClaimCode, error) {
	var row ClaimCode
	err := s.db.GetContext(ctx, &row, `
		SELECT code, owner_email, percentage, expires_at, is_active, usage_count, max_usage, created_at, deleted_at
		FROM claim_codes
		WHERE code = $1 AND deleted_at IS NULL
	`, code)
	if err != nil {
		return ClaimCode{}, err
	}
	return row, nil
}

func (s *ClaimStore) GetForUpdate(ctx context.Context, tx Getter, code string) (ClaimCode, error) {
	var row ClaimCode
	err := tx.GetContext(ctx, &row, `
		SELECT code, owner_email, percentage, expires_at, is_active, usage_count, max_usage
		FROM claim_codes
		WHERE code = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, code)
	if err != nil {
		return ClaimCode{}, err
	}
	return row, nil
}

// ConsumeUsage increments the usage counter only while the code is
// still active, unexpired, and under its usage limit. It deactivates
// the code on the redemption that reaches the limit. Returns the
// number of affected rows so callers can detect a lost race.
func (s *ClaimStore) ConsumeUsage(ctx context.Context, tx Execer, code string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE claim_codes
		SET usage_count = usage_count + 1,
		    is_active = (max_usage IS NULL OR usage_count + 1 < max_usage)
		WHERE code = $1
		  AND deleted_at IS NULL
		  AND is_active = TRUE
		  AND expires_at > NOW()
		  AND (max_usage IS NULL OR usage_count < max_usage)
	`, code)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *ClaimStore) Deactivate(ctx context.Context, tx Execer, code string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE claim_codes SET is_active = FALSE WHERE code = $1
	`, code)
	return err
}

// SoftDelete retires a code without erasing redemption history.
func (s *ClaimStore) SoftDelete(ctx context.Context, tx Execer, code string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE claim_codes SET is_active = FALSE, deleted_at = NOW() WHERE code = $1 AND deleted_at IS NULL
	`, code)
	return err
}

func (s *ClaimStore) ListByOwner(ctx context.Context, ownerEmail string) ([]ClaimCode, error) {
	var rows []ClaimCode
	err := s.db.SelectContext(ctx, &rows, `
		SELECT code, owner_email, percentage, expires_at, is_active, usage_count, max_usage, created_at, deleted_at
		FROM claim_codes
		WHERE owner_email = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, ownerEmail)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
