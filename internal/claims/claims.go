package claims

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"escrow/internal/ledger"
	"escrow/internal/store"

	"github.com/shopspring/decimal"
)

var ErrInvalidClaim = errors.New("invalid claim")

type CodeStore interface {
	GetByCode(ctx context.Context, code string) (store.ClaimCode, error)
	GetForUpdate(ctx context.Context, tx store.Getter, code string) (store.ClaimCode, error)
	ConsumeUsage(ctx context.Context, tx store.Execer, code string) (int64, error)
}

type Funds interface {
	Credit(ctx context.Context, tx store.Tx, ownerEmail string, amount int64, entry ledger.Entry) error
}

// Engine validates fee-discount codes, applies discounts at pricing
// time, and pays out rewards at redemption time. Redemption splits the
// collected fee between the code owner and the platform operating
// account.
type Engine struct {
	codes         CodeStore
	funds         Funds
	platformEmail string
}

func NewEngine(codes CodeStore, funds Funds, platformEmail string) *Engine {
	return &Engine{codes: codes, funds: funds, platformEmail: platformEmail}
}

// Validate returns the code when it is active, unexpired, and under
// its usage limit; nil when it is missing or ineligible.
func (e *Engine) Validate(ctx context.Context, code string) (*store.ClaimCode, error) {
	if code == "" {
		return nil, nil
	}
	row, err := e.codes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !eligible(row, time.Now()) {
		return nil, nil
	}
	return &row, nil
}

// ApplyDiscount is the pure pricing half of the engine: it reduces the
// fee by the code's percentage without touching usage counters.
// An absent or ineligible code leaves the fee unchanged.
func ApplyDiscount(feeUSD int64, code *store.ClaimCode) (int64, int) {
	if code == nil || code.Percentage <= 0 || code.Percentage > 100 {
		return feeUSD, 0
	}
	keep := decimal.NewFromInt(100 - int64(code.Percentage)).Div(decimal.NewFromInt(100))
	discounted := decimal.NewFromInt(feeUSD).Mul(keep).RoundBank(0).IntPart()
	return discounted, code.Percentage
}

// RedeemReward pays out the reward split for the fee a settlement
// actually collected: the code owner receives percentage% and the
// platform the remainder. Without a redeemable code the full fee goes
// to the platform. Callers guard at-most-once invocation via the
// escrow's isClaimed flag; this runs inside the same transaction.
func (e *Engine) RedeemReward(ctx context.Context, tx store.Tx, escrowID string, code string, collectedFeeUSD int64) error {
	if collectedFeeUSD < 0 {
		return ErrInvalidClaim
	}
	if collectedFeeUSD == 0 {
		return nil
	}
	reward := int64(0)
	var ownerEmail string
	if code != "" {
		row, err := e.codes.GetForUpdate(ctx, tx, code)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil {
			if row.Percentage < 0 || row.Percentage > 100 {
				return ErrInvalidClaim
			}
			consumed, err := e.codes.ConsumeUsage(ctx, tx, code)
			if err != nil {
				return err
			}
			if consumed > 0 {
				pct := decimal.NewFromInt(int64(row.Percentage)).Div(decimal.NewFromInt(100))
				reward = decimal.NewFromInt(collectedFeeUSD).Mul(pct).RoundBank(0).IntPart()
				ownerEmail = row.OwnerEmail
			}
		}
	}
	if reward > 0 {
		entry := ledger.Entry{Reason: "Claim code reward", EscrowID: &escrowID}
		if err := e.funds.Credit(ctx, tx, ownerEmail, reward, entry); err != nil {
			return err
		}
	}
	if remainder := collectedFeeUSD - reward; remainder > 0 {
		entry := ledger.Entry{Reason: "Escrow fee", EscrowID: &escrowID}
		if err := e.funds.Credit(ctx, tx, e.platformEmail, remainder, entry); err != nil {
			return err
		}
	}
	return nil
}

func eligible(row store.ClaimCode, now time.Time) bool {
	if !row.IsActive || row.DeletedAt != nil {
		return false
	}
	if !row.ExpiresAt.After(now) {
		return false
	}
	if row.MaxUsage != nil && row.UsageCount >= *row.MaxUsage {
		return false
	}
	return true
}
