package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"escrow/internal/auth"
	"escrow/internal/ledger"
	"escrow/internal/store"

	"github.com/jmoiron/sqlx"
)

type ApproveRequest struct {
	Actor    auth.Principal
	EscrowID string
}

// Approve settles a started escrow: the seller receives the principal
// and is charged their fee share, the buyer's frozen funds are
// consumed, and the collected fee is paid out exactly once through the
// claim-code redemption gate.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) error {
	var e store.Escrow
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		e, err = s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !req.Actor.IsAdmin && req.Actor.Email != e.BuyerEmail {
			return ErrUnauthorized
		}
		if e.Status != "started" {
			return ErrInvalidStateTransition
		}

		claimed, err := s.escrows.SetClaimed(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if claimed > 0 && e.FeeUSD > 0 {
			if err := s.claims.RedeemReward(ctx, tx, e.ID, claimCodeOf(e), e.FeeUSD); err != nil {
				return err
			}
		}

		if e.SellerFeeUSD > 0 {
			entry := ledger.Entry{Reason: "Escrow fee (seller share)", EscrowID: &e.ID}
			if err := s.funds.Debit(ctx, tx, e.SellerEmail, e.SellerFeeUSD, entry); err != nil {
				if errors.Is(err, ledger.ErrInsufficientFunds) {
					return ErrInsufficientSellerBalance
				}
				return err
			}
		}
		payout := ledger.Entry{Reason: "Escrow principal payout", Counterparty: &e.BuyerEmail, EscrowID: &e.ID}
		if err := s.funds.Credit(ctx, tx, e.SellerEmail, e.AmountUSD, payout); err != nil {
			return err
		}
		spent := ledger.Entry{Reason: "Escrow settled to seller", Counterparty: &e.SellerEmail, EscrowID: &e.ID}
		if err := s.funds.Unfreeze(ctx, tx, e.BuyerEmail, e.AmountUSD+e.BuyerFeeUSD, spent); err != nil {
			return err
		}

		rows, err := s.escrows.UpdateStatus(ctx, tx, e.ID, "started", "approved")
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrencyConflict
		}
		data, _ := json.Marshal(map[string]any{
			"amount_usd":     e.AmountUSD,
			"seller_fee_usd": e.SellerFeeUSD,
		})
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_approve", "escrow", e.ID, string(data))
	})
	if err != nil {
		return err
	}
	s.broadcastWallet(ctx, e.BuyerEmail)
	s.broadcastWallet(ctx, e.SellerEmail)
	return nil
}

type CancelRequest struct {
	Actor    auth.Principal
	EscrowID string
}

// Cancel aborts an escrow before settlement. The buyer's principal is
// returned but the buyer's fee share is retained; the retained fee is
// paid out once through the redemption gate. Buyers may cancel only
// while at least one named party (broker included) has not joined.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) error {
	var e store.Escrow
	var refunded bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		e, err = s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if e.Status != "new" && e.Status != "started" {
			return ErrInvalidStateTransition
		}
		allowed := req.Actor.IsAdmin || req.Actor.Email == e.SellerEmail
		if !allowed && req.Actor.Email == e.BuyerEmail {
			joined, err := s.allPartiesJoined(ctx, tx, e)
			if err != nil {
				return err
			}
			allowed = !joined
		}
		if !allowed {
			return ErrUnauthorized
		}

		claimed, err := s.escrows.SetClaimed(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if claimed > 0 && e.IsPaid && e.BuyerFeeUSD > 0 {
			if err := s.claims.RedeemReward(ctx, tx, e.ID, claimCodeOf(e), e.BuyerFeeUSD); err != nil {
				return err
			}
		}

		if e.IsPaid {
			refund := ledger.Entry{Reason: "Escrow cancelled refund", Counterparty: &e.SellerEmail, EscrowID: &e.ID}
			if err := s.funds.Release(ctx, tx, e.BuyerEmail, e.AmountUSD, refund); err != nil {
				return err
			}
			if e.BuyerFeeUSD > 0 {
				retained := ledger.Entry{Reason: "Cancellation fee retained", EscrowID: &e.ID}
				if err := s.funds.Unfreeze(ctx, tx, e.BuyerEmail, e.BuyerFeeUSD, retained); err != nil {
					return err
				}
			}
			refunded = true
		}

		rows, err := s.escrows.UpdateStatus(ctx, tx, e.ID, e.Status, "cancelled")
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrencyConflict
		}
		data, _ := json.Marshal(map[string]any{"from_status": e.Status, "refunded": refunded})
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_cancel", "escrow", e.ID, string(data))
	})
	if err != nil {
		return err
	}
	if refunded {
		s.broadcastWallet(ctx, e.BuyerEmail)
	}
	return nil
}
