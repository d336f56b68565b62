package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"escrow/internal/auth"
	"escrow/internal/claims"
	"escrow/internal/ledger"
	"escrow/internal/store"

	"github.com/jmoiron/sqlx"
)

type DisputeRequest struct {
	Actor    auth.Principal
	EscrowID string
	Reason   string
}

// Dispute freezes the transaction in place and flags both trading
// wallets until an arbiter resolves it. No funds move.
func (s *Service) Dispute(ctx context.Context, req DisputeRequest) error {
	if req.Reason == "" {
		return ErrValidation
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		e, err := s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !req.Actor.IsAdmin && !isParty(e, req.Actor.Email) {
			return ErrUnauthorized
		}
		if e.Status != "started" {
			return ErrInvalidStateTransition
		}
		if err := s.escrows.SetDispute(ctx, tx, e.ID, req.Reason, req.Actor.Email); err != nil {
			return err
		}
		if err := s.wallets.SetDispute(ctx, tx, e.BuyerEmail, true); err != nil {
			return err
		}
		if err := s.wallets.SetDispute(ctx, tx, e.SellerEmail, true); err != nil {
			return err
		}
		rows, err := s.escrows.UpdateStatus(ctx, tx, e.ID, "started", "disputed")
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrencyConflict
		}
		data, _ := json.Marshal(map[string]string{"reason": req.Reason})
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_dispute", "escrow", e.ID, string(data))
	})
}

type ResolveRequest struct {
	Actor    auth.Principal
	EscrowID string
	Note     string
}

// Resolve closes a dispute and unflags the wallets. Resolution itself
// moves no funds; any compensation is handled by the arbiter out of
// band through wallet adjustments.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		e, err := s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		isBroker := e.BrokerEmail != nil && req.Actor.Email == *e.BrokerEmail
		if !req.Actor.IsAdmin && !isBroker {
			return ErrUnauthorized
		}
		if e.Status != "disputed" {
			return ErrInvalidStateTransition
		}
		if err := s.escrows.ClearDispute(ctx, tx, e.ID); err != nil {
			return err
		}
		if err := s.wallets.SetDispute(ctx, tx, e.BuyerEmail, false); err != nil {
			return err
		}
		if err := s.wallets.SetDispute(ctx, tx, e.SellerEmail, false); err != nil {
			return err
		}
		rows, err := s.escrows.UpdateStatus(ctx, tx, e.ID, "disputed", "resolved")
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrencyConflict
		}
		data, _ := json.Marshal(map[string]string{"note": req.Note})
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_resolve", "escrow", e.ID, string(data))
	})
}

type ReopenRequest struct {
	Actor    auth.Principal
	EscrowID string
}

// Reopen returns a cancelled transaction to the new state with its
// participant list cleared. Funding state is reset so the buyer's next
// join freezes funds again.
func (s *Service) Reopen(ctx context.Context, req ReopenRequest) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		e, err := s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !req.Actor.IsAdmin && req.Actor.Email != e.BuyerEmail {
			return ErrUnauthorized
		}
		if e.Status != "cancelled" {
			return ErrInvalidStateTransition
		}
		if err := s.escrows.ResetForReopen(ctx, tx, e.ID); err != nil {
			return err
		}
		if err := s.escrows.ClearParticipants(ctx, tx, e.ID); err != nil {
			return err
		}
		rows, err := s.escrows.UpdateStatus(ctx, tx, e.ID, "cancelled", "new")
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrencyConflict
		}
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_reopen", "escrow", e.ID, "{}")
	})
}

type EditRequest struct {
	Actor     auth.Principal
	EscrowID  string
	Amount    int64
	Fee       int64
	Currency  string
	PayerRole string
	ClaimCode string
}

// Edit rewrites the financial terms of an unsettled transaction. The
// prior freeze is reversed in full and the new required amount is
// frozen in the same transactional unit, so the buyer never ends up
// double-frozen or unfunded.
func (s *Service) Edit(ctx context.Context, req EditRequest) error {
	if req.Amount <= 0 || req.Fee < 0 || !validPayerRole(req.PayerRole) {
		return ErrValidation
	}
	amountUSD, err := s.converter.ConvertToUSD(req.Amount, req.Currency)
	if err != nil {
		return ErrValidation
	}
	feeUSD, err := s.converter.ConvertToUSD(req.Fee, req.Currency)
	if err != nil {
		return ErrValidation
	}
	code, err := s.claims.Validate(ctx, req.ClaimCode)
	if err != nil {
		return err
	}
	discountedFeeUSD, discountPercent := claims.ApplyDiscount(feeUSD, code)
	buyerFeeUSD, sellerFeeUSD, err := splitFee(discountedFeeUSD, req.PayerRole)
	if err != nil {
		return err
	}
	var appliedCode *string
	if code != nil {
		appliedCode = &code.Code
	}

	var buyerEmail string
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		e, err := s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !req.Actor.IsAdmin && req.Actor.Email != e.BuyerEmail {
			return ErrUnauthorized
		}
		if e.Status != "new" && e.Status != "started" {
			return ErrInvalidStateTransition
		}
		buyerEmail = e.BuyerEmail

		if e.IsPaid {
			reversal := ledger.Entry{Reason: "Escrow edit reversal", EscrowID: &e.ID}
			if err := s.funds.Release(ctx, tx, e.BuyerEmail, e.AmountUSD+e.BuyerFeeUSD, reversal); err != nil {
				return err
			}
		}
		entry := ledger.Entry{Reason: "Escrow funding (edited terms)", Counterparty: &e.SellerEmail, EscrowID: &e.ID}
		if err := s.funds.Freeze(ctx, tx, e.BuyerEmail, amountUSD+buyerFeeUSD, entry); err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				return ErrInsufficientBuyerBalance
			}
			return err
		}
		input := store.EscrowInput{
			Amount:          req.Amount,
			Fee:             req.Fee,
			Currency:        req.Currency,
			AmountUSD:       amountUSD,
			FeeUSD:          discountedFeeUSD,
			PayerRole:       req.PayerRole,
			BuyerFeeUSD:     buyerFeeUSD,
			SellerFeeUSD:    sellerFeeUSD,
			DiscountPercent: discountPercent,
			ClaimCode:       appliedCode,
			IsPaid:          true,
		}
		if err := s.escrows.UpdateTerms(ctx, tx, e.ID, input); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"amount_usd": amountUSD, "fee_usd": discountedFeeUSD})
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_edit", "escrow", e.ID, string(data))
	})
	if err != nil {
		return err
	}
	s.broadcastWallet(ctx, buyerEmail)
	return nil
}

type DeleteRequest struct {
	Actor    auth.Principal
	EscrowID string
}

// Delete removes a transaction that never held funds. Anything paid,
// disputed, or already settled must go through cancel instead.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		e, err := s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !req.Actor.IsAdmin && req.Actor.Email != e.CreatedBy {
			return ErrUnauthorized
		}
		switch e.Status {
		case "approved", "cancelled", "disputed", "resolved":
			return ErrInvalidStateTransition
		}
		if e.HasDispute || e.IsPaid {
			return ErrInvalidStateTransition
		}
		if err := s.escrows.Delete(ctx, tx, e.ID); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_delete", "escrow", e.ID, "{}")
	})
}
