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

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type CreateRequest struct {
	Actor        auth.Principal
	BuyerEmail   string
	SellerEmail  string
	BrokerEmail  *string
	Amount       int64
	Fee          int64
	Currency     string
	PayerRole    string
	ClaimCode    string
	MaxCheckTime *int
}

// Create opens a new escrow transaction and immediately freezes the
// buyer's principal plus fee portion. The creator is auto-joined when
// they are one of the named parties.
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	if req.Amount <= 0 || req.Fee < 0 || !validPayerRole(req.PayerRole) {
		return "", ErrValidation
	}
	if req.BuyerEmail == "" || req.SellerEmail == "" || req.BuyerEmail == req.SellerEmail {
		return "", ErrValidation
	}
	if req.BrokerEmail != nil && (*req.BrokerEmail == req.BuyerEmail || *req.BrokerEmail == req.SellerEmail) {
		return "", ErrValidation
	}
	if !req.Actor.IsAdmin && req.Actor.Email != req.BuyerEmail && req.Actor.Email != req.SellerEmail &&
		(req.BrokerEmail == nil || req.Actor.Email != *req.BrokerEmail) {
		return "", ErrUnauthorized
	}
	for _, email := range []string{req.BuyerEmail, req.SellerEmail} {
		exists, err := s.users.Exists(ctx, email)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", ErrNotFound
		}
	}

	amountUSD, err := s.converter.ConvertToUSD(req.Amount, req.Currency)
	if err != nil {
		return "", ErrValidation
	}
	feeUSD, err := s.converter.ConvertToUSD(req.Fee, req.Currency)
	if err != nil {
		return "", ErrValidation
	}
	code, err := s.claims.Validate(ctx, req.ClaimCode)
	if err != nil {
		return "", err
	}
	discountedFeeUSD, discountPercent := claims.ApplyDiscount(feeUSD, code)
	buyerFeeUSD, sellerFeeUSD, err := splitFee(discountedFeeUSD, req.PayerRole)
	if err != nil {
		return "", err
	}

	var appliedCode *string
	if code != nil {
		appliedCode = &code.Code
	}
	escrowID := uuid.NewString()
	required := amountUSD + buyerFeeUSD

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		input := store.EscrowInput{
			ID:              escrowID,
			BuyerEmail:      req.BuyerEmail,
			SellerEmail:     req.SellerEmail,
			BrokerEmail:     req.BrokerEmail,
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
			MaxCheckTime:    req.MaxCheckTime,
			CreatedBy:       req.Actor.Email,
		}
		if err := s.escrows.Create(ctx, tx, input); err != nil {
			return err
		}
		entry := ledger.Entry{Reason: "Escrow funding", Counterparty: &req.SellerEmail, EscrowID: &escrowID}
		if err := s.funds.Freeze(ctx, tx, req.BuyerEmail, required, entry); err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				return ErrInsufficientBuyerBalance
			}
			return err
		}
		if role, ok := partyRole(input, req.Actor.Email); ok {
			if err := s.escrows.AddParticipant(ctx, tx, escrowID, req.Actor.Email, role); err != nil {
				return err
			}
		}
		data, _ := json.Marshal(map[string]any{
			"amount_usd": amountUSD,
			"fee_usd":    discountedFeeUSD,
			"payer_role": req.PayerRole,
		})
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_create", "escrow", escrowID, string(data))
	})
	if err != nil {
		return "", err
	}
	s.broadcastWallet(ctx, req.BuyerEmail)
	return escrowID, nil
}

type JoinRequest struct {
	Actor    auth.Principal
	EscrowID string
	Role     string
}

// Join registers a named participant. The buyer's first join re-funds
// the escrow when it is not already paid (after a reopen); once buyer
// and seller are both present the transaction starts.
func (s *Service) Join(ctx context.Context, req JoinRequest) error {
	var froze bool
	var buyerEmail string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		e, err := s.escrows.GetForUpdate(ctx, tx, req.EscrowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		expected, ok := roleEmail(e, req.Role)
		if !ok {
			return ErrValidation
		}
		if req.Actor.Email != expected {
			return ErrUnauthorized
		}
		if e.Status != "new" && e.Status != "started" {
			return ErrInvalidStateTransition
		}
		joined, err := s.escrows.HasParticipant(ctx, tx, req.EscrowID, expected, req.Role)
		if err != nil {
			return err
		}
		if joined {
			return ErrAlreadyJoined
		}
		if req.Role == "buyer" && !e.IsPaid {
			required := e.AmountUSD + e.BuyerFeeUSD
			entry := ledger.Entry{Reason: "Escrow funding", Counterparty: &e.SellerEmail, EscrowID: &e.ID}
			if err := s.funds.Freeze(ctx, tx, e.BuyerEmail, required, entry); err != nil {
				if errors.Is(err, ledger.ErrInsufficientFunds) {
					return ErrInsufficientBuyerBalance
				}
				return err
			}
			if err := s.escrows.SetPaid(ctx, tx, e.ID, true); err != nil {
				return err
			}
			froze = true
			buyerEmail = e.BuyerEmail
		}
		if err := s.escrows.AddParticipant(ctx, tx, req.EscrowID, expected, req.Role); err != nil {
			return err
		}
		if e.Status == "new" {
			buyerIn, err := s.escrows.HasRoleJoined(ctx, tx, req.EscrowID, "buyer")
			if err != nil {
				return err
			}
			sellerIn, err := s.escrows.HasRoleJoined(ctx, tx, req.EscrowID, "seller")
			if err != nil {
				return err
			}
			if buyerIn && sellerIn {
				rows, err := s.escrows.UpdateStatus(ctx, tx, req.EscrowID, "new", "started")
				if err != nil {
					return err
				}
				if rows == 0 {
					return ErrConcurrencyConflict
				}
			}
		}
		data, _ := json.Marshal(map[string]string{"role": req.Role})
		return s.audit.Log(ctx, tx, req.Actor.Email, "escrow_join", "escrow", req.EscrowID, string(data))
	})
	if err != nil {
		return err
	}
	if froze {
		s.broadcastWallet(ctx, buyerEmail)
	}
	return nil
}

func partyRole(input store.EscrowInput, email string) (string, bool) {
	switch {
	case email == input.BuyerEmail:
		return "buyer", true
	case email == input.SellerEmail:
		return "seller", true
	case input.BrokerEmail != nil && email == *input.BrokerEmail:
		return "broker", true
	default:
		return "", false
	}
}
