package models

import "time"

const (
	StatusNew       = "new"
	StatusStarted   = "started"
	StatusApproved  = "approved"
	StatusCancelled = "cancelled"
	StatusDisputed  = "disputed"
	StatusResolved  = "resolved"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleBroker = "broker"
)

const (
	PayerBuyer  = "buyer"
	PayerSeller = "seller"
	PayerSplit  = "split"
)

const (
	LedgerDeposit    = "deposit"
	LedgerWithdrawal = "withdrawal"
	LedgerTransfer   = "transfer"
)

const (
	LedgerPending    = "pending"
	LedgerProcessing = "processing"
	LedgerCompleted  = "completed"
	LedgerFailed     = "failed"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Wallet holds a user's spendable and escrow-frozen USD balances in
// minor units. Both stay >= 0; all mutations go through the ledger.
type Wallet struct {
	OwnerEmail    string    `db:"owner_email" json:"owner_email"`
	Balance       int64     `db:"balance" json:"balance"`
	FrozenBalance int64     `db:"frozen_balance" json:"frozen_balance"`
	HasDispute    bool      `db:"has_dispute" json:"has_dispute"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type ClaimCode struct {
	Code       string     `db:"code" json:"code"`
	OwnerEmail string     `db:"owner_email" json:"owner_email"`
	Percentage int        `db:"percentage" json:"percentage"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	UsageCount int        `db:"usage_count" json:"usage_count"`
	MaxUsage   *int       `db:"max_usage" json:"max_usage,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

type Participant struct {
	Email    string    `db:"email" json:"email"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

type EscrowTransaction struct {
	ID              string    `db:"id" json:"id"`
	BuyerEmail      string    `db:"buyer_email" json:"buyer_email"`
	SellerEmail     string    `db:"seller_email" json:"seller_email"`
	BrokerEmail     *string   `db:"broker_email" json:"broker_email,omitempty"`
	Amount          int64     `db:"amount" json:"amount"`
	Fee             int64     `db:"fee" json:"fee"`
	Currency        string    `db:"currency" json:"currency"`
	AmountInUSD     int64     `db:"amount_usd" json:"amount_in_usd"`
	FeeInUSD        int64     `db:"fee_usd" json:"fee_in_usd"`
	PayerRole       string    `db:"payer_role" json:"payer_role"`
	BuyerFeeInUSD   int64     `db:"buyer_fee_usd" json:"buyer_fee_in_usd"`
	SellerFeeInUSD  int64     `db:"seller_fee_usd" json:"seller_fee_in_usd"`
	DiscountPercent int       `db:"discount_percent" json:"discount_percent"`
	ClaimCode       *string   `db:"claim_code" json:"claim_code,omitempty"`
	IsClaimed       bool      `db:"is_claimed" json:"is_claimed"`
	IsPaid          bool      `db:"is_paid" json:"is_paid"`
	HasDispute      bool      `db:"has_dispute" json:"has_dispute"`
	DisputeReason   *string   `db:"dispute_reason" json:"dispute_reason,omitempty"`
	DisputedBy      *string   `db:"disputed_by" json:"disputed_by,omitempty"`
	Status          string    `db:"status" json:"status"`
	MaxCheckTime    *int      `db:"max_check_time" json:"max_check_time,omitempty"`
	CreatedBy       string    `db:"created_by" json:"created_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransaction is the append-only ledger row: one row per discrete
// economic event. Only status and admin annotations change after insert.
type WalletTransaction struct {
	ID                string    `db:"id" json:"id"`
	OrderID           string    `db:"order_id" json:"order_id"`
	UserEmail         string    `db:"user_email" json:"user_email"`
	Type              string    `db:"type" json:"type"`
	Amount            int64     `db:"amount" json:"amount"`
	Currency          string    `db:"currency" json:"currency"`
	Status            string    `db:"status" json:"status"`
	Description       string    `db:"description" json:"description"`
	CounterpartyEmail *string   `db:"counterparty_email" json:"counterparty_email,omitempty"`
	TransferKind      *string   `db:"transfer_kind" json:"transfer_kind,omitempty"`
	EscrowID          *string   `db:"escrow_id" json:"escrow_id,omitempty"`
	WalletCredited    bool      `db:"wallet_credited" json:"wallet_credited"`
	Refunded          bool      `db:"refunded" json:"refunded"`
	AdminNote         *string   `db:"admin_note" json:"admin_note,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
