package wallet

import (
	"time"

	"github.com/google/uuid"
)

// All monetary amounts are int64 minor units (cents).

type KYCLevel string

const (
	KYCLevelBasic    KYCLevel = "basic"
	KYCLevelVerified KYCLevel = "verified"
	KYCLevelBusiness KYCLevel = "business"
)

type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeWithdrawal    TransactionType = "withdrawal"
	TransactionTypePayment       TransactionType = "payment"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeTransfer      TransactionType = "transfer"
	TransactionTypeEscrowRelease TransactionType = "escrow_release"
	TransactionTypeEscrowRefund  TransactionType = "escrow_refund"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

// Wallet is the per-user balance record. One wallet per user, created
// lazily on first access.
type Wallet struct {
	ID              uuid.UUID `db:"id" json:"id"`
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	Balance         int64     `db:"balance" json:"balance"`
	PendingBalance  int64     `db:"pending_balance" json:"pending_balance"`
	Currency        string    `db:"currency" json:"currency"`
	AccountNumber   string    `db:"account_number" json:"account_number"`
	PINHash         *string   `db:"pin_hash" json:"-"`
	KYCLevel        KYCLevel  `db:"kyc_level" json:"kyc_level"`
	WithdrawalLimit int64     `db:"withdrawal_limit" json:"withdrawal_limit"`
	DailyWithdrawn  int64     `db:"daily_withdrawn" json:"daily_withdrawn"`
	LastReset       time.Time `db:"last_reset" json:"last_reset"`
	DailyTxLimit    int       `db:"daily_tx_limit" json:"daily_tx_limit"`
	MonthlyTxLimit  int       `db:"monthly_tx_limit" json:"monthly_tx_limit"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// AvailableBalance is the spendable part of the balance. PendingBalance
// holds the amounts of withdrawals whose external payout has not settled
// yet, so available = balance - pending.
func (w *Wallet) AvailableBalance() int64 {
	return w.Balance - w.PendingBalance
}

// HasPIN reports whether a withdrawal PIN has been set.
func (w *Wallet) HasPIN() bool {
	return w.PINHash != nil && *w.PINHash != ""
}

// NeedsDailyReset reports whether the daily withdrawal counter is stale:
// the calendar day of now differs from the day LastReset was recorded.
func (w *Wallet) NeedsDailyReset(now time.Time) bool {
	ly, lm, ld := w.LastReset.Date()
	ny, nm, nd := now.Date()
	return ly != ny || lm != nm || ld != nd
}

// EffectiveDailyWithdrawn returns the daily counter as of now, applying
// the day-rollover reset without mutating the wallet.
func (w *Wallet) EffectiveDailyWithdrawn(now time.Time) int64 {
	if w.NeedsDailyReset(now) {
		return 0
	}
	return w.DailyWithdrawn
}

// TrustScore derives a reputation score in [0,100]: base 10, a KYC bonus
// (verified +30, business +50), and a balance tier bonus of up to 20
// points at one point per 500 currency units held.
func (w *Wallet) TrustScore() int {
	score := 10
	switch w.KYCLevel {
	case KYCLevelVerified:
		score += 30
	case KYCLevelBusiness:
		score += 50
	}
	tier := w.Balance / 50000 // one point per 500 whole units
	if tier > 20 {
		tier = 20
	}
	if tier > 0 {
		score += int(tier)
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// CheckWithdraw runs the withdrawal guards against this wallet snapshot.
// The repository re-runs it under row lock inside the critical section.
func (w *Wallet) CheckWithdraw(amount int64, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.KYCLevel == KYCLevelBasic {
		return ErrKYCRequired
	}
	if w.AvailableBalance() < amount {
		return ErrInsufficientFunds
	}
	if w.EffectiveDailyWithdrawn(now)+amount > w.WithdrawalLimit {
		return ErrLimitExceeded
	}
	return nil
}

// Transaction is a ledger row. Rows are append-mostly: created pending or
// processing, flipped once to a terminal status, never mutated afterward.
type Transaction struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	WalletID          uuid.UUID         `db:"wallet_id" json:"wallet_id"`
	UserID            uuid.UUID         `db:"user_id" json:"user_id"`
	Type              TransactionType   `db:"type" json:"type"`
	Amount            int64             `db:"amount" json:"amount"`
	Fee               int64             `db:"fee" json:"fee"`
	Status            TransactionStatus `db:"status" json:"status"`
	Reference         string            `db:"reference" json:"reference"`
	BalanceBefore     int64             `db:"balance_before" json:"balance_before"`
	BalanceAfter      int64             `db:"balance_after" json:"balance_after"`
	Description       string            `db:"description" json:"description"`
	OrderID           *uuid.UUID        `db:"order_id" json:"order_id,omitempty"`
	EscrowID          *uuid.UUID        `db:"escrow_id" json:"escrow_id,omitempty"`
	RecipientWalletID *uuid.UUID        `db:"recipient_wallet_id" json:"recipient_wallet_id,omitempty"`
	RecipientUserID   *uuid.UUID        `db:"recipient_user_id" json:"recipient_user_id,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	CompletedAt       *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// Delta is the signed balance effect recorded by this row's snapshot.
func (t *Transaction) Delta() int64 {
	return t.BalanceAfter - t.BalanceBefore
}

// IsTerminal reports whether the status can no longer change.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}
