package wallet

import (
	"time"

	"github.com/google/uuid"
)

type depositRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"required,deposit_method"`
}

type withdrawRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Destination string `json:"destination" validate:"required,min=4,max=128"`
	PIN         string `json:"pin" validate:"required,wallet_pin"`
}

type transferRequest struct {
	Amount           int64  `json:"amount" validate:"required,gt=0"`
	RecipientAccount string `json:"recipient_account" validate:"required,min=8,max=32"`
	PIN              string `json:"pin" validate:"required,wallet_pin"`
	Description      string `json:"description" validate:"max=256"`
}

type setPINRequest struct {
	PIN string `json:"pin" validate:"required,wallet_pin"`
}

type setKYCRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Level  string    `json:"level" validate:"required,kyc_level"`
}

type balanceResponse struct {
	Balance          int64  `json:"balance"`
	PendingBalance   int64  `json:"pending_balance"`
	AvailableBalance int64  `json:"available_balance"`
	Currency         string `json:"currency"`
	AccountNumber    string `json:"account_number"`
	KYCLevel         string `json:"kyc_level"`
	TrustScore       int    `json:"trust_score"`
	WithdrawalLimit  int64  `json:"withdrawal_limit"`
	DailyWithdrawn   int64  `json:"daily_withdrawn"`
}

func newBalanceResponse(w *Wallet) balanceResponse {
	return balanceResponse{
		Balance:          w.Balance,
		PendingBalance:   w.PendingBalance,
		AvailableBalance: w.AvailableBalance(),
		Currency:         w.Currency,
		AccountNumber:    w.AccountNumber,
		KYCLevel:         string(w.KYCLevel),
		TrustScore:       w.TrustScore(),
		WithdrawalLimit:  w.WithdrawalLimit,
		DailyWithdrawn:   w.EffectiveDailyWithdrawn(time.Now()),
	}
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	Fee           int64      `json:"fee"`
	Status        string     `json:"status"`
	Reference     string     `json:"reference"`
	BalanceBefore int64      `json:"balance_before"`
	BalanceAfter  int64      `json:"balance_after"`
	Description   string     `json:"description"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func newTransactionResponse(t *Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		Fee:           t.Fee,
		Status:        string(t.Status),
		Reference:     t.Reference,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}
