package wallet

import (
	"errors"
	"testing"
	"time"
)

func TestAvailableBalance(t *testing.T) {
	w := &Wallet{Balance: 10000, PendingBalance: 2500}
	if got := w.AvailableBalance(); got != 7500 {
		t.Fatalf("expected 7500, got %d", got)
	}
}

func TestTrustScore(t *testing.T) {
	tests := []struct {
		name    string
		kyc     KYCLevel
		balance int64
		want    int
	}{
		{"basic empty", KYCLevelBasic, 0, 10},
		{"verified empty", KYCLevelVerified, 0, 40},
		{"business empty", KYCLevelBusiness, 0, 60},
		{"balance tier", KYCLevelBasic, 250000, 15},
		{"balance tier capped", KYCLevelBasic, 100000000, 30},
		{"business rich", KYCLevelBusiness, 100000000, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Wallet{KYCLevel: tt.kyc, Balance: tt.balance}
			if got := w.TrustScore(); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestNeedsDailyReset(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	w := &Wallet{LastReset: now.Add(-2 * time.Hour), DailyWithdrawn: 500}
	if w.NeedsDailyReset(now) {
		t.Fatal("same day should not need reset")
	}
	if got := w.EffectiveDailyWithdrawn(now); got != 500 {
		t.Fatalf("expected 500, got %d", got)
	}

	w.LastReset = now.Add(-24 * time.Hour)
	if !w.NeedsDailyReset(now) {
		t.Fatal("previous day should need reset")
	}
	if got := w.EffectiveDailyWithdrawn(now); got != 0 {
		t.Fatalf("expected 0 after rollover, got %d", got)
	}

	// Just before midnight vs just after
	w.LastReset = time.Date(2025, 6, 14, 23, 59, 0, 0, time.UTC)
	if !w.NeedsDailyReset(now) {
		t.Fatal("calendar day changed, reset expected")
	}
}

func TestCheckWithdraw(t *testing.T) {
	now := time.Now()
	base := Wallet{
		Balance:         10000,
		PendingBalance:  0,
		KYCLevel:        KYCLevelVerified,
		WithdrawalLimit: 100000,
		LastReset:       now,
	}

	tests := []struct {
		name   string
		mutate func(w *Wallet)
		amount int64
		want   error
	}{
		{"ok", nil, 5000, nil},
		{"exact balance", nil, 10000, nil},
		{"one over balance", nil, 10001, ErrInsufficientFunds},
		{"zero amount", nil, 0, ErrInvalidAmount},
		{"negative amount", nil, -1, ErrInvalidAmount},
		{"basic kyc blocked", func(w *Wallet) { w.KYCLevel = KYCLevelBasic }, 100, ErrKYCRequired},
		{"pending hold reduces available", func(w *Wallet) { w.PendingBalance = 9000 }, 2000, ErrInsufficientFunds},
		{"daily limit", func(w *Wallet) { w.WithdrawalLimit = 6000; w.DailyWithdrawn = 4000 }, 2001, ErrLimitExceeded},
		{"daily limit exact", func(w *Wallet) { w.WithdrawalLimit = 6000; w.DailyWithdrawn = 4000 }, 2000, nil},
		{"limit resets next day", func(w *Wallet) {
			w.WithdrawalLimit = 6000
			w.DailyWithdrawn = 6000
			w.LastReset = now.Add(-48 * time.Hour)
		}, 5000, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := base
			if tt.mutate != nil {
				tt.mutate(&w)
			}
			err := w.CheckWithdraw(tt.amount, now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransactionDelta(t *testing.T) {
	txn := &Transaction{BalanceBefore: 1000, BalanceAfter: 700}
	if got := txn.Delta(); got != -300 {
		t.Fatalf("expected -300, got %d", got)
	}
}

func TestTransactionIsTerminal(t *testing.T) {
	for status, terminal := range map[TransactionStatus]bool{
		TransactionStatusPending:    false,
		TransactionStatusProcessing: false,
		TransactionStatusCompleted:  true,
		TransactionStatusFailed:     true,
		TransactionStatusCancelled:  true,
		TransactionStatusRefunded:   true,
	} {
		txn := &Transaction{Status: status}
		if txn.IsTerminal() != terminal {
			t.Fatalf("status %s: expected terminal=%v", status, terminal)
		}
	}
}
