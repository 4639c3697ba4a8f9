package wallet_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/soko/soko-api/internal/domain/wallet"
)

// scriptedGateway approves or declines per transaction id, recording
// every call it receives.
type scriptedGateway struct {
	mu       sync.Mutex
	declined map[string]bool
	calls    int
}

func (g *scriptedGateway) decide(txn *wallet.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.declined[txn.ID.String()] {
		return errors.New("declined by rail")
	}
	return nil
}

func (g *scriptedGateway) SettleDeposit(ctx context.Context, txn *wallet.Transaction) error {
	return g.decide(txn)
}

func (g *scriptedGateway) SendPayout(ctx context.Context, txn *wallet.Transaction) error {
	return g.decide(txn)
}

func TestSettlerDepositOutcomes(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	repo := newTestRepo(db)
	ctx := context.Background()

	w := seedWallet(t, repo, 0)
	ok, err := repo.CreateDeposit(ctx, w.UserID, 4000, "card")
	if err != nil {
		t.Fatalf("CreateDeposit: %v", err)
	}
	bad, err := repo.CreateDeposit(ctx, w.UserID, 9000, "card")
	if err != nil {
		t.Fatalf("CreateDeposit: %v", err)
	}

	gw := &scriptedGateway{declined: map[string]bool{bad.ID.String(): true}}
	settler := wallet.NewSettler(repo, gw, nil, 2)
	settler.Start()
	settler.SubmitDeposit(ok.ID)
	settler.SubmitDeposit(bad.ID)
	settler.Stop() // drains the queue and waits

	got, _ := repo.GetTransaction(ctx, ok.ID)
	if got.Status != wallet.TransactionStatusCompleted {
		t.Fatalf("approved deposit status = %s, want completed", got.Status)
	}
	got, _ = repo.GetTransaction(ctx, bad.ID)
	if got.Status != wallet.TransactionStatusFailed {
		t.Fatalf("declined deposit status = %s, want failed", got.Status)
	}

	after, _ := repo.GetByUserID(ctx, w.UserID)
	if after.Balance != 4000 {
		t.Fatalf("balance = %d, want 4000 (only approved deposit credited)", after.Balance)
	}
}

func TestSettlerPayoutFailureCompensates(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	repo := newTestRepo(db)
	ctx := context.Background()

	w := seedWallet(t, repo, 10000)
	wd, err := repo.BeginWithdrawal(ctx, w.UserID, 6000, "acct-009")
	if err != nil {
		t.Fatalf("BeginWithdrawal: %v", err)
	}

	gw := &scriptedGateway{declined: map[string]bool{wd.ID.String(): true}}
	settler := wallet.NewSettler(repo, gw, nil, 1)
	settler.Start()
	settler.SubmitPayout(wd.ID)
	settler.Stop()

	// Declined payout is compensated: hold released, row failed.
	got, _ := repo.GetTransaction(ctx, wd.ID)
	if got.Status != wallet.TransactionStatusFailed {
		t.Fatalf("payout status = %s, want failed", got.Status)
	}
	after, _ := repo.GetByUserID(ctx, w.UserID)
	if after.Balance != 10000 || after.PendingBalance != 0 {
		t.Fatalf("wallet after reversal = (balance %d, pending %d), want (10000, 0)", after.Balance, after.PendingBalance)
	}
	if after.DailyWithdrawn != 0 {
		t.Fatalf("daily_withdrawn after reversal = %d, want 0", after.DailyWithdrawn)
	}
}

func TestSettlerPayoutSuccess(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	repo := newTestRepo(db)
	ctx := context.Background()

	w := seedWallet(t, repo, 10000)
	wd, err := repo.BeginWithdrawal(ctx, w.UserID, 6000, "acct-010")
	if err != nil {
		t.Fatalf("BeginWithdrawal: %v", err)
	}

	gw := &scriptedGateway{}
	settler := wallet.NewSettler(repo, gw, nil, 1)
	settler.Start()
	settler.SubmitPayout(wd.ID)
	settler.Stop()

	got, _ := repo.GetTransaction(ctx, wd.ID)
	if got.Status != wallet.TransactionStatusCompleted {
		t.Fatalf("payout status = %s, want completed", got.Status)
	}
	after, _ := repo.GetByUserID(ctx, w.UserID)
	if after.Balance != 4000 || after.PendingBalance != 0 {
		t.Fatalf("wallet after payout = (balance %d, pending %d), want (4000, 0)", after.Balance, after.PendingBalance)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway calls = %d, want 1", gw.calls)
	}
}
