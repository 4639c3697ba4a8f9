package escrow_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/soko/soko-api/internal/domain/escrow"
	"github.com/soko/soko-api/internal/domain/order"
	"github.com/soko/soko-api/internal/domain/wallet"
	"github.com/soko/soko-api/internal/pkg/storage"
)

func TestEscrowHappyPath(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 20000)
	ctx := context.Background()

	o := f.newOrder(t, 10000)
	e, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	if e.Status != escrow.StatusCreated {
		t.Fatalf("status = %s, want created", e.Status)
	}
	if e.Amount != 10000 || e.Fee != 250 {
		t.Fatalf("escrow = (amount %d, fee %d), want (10000, 250)", e.Amount, e.Fee)
	}
	if !strings.HasPrefix(e.Reference, "ESC-") {
		t.Fatalf("reference = %q, want ESC- prefix", e.Reference)
	}

	// The order now carries the escrow binding.
	bound, _ := f.orders.GetByID(ctx, o.ID)
	if bound.EscrowID == nil || *bound.EscrowID != e.ID {
		t.Fatal("order not bound to escrow")
	}

	if err := f.service.SellerConfirm(ctx, f.sellerID, e.ID); err != nil {
		t.Fatalf("SellerConfirm: %v", err)
	}

	e, err = f.service.Fund(ctx, f.buyerID, e.ID)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if e.Status != escrow.StatusFunded {
		t.Fatalf("status after fund = %s, want funded", e.Status)
	}
	if got := f.balance(t, f.buyerID); got != 10000 {
		t.Fatalf("buyer balance after fund = %d, want 10000", got)
	}
	paid, _ := f.orders.GetByID(ctx, o.ID)
	if paid.PaymentStatus != order.PaymentStatusCompleted {
		t.Fatalf("order payment = %s, want completed", paid.PaymentStatus)
	}

	e, err = f.service.MarkShipped(ctx, f.sellerID, e.ID, "TRK-1", "DHL")
	if err != nil {
		t.Fatalf("MarkShipped: %v", err)
	}
	if e.TrackingNumber == nil || *e.TrackingNumber != "TRK-1" {
		t.Fatal("tracking number not recorded")
	}

	e, err = f.service.ConfirmDelivery(ctx, f.buyerID, e.ID)
	if err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	if e.Status != escrow.StatusDelivered || !e.BuyerConfirmed {
		t.Fatalf("after confirm = (%s, confirmed %v), want (delivered, true)", e.Status, e.BuyerConfirmed)
	}
	if e.AutoReleaseAt == nil {
		t.Fatal("auto-release deadline not set")
	}

	e, err = f.service.Release(ctx, f.buyerID, false, e.ID)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if e.Status != escrow.StatusReleased {
		t.Fatalf("status after release = %s, want released", e.Status)
	}
	if got := f.balance(t, f.sellerID); got != 9750 {
		t.Fatalf("seller balance = %d, want 9750 (net of fee)", got)
	}
	done, _ := f.orders.GetByID(ctx, o.ID)
	if done.Status != order.StatusCompleted {
		t.Fatalf("order status = %s, want completed", done.Status)
	}

	// A second release must not pay twice.
	if _, err := f.service.Release(ctx, f.buyerID, false, e.ID); !errors.Is(err, escrow.ErrStateConflict) {
		t.Fatalf("second release err = %v, want ErrStateConflict", err)
	}
	if got := f.balance(t, f.sellerID); got != 9750 {
		t.Fatalf("seller balance after double release = %d, want 9750", got)
	}
}

func TestEscrowCreateGuards(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 20000)
	ctx := context.Background()

	o := f.newOrder(t, 5000)
	if _, err := f.service.CreateForOrder(ctx, f.sellerID, o.ID); !errors.Is(err, escrow.ErrNotParty) {
		t.Fatalf("seller-created escrow err = %v, want ErrNotParty", err)
	}
	if _, err := f.service.CreateForOrder(ctx, f.buyerID, uuid.New()); !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("unknown order err = %v, want ErrNotFound", err)
	}

	if _, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID); err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	// One escrow per order.
	if _, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID); !errors.Is(err, escrow.ErrAlreadyExists) {
		t.Fatalf("duplicate escrow err = %v, want ErrAlreadyExists", err)
	}
}

func TestEscrowFundInsufficient(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 100)
	ctx := context.Background()

	o := f.newOrder(t, 10000)
	e, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}

	if _, err := f.service.Fund(ctx, f.buyerID, e.ID); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("underfunded fund err = %v, want ErrInsufficientFunds", err)
	}

	// Nothing moved: escrow still created, order still unpaid.
	e, _ = f.service.Get(ctx, f.buyerID, false, e.ID)
	if e.Status != escrow.StatusCreated {
		t.Fatalf("status = %s, want created", e.Status)
	}
	if got := f.balance(t, f.buyerID); got != 100 {
		t.Fatalf("buyer balance = %d, want 100", got)
	}
	o2, _ := f.orders.GetByID(ctx, o.ID)
	if o2.PaymentStatus != order.PaymentStatusPending {
		t.Fatalf("order payment = %s, want pending", o2.PaymentStatus)
	}
}

func TestEscrowCancelRefundsBuyer(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	o := f.newOrder(t, 8000)
	e, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	if _, err := f.service.Fund(ctx, f.buyerID, e.ID); err != nil {
		t.Fatalf("Fund: %v", err)
	}

	e, err = f.service.Cancel(ctx, f.sellerID, e.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if e.Status != escrow.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", e.Status)
	}
	if got := f.balance(t, f.buyerID); got != 10000 {
		t.Fatalf("buyer balance after refund = %d, want 10000", got)
	}
	o2, _ := f.orders.GetByID(ctx, o.ID)
	if o2.Status != order.StatusCancelled || o2.PaymentStatus != order.PaymentStatusRefunded {
		t.Fatalf("order = (%s, %s), want (cancelled, refunded)", o2.Status, o2.PaymentStatus)
	}

	// Unfunded cancellation moves no money.
	o3 := f.newOrder(t, 8000)
	e3, err := f.service.CreateForOrder(ctx, f.buyerID, o3.ID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	if _, err := f.service.Cancel(ctx, f.buyerID, e3.ID); err != nil {
		t.Fatalf("Cancel unfunded: %v", err)
	}
	if got := f.balance(t, f.buyerID); got != 10000 {
		t.Fatalf("buyer balance after unfunded cancel = %d, want 10000", got)
	}

	// Third parties may not cancel.
	o4 := f.newOrder(t, 8000)
	e4, _ := f.service.CreateForOrder(ctx, f.buyerID, o4.ID)
	if _, err := f.service.Cancel(ctx, uuid.New(), e4.ID); !errors.Is(err, escrow.ErrNotParty) {
		t.Fatalf("third-party cancel err = %v, want ErrNotParty", err)
	}
}

// deliveredEscrow drives a fresh escrow to the delivered state.
func deliveredEscrow(t *testing.T, f *fixture, total int64) *escrow.Escrow {
	t.Helper()
	ctx := context.Background()
	o := f.newOrder(t, total)
	e, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	if _, err := f.service.Fund(ctx, f.buyerID, e.ID); err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if _, err := f.service.MarkShipped(ctx, f.sellerID, e.ID, "", ""); err != nil {
		t.Fatalf("MarkShipped: %v", err)
	}
	e, err = f.service.ConfirmDelivery(ctx, f.buyerID, e.ID)
	if err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	return e
}

func TestEscrowDisputeBlocksRelease(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	e := deliveredEscrow(t, f, 10000)
	e, err := f.service.OpenDispute(ctx, f.sellerID, e.ID, "buyer claims non-delivery")
	if err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	if e.Status != escrow.StatusDisputed || !e.Disputed {
		t.Fatalf("status = %s, want disputed", e.Status)
	}
	if e.DisputeReason == nil || *e.DisputeReason != "buyer claims non-delivery" {
		t.Fatal("dispute reason not recorded")
	}

	if _, err := f.service.Release(ctx, f.buyerID, false, e.ID); !errors.Is(err, escrow.ErrStateConflict) {
		t.Fatalf("release of disputed escrow err = %v, want ErrStateConflict", err)
	}
	if _, err := f.service.OpenDispute(ctx, f.buyerID, e.ID, "again"); !errors.Is(err, escrow.ErrStateConflict) {
		t.Fatalf("second dispute err = %v, want ErrStateConflict", err)
	}
}

func TestResolveDisputeBuyer(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	e := deliveredEscrow(t, f, 10000)
	if _, err := f.service.OpenDispute(ctx, f.buyerID, e.ID, "item damaged"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	e, err := f.service.ResolveDispute(ctx, e.ID, escrow.ResolutionBuyer)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if e.Status != escrow.StatusRefunded {
		t.Fatalf("status = %s, want refunded", e.Status)
	}
	if got := f.balance(t, f.buyerID); got != 10000 {
		t.Fatalf("buyer balance = %d, want full refund 10000", got)
	}
	if got := f.balance(t, f.sellerID); got != 0 {
		t.Fatalf("seller balance = %d, want 0", got)
	}
	o, _ := f.orders.GetByID(ctx, e.OrderID)
	if o.Status != order.StatusRefunded || o.PaymentStatus != order.PaymentStatusRefunded {
		t.Fatalf("order = (%s, %s), want (refunded, refunded)", o.Status, o.PaymentStatus)
	}

	// Resolution is once-only.
	if _, err := f.service.ResolveDispute(ctx, e.ID, escrow.ResolutionSeller); !errors.Is(err, escrow.ErrNotDisputed) {
		t.Fatalf("second resolution err = %v, want ErrNotDisputed", err)
	}
}

func TestResolveDisputeSeller(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	e := deliveredEscrow(t, f, 10000)
	if _, err := f.service.OpenDispute(ctx, f.buyerID, e.ID, "changed my mind"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	e, err := f.service.ResolveDispute(ctx, e.ID, escrow.ResolutionSeller)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if e.Status != escrow.StatusReleased {
		t.Fatalf("status = %s, want released", e.Status)
	}
	if got := f.balance(t, f.sellerID); got != 9750 {
		t.Fatalf("seller balance = %d, want 9750", got)
	}
	if got := f.balance(t, f.buyerID); got != 0 {
		t.Fatalf("buyer balance = %d, want 0", got)
	}
	o, _ := f.orders.GetByID(ctx, e.OrderID)
	if o.Status != order.StatusCompleted {
		t.Fatalf("order status = %s, want completed", o.Status)
	}
}

func TestResolveDisputeSplit(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10001)
	ctx := context.Background()

	e := deliveredEscrow(t, f, 10001)
	if _, err := f.service.OpenDispute(ctx, f.buyerID, e.ID, "partial damage"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	e, err := f.service.ResolveDispute(ctx, e.ID, escrow.ResolutionSplit)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if e.Status != escrow.StatusReleased {
		t.Fatalf("status = %s, want released", e.Status)
	}

	buyerShare, sellerNet := e.SplitShares()
	if got := f.balance(t, f.buyerID); got != buyerShare {
		t.Fatalf("buyer balance = %d, want split share %d", got, buyerShare)
	}
	if got := f.balance(t, f.sellerID); got != sellerNet {
		t.Fatalf("seller balance = %d, want split net %d", got, sellerNet)
	}
	// Payouts never exceed the held amount.
	if buyerShare+sellerNet > e.Amount {
		t.Fatalf("split payouts %d exceed held amount %d", buyerShare+sellerNet, e.Amount)
	}
}

// TestConcurrentRelease races buyer releases against each other. Exactly
// one payout may land.
func TestConcurrentRelease(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	e := deliveredEscrow(t, f, 10000)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Release(ctx, f.buyerID, false, e.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, escrow.ErrConcurrency), errors.Is(err, escrow.ErrStateConflict):
		default:
			t.Fatalf("unexpected release error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want exactly 1", succeeded)
	}
	if got := f.balance(t, f.sellerID); got != 9750 {
		t.Fatalf("seller balance = %d, want one payout of 9750", got)
	}
}

// sellerDeliveredEscrow drives a fresh escrow to delivered through the
// seller's notice, leaving the buyer silent.
func sellerDeliveredEscrow(t *testing.T, f *fixture, total int64) *escrow.Escrow {
	t.Helper()
	ctx := context.Background()
	o := f.newOrder(t, total)
	e, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	if _, err := f.service.Fund(ctx, f.buyerID, e.ID); err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if _, err := f.service.MarkShipped(ctx, f.sellerID, e.ID, "", ""); err != nil {
		t.Fatalf("MarkShipped: %v", err)
	}
	e, err = f.service.MarkDelivered(ctx, f.sellerID, false, e.ID)
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	return e
}

// backdateAutoRelease moves the deadline into the past so the sweep
// sees the escrow as due.
func backdateAutoRelease(t *testing.T, db *sqlx.DB, id uuid.UUID) {
	t.Helper()
	_, err := db.Exec(`
		UPDATE escrows SET auto_release_at = now() - interval '1 hour' WHERE id = $1
	`, id)
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

// TestSellerMarksDelivered covers the delivery notice that arms the
// auto-release clock without the buyer's involvement.
func TestSellerMarksDelivered(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	o := f.newOrder(t, 10000)
	e, err := f.service.CreateForOrder(ctx, f.buyerID, o.ID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	if _, err := f.service.Fund(ctx, f.buyerID, e.ID); err != nil {
		t.Fatalf("Fund: %v", err)
	}

	// Only shipped escrows can be marked delivered.
	if _, err := f.service.MarkDelivered(ctx, f.sellerID, false, e.ID); !errors.Is(err, escrow.ErrStateConflict) {
		t.Fatalf("deliver before ship err = %v, want ErrStateConflict", err)
	}
	if _, err := f.service.MarkShipped(ctx, f.sellerID, e.ID, "TRK-9", "UPS"); err != nil {
		t.Fatalf("MarkShipped: %v", err)
	}

	// The buyer and outsiders cannot issue the notice.
	if _, err := f.service.MarkDelivered(ctx, f.buyerID, false, e.ID); !errors.Is(err, escrow.ErrNotParty) {
		t.Fatalf("buyer deliver err = %v, want ErrNotParty", err)
	}
	if _, err := f.service.MarkDelivered(ctx, uuid.New(), false, e.ID); !errors.Is(err, escrow.ErrNotParty) {
		t.Fatalf("outsider deliver err = %v, want ErrNotParty", err)
	}

	e, err = f.service.MarkDelivered(ctx, f.sellerID, false, e.ID)
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if e.Status != escrow.StatusDelivered {
		t.Fatalf("status = %s, want delivered", e.Status)
	}
	if e.BuyerConfirmed {
		t.Fatal("delivery notice must not confirm on the buyer's behalf")
	}
	if e.AutoReleaseAt == nil || e.DeliveredAt == nil {
		t.Fatal("auto-release deadline or delivery time not set")
	}

	// Repeat notices and pre-deadline releases are conflicts.
	if _, err := f.service.MarkDelivered(ctx, f.sellerID, false, e.ID); !errors.Is(err, escrow.ErrStateConflict) {
		t.Fatalf("second deliver err = %v, want ErrStateConflict", err)
	}
	if _, err := f.service.Release(ctx, f.buyerID, false, e.ID); !errors.Is(err, escrow.ErrStateConflict) {
		t.Fatalf("unconfirmed early release err = %v, want ErrStateConflict", err)
	}

	// The buyer's confirmation still works after the notice and unlocks
	// the payout.
	e, err = f.service.ConfirmDelivery(ctx, f.buyerID, e.ID)
	if err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	if !e.BuyerConfirmed {
		t.Fatal("buyer confirmation not recorded")
	}
	if _, err := f.service.Release(ctx, f.buyerID, false, e.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := f.balance(t, f.sellerID); got != 9750 {
		t.Fatalf("seller balance = %d, want 9750", got)
	}
}

func TestAutoReleaseSweep(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	e := sellerDeliveredEscrow(t, f, 10000)
	backdateAutoRelease(t, db, e.ID)

	job := escrow.NewReleaseJob(f.service, 10)
	released, err := job.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	if got := f.balance(t, f.sellerID); got != 9750 {
		t.Fatalf("seller balance = %d, want 9750", got)
	}

	// The silent buyer never confirmed; the deadline alone paid out.
	swept, err := f.escrows.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if swept.Status != escrow.StatusReleased || swept.BuyerConfirmed {
		t.Fatalf("after sweep = (%s, confirmed %v), want (released, false)", swept.Status, swept.BuyerConfirmed)
	}

	// The sweep is idempotent: nothing left to release.
	released, err = job.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if released != 0 {
		t.Fatalf("second sweep released = %d, want 0", released)
	}
}

func TestSweepBeforeDeadlineAndDisputed(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 20000)
	ctx := context.Background()

	// Deadline still ahead: not swept.
	sellerDeliveredEscrow(t, f, 10000)

	// Past deadline but disputed: not swept either.
	disputed := sellerDeliveredEscrow(t, f, 10000)
	if _, err := f.service.OpenDispute(ctx, f.buyerID, disputed.ID, "hold it"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	backdateAutoRelease(t, db, disputed.ID)

	job := escrow.NewReleaseJob(f.service, 10)
	released, err := job.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if released != 0 {
		t.Fatalf("released = %d, want 0", released)
	}
	if got := f.balance(t, f.sellerID); got != 0 {
		t.Fatalf("seller balance = %d, want 0", got)
	}
}

// TestConcurrentSweeps runs two sweeps in parallel over the same due
// escrow. The conditional status flip lets only one of them pay.
func TestConcurrentSweeps(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	e := sellerDeliveredEscrow(t, f, 10000)
	backdateAutoRelease(t, db, e.ID)

	job := escrow.NewReleaseJob(f.service, 10)
	var wg sync.WaitGroup
	counts := make(chan int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := job.RunOnce(ctx)
			if err != nil {
				t.Errorf("RunOnce: %v", err)
			}
			counts <- n
		}()
	}
	wg.Wait()
	close(counts)

	total := 0
	for n := range counts {
		total += n
	}
	if total != 1 {
		t.Fatalf("total released across sweeps = %d, want 1", total)
	}
	if got := f.balance(t, f.sellerID); got != 9750 {
		t.Fatalf("seller balance = %d, want one payout of 9750", got)
	}
}

func TestEvidenceLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	f := newFixture(t, db, 10000)
	ctx := context.Background()

	files, err := storage.NewLocalStorage(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	svc := escrow.NewService(f.escrows, f.wallets, f.orders, files, nil, 250, escrow.DefaultReleaseTimeout)

	e := deliveredEscrow(t, f, 10000)

	// Evidence is only accepted on disputed escrows.
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	if _, err := svc.AttachEvidence(ctx, f.buyerID, e.ID, "photo.png", bytes.NewReader(png), "before dispute"); !errors.Is(err, escrow.ErrNotDisputed) {
		t.Fatalf("pre-dispute upload err = %v, want ErrNotDisputed", err)
	}

	if _, err := f.service.OpenDispute(ctx, f.buyerID, e.ID, "damaged on arrival"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	ev, err := svc.AttachEvidence(ctx, f.buyerID, e.ID, "photo.png", bytes.NewReader(png), "crack across the screen")
	if err != nil {
		t.Fatalf("AttachEvidence: %v", err)
	}
	exists, err := files.Exists(ctx, ev.ObjectKey)
	if err != nil || !exists {
		t.Fatalf("stored object missing: exists=%v err=%v", exists, err)
	}

	// Disallowed content is rejected by sniffing, not by file name.
	if _, err := svc.AttachEvidence(ctx, f.buyerID, e.ID, "nice.png", bytes.NewReader([]byte("#!/bin/sh\nrm -rf /\n")), ""); !errors.Is(err, escrow.ErrInvalidUpload) {
		t.Fatalf("script upload err = %v, want ErrInvalidUpload", err)
	}
	if _, err := svc.AttachEvidence(ctx, uuid.New(), e.ID, "photo.png", bytes.NewReader(png), ""); !errors.Is(err, escrow.ErrNotParty) {
		t.Fatalf("outsider upload err = %v, want ErrNotParty", err)
	}

	list, err := svc.ListEvidence(ctx, f.sellerID, false, e.ID)
	if err != nil {
		t.Fatalf("ListEvidence: %v", err)
	}
	if len(list) != 1 || list[0].Note != "crack across the screen" {
		t.Fatalf("evidence list = %+v, want the one uploaded item", list)
	}
}
