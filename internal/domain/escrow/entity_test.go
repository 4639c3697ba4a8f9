package escrow

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanSellerConfirm(t *testing.T) {
	e := &Escrow{Status: StatusCreated}
	if !e.CanSellerConfirm() {
		t.Error("fresh escrow should accept seller confirmation")
	}
	e.SellerConfirmed = true
	if e.CanSellerConfirm() {
		t.Error("seller confirmation is once-only")
	}
	e = &Escrow{Status: StatusFunded}
	if e.CanSellerConfirm() {
		t.Error("funded escrow should not accept seller confirmation")
	}
}

func TestCanBuyerConfirm(t *testing.T) {
	e := &Escrow{Status: StatusShipped}
	if !e.CanBuyerConfirm() {
		t.Error("shipped escrow should accept buyer confirmation")
	}
	e.BuyerConfirmed = true
	if e.CanBuyerConfirm() {
		t.Error("buyer confirmation is once-only")
	}
	if !(&Escrow{Status: StatusDelivered}).CanBuyerConfirm() {
		t.Error("delivered escrow should accept buyer confirmation")
	}
	e = &Escrow{Status: StatusShipped, Disputed: true}
	if e.CanBuyerConfirm() {
		t.Error("disputed escrow should not accept buyer confirmation")
	}
	for _, st := range []Status{StatusCreated, StatusFunded, StatusReleased, StatusCancelled} {
		if (&Escrow{Status: st}).CanBuyerConfirm() {
			t.Errorf("%s escrow should not accept buyer confirmation", st)
		}
	}
}

func TestCanMarkDelivered(t *testing.T) {
	if !(&Escrow{Status: StatusShipped}).CanMarkDelivered() {
		t.Error("shipped escrow should accept the delivery notice")
	}
	if (&Escrow{Status: StatusShipped, Disputed: true}).CanMarkDelivered() {
		t.Error("disputed escrow should not accept the delivery notice")
	}
	for _, st := range []Status{StatusCreated, StatusFunded, StatusDelivered, StatusReleased} {
		if (&Escrow{Status: st}).CanMarkDelivered() {
			t.Errorf("%s escrow should not accept the delivery notice", st)
		}
	}
}

func TestCanRelease(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name string
		e    Escrow
		want bool
	}{
		{"buyer confirmed", Escrow{Status: StatusDelivered, BuyerConfirmed: true}, true},
		{"deadline passed", Escrow{Status: StatusDelivered, AutoReleaseAt: &before}, true},
		{"deadline exactly now", Escrow{Status: StatusDelivered, AutoReleaseAt: &now}, true},
		{"deadline ahead", Escrow{Status: StatusDelivered, AutoReleaseAt: &after}, false},
		{"no deadline no confirmation", Escrow{Status: StatusDelivered}, false},
		{"disputed past deadline", Escrow{Status: StatusDelivered, Disputed: true, AutoReleaseAt: &before}, false},
		{"disputed but buyer confirmed", Escrow{Status: StatusDelivered, Disputed: true, BuyerConfirmed: true}, true},
		{"not delivered", Escrow{Status: StatusShipped, BuyerConfirmed: true}, false},
		{"already released", Escrow{Status: StatusReleased, BuyerConfirmed: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.CanRelease(now); got != tt.want {
				t.Errorf("CanRelease() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanDispute(t *testing.T) {
	buyer, seller, other := uuid.New(), uuid.New(), uuid.New()
	e := &Escrow{Status: StatusDelivered, BuyerID: buyer, SellerID: seller}
	if !e.CanDispute(buyer) || !e.CanDispute(seller) {
		t.Error("both parties may dispute a delivered escrow")
	}
	if e.CanDispute(other) {
		t.Error("third user may not dispute")
	}
	e.Disputed = true
	if e.CanDispute(buyer) {
		t.Error("dispute may only be opened once")
	}
	if (&Escrow{Status: StatusShipped, BuyerID: buyer, SellerID: seller}).CanDispute(buyer) {
		t.Error("only delivered escrows may be disputed")
	}
}

func TestCanCancel(t *testing.T) {
	buyer, seller, other := uuid.New(), uuid.New(), uuid.New()
	for _, st := range []Status{StatusCreated, StatusFunded, StatusShipped} {
		e := &Escrow{Status: st, BuyerID: buyer, SellerID: seller}
		if !e.CanCancel(buyer) || !e.CanCancel(seller) {
			t.Errorf("%s escrow should be cancellable by either party", st)
		}
		if e.CanCancel(other) {
			t.Errorf("%s escrow must not be cancellable by a third user", st)
		}
	}
	for _, st := range []Status{StatusDelivered, StatusReleased, StatusCancelled, StatusDisputed, StatusRefunded} {
		if (&Escrow{Status: st, BuyerID: buyer, SellerID: seller}).CanCancel(buyer) {
			t.Errorf("%s escrow must not be cancellable", st)
		}
	}
}

func TestHoldsFunds(t *testing.T) {
	holding := []Status{StatusFunded, StatusShipped, StatusDelivered, StatusDisputed}
	for _, st := range holding {
		if !(&Escrow{Status: st}).HoldsFunds() {
			t.Errorf("%s escrow should hold funds", st)
		}
	}
	empty := []Status{StatusCreated, StatusReleased, StatusCancelled, StatusRefunded}
	for _, st := range empty {
		if (&Escrow{Status: st}).HoldsFunds() {
			t.Errorf("%s escrow should not hold funds", st)
		}
	}
}

func TestSellerNet(t *testing.T) {
	if got := (&Escrow{Amount: 10000, Fee: 250}).SellerNet(); got != 9750 {
		t.Errorf("SellerNet = %d, want 9750", got)
	}
	// Fee larger than the amount clamps to zero, never negative.
	if got := (&Escrow{Amount: 100, Fee: 250}).SellerNet(); got != 0 {
		t.Errorf("SellerNet with oversized fee = %d, want 0", got)
	}
}

func TestSplitShares(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		fee        int64
		wantBuyer  int64
		wantSeller int64
	}{
		{"even no fee", 1000, 0, 500, 500},
		{"odd cent to buyer", 1001, 0, 501, 500},
		{"even with fee", 10000, 250, 5000, 4875},
		{"odd with fee", 10001, 250, 5001, 4876},
		{"one unit", 1, 0, 1, 0},
		{"zero", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Escrow{Amount: tt.amount, Fee: tt.fee}
			buyer, sellerNet := e.SplitShares()
			if buyer != tt.wantBuyer || sellerNet != tt.wantSeller {
				t.Errorf("SplitShares() = (%d, %d), want (%d, %d)", buyer, sellerNet, tt.wantBuyer, tt.wantSeller)
			}
			// Conservation: payouts never exceed the held amount.
			if buyer+sellerNet > tt.amount {
				t.Errorf("buyer %d + sellerNet %d exceeds held amount %d", buyer, sellerNet, tt.amount)
			}
		})
	}
}
