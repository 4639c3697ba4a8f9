package escrow

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusFunded    Status = "funded"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusReleased  Status = "released"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
	StatusRefunded  Status = "refunded"
)

type Resolution string

const (
	ResolutionBuyer  Resolution = "buyer"
	ResolutionSeller Resolution = "seller"
	ResolutionSplit  Resolution = "split"
	ResolutionRefund Resolution = "refund"
)

// DefaultReleaseTimeout is the fallback window between delivery and
// forced release when no explicit timeout is configured.
const DefaultReleaseTimeout = 14 * 24 * time.Hour

// Escrow holds buyer funds for one order until delivery confirmation,
// timeout or dispute resolution. Transition timestamps are write-once:
// the first transition wins and repeats are state conflicts.
type Escrow struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Reference string    `db:"reference" json:"reference"`
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	BuyerID   uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID  uuid.UUID `db:"seller_id" json:"seller_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Fee       int64     `db:"fee" json:"fee"`
	Status    Status    `db:"status" json:"status"`

	BuyerConfirmed    bool       `db:"buyer_confirmed" json:"buyer_confirmed"`
	SellerConfirmed   bool       `db:"seller_confirmed" json:"seller_confirmed"`
	BuyerConfirmedAt  *time.Time `db:"buyer_confirmed_at" json:"buyer_confirmed_at,omitempty"`
	SellerConfirmedAt *time.Time `db:"seller_confirmed_at" json:"seller_confirmed_at,omitempty"`

	AutoReleaseAt  *time.Time    `db:"auto_release_at" json:"auto_release_at,omitempty"`
	ReleaseTimeout time.Duration `db:"release_timeout" json:"release_timeout"`

	Disputed          bool        `db:"disputed" json:"disputed"`
	DisputeReason     *string     `db:"dispute_reason" json:"dispute_reason,omitempty"`
	DisputeOpenedAt   *time.Time  `db:"dispute_opened_at" json:"dispute_opened_at,omitempty"`
	DisputeResolvedAt *time.Time  `db:"dispute_resolved_at" json:"dispute_resolved_at,omitempty"`
	DisputeResolution *Resolution `db:"dispute_resolution" json:"dispute_resolution,omitempty"`

	TrackingNumber *string `db:"tracking_number" json:"tracking_number,omitempty"`
	Carrier        *string `db:"carrier" json:"carrier,omitempty"`

	FundedAt    *time.Time `db:"funded_at" json:"funded_at,omitempty"`
	ShippedAt   *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReleasedAt  *time.Time `db:"released_at" json:"released_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (e *Escrow) IsParty(userID uuid.UUID) bool {
	return userID == e.BuyerID || userID == e.SellerID
}

func (e *Escrow) IsTerminal() bool {
	switch e.Status {
	case StatusReleased, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanSellerConfirm: the seller acknowledges the escrow terms before
// funding, once.
func (e *Escrow) CanSellerConfirm() bool {
	return e.Status == StatusCreated && !e.SellerConfirmed
}

// CanMarkDelivered: a shipped, undisputed escrow may progress to
// delivered.
func (e *Escrow) CanMarkDelivered() bool {
	return e.Status == StatusShipped && !e.Disputed
}

// CanBuyerConfirm: the buyer acknowledges receipt once, on a shipped or
// delivered escrow, unless a dispute is already open.
func (e *Escrow) CanBuyerConfirm() bool {
	switch e.Status {
	case StatusShipped, StatusDelivered:
		return !e.BuyerConfirmed && !e.Disputed
	}
	return false
}

// CanRelease: funds move to the seller either because the buyer
// confirmed delivery, or because the auto-release deadline passed on an
// undisputed delivered escrow.
func (e *Escrow) CanRelease(now time.Time) bool {
	if e.Status != StatusDelivered {
		return false
	}
	if e.BuyerConfirmed {
		return true
	}
	return !e.Disputed && e.AutoReleaseAt != nil && !now.Before(*e.AutoReleaseAt)
}

// CanDispute: either party may contest a delivered escrow that is not
// already disputed.
func (e *Escrow) CanDispute(actorID uuid.UUID) bool {
	return e.Status == StatusDelivered && !e.Disputed && e.IsParty(actorID)
}

// CanCancel: either party may abort before delivery.
func (e *Escrow) CanCancel(actorID uuid.UUID) bool {
	if !e.IsParty(actorID) {
		return false
	}
	switch e.Status {
	case StatusCreated, StatusFunded, StatusShipped:
		return true
	}
	return false
}

// HoldsFunds reports whether the buyer debit has happened and not yet
// been paid out or refunded.
func (e *Escrow) HoldsFunds() bool {
	switch e.Status {
	case StatusFunded, StatusShipped, StatusDelivered, StatusDisputed:
		return true
	}
	return false
}

// SellerNet is the release amount after the platform fee.
func (e *Escrow) SellerNet() int64 {
	net := e.Amount - e.Fee
	if net < 0 {
		net = 0
	}
	return net
}

// SplitShares computes the dispute split settlement: half to each side,
// the odd minor unit going to the buyer, with the platform fee taken
// proportionally out of the seller's half. buyer + sellerNet + fee cut
// never exceeds the held amount.
func (e *Escrow) SplitShares() (buyer int64, sellerNet int64) {
	buyer = (e.Amount + 1) / 2
	sellerGross := e.Amount - buyer
	feeShare := int64(0)
	if e.Amount > 0 {
		feeShare = e.Fee * sellerGross / e.Amount
	}
	sellerNet = sellerGross - feeShare
	if sellerNet < 0 {
		sellerNet = 0
	}
	return buyer, sellerNet
}

// Evidence is a dispute attachment stored in object storage.
type Evidence struct {
	ID         uuid.UUID `db:"id" json:"id"`
	EscrowID   uuid.UUID `db:"escrow_id" json:"escrow_id"`
	UploaderID uuid.UUID `db:"uploader_id" json:"uploader_id"`
	ObjectKey  string    `db:"object_key" json:"object_key"`
	FileName   string    `db:"file_name" json:"file_name"`
	Note       string    `db:"note" json:"note"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
