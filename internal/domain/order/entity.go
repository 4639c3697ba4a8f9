package order

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// transitions is the exhaustive forward-transition table. Cancellation
// is guarded separately because it also depends on payment status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed},
	StatusConfirmed:  {StatusProcessing},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusCompleted},
}

// Item is a single order line. TotalPrice is always Quantity*UnitPrice.
type Item struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	ProductID  uuid.UUID `db:"product_id" json:"product_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	UnitPrice  int64     `db:"unit_price" json:"unit_price"`
	TotalPrice int64     `db:"total_price" json:"total_price"`
}

type Order struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	OrderNumber   string        `db:"order_number" json:"order_number"`
	BuyerID       uuid.UUID     `db:"buyer_id" json:"buyer_id"`
	SellerID      uuid.UUID     `db:"seller_id" json:"seller_id"`
	Status        Status        `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	EscrowID      *uuid.UUID    `db:"escrow_id" json:"escrow_id,omitempty"`
	ShippingCost  int64         `db:"shipping_cost" json:"shipping_cost"`
	TotalAmount   int64         `db:"total_amount" json:"total_amount"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`

	Items []Item `db:"-" json:"items"`
}

// CanTransition reports whether the forward transition is allowed.
func (o *Order) CanTransition(to Status) bool {
	for _, next := range transitions[o.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// CanCancel: only before shipment, and never once payment completed.
// Cancelling a paid order goes through the escrow refund path instead.
func (o *Order) CanCancel() bool {
	if o.PaymentStatus == PaymentStatusCompleted {
		return false
	}
	switch o.Status {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}

// IsParty reports whether the user is the buyer or the seller.
func (o *Order) IsParty(userID uuid.UUID) bool {
	return userID == o.BuyerID || userID == o.SellerID
}

// Recompute refreshes line totals and the order total. Called on every
// item mutation so TotalAmount never drifts from its items.
func (o *Order) Recompute() {
	var total int64
	for i := range o.Items {
		o.Items[i].TotalPrice = int64(o.Items[i].Quantity) * o.Items[i].UnitPrice
		total += o.Items[i].TotalPrice
	}
	o.TotalAmount = total + o.ShippingCost
}

// IsTerminal reports whether the order can no longer change status.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}
