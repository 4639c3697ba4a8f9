package escrow

import (
	"time"

	"github.com/google/uuid"
)

type createRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"omitempty,max=64"`
	Carrier        string `json:"carrier" validate:"omitempty,max=64"`
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=1000"`
}

type resolveRequest struct {
	Resolution string `json:"resolution" validate:"required,resolution"`
}

type escrowResponse struct {
	ID              uuid.UUID   `json:"id"`
	Reference       string      `json:"reference"`
	OrderID         uuid.UUID   `json:"order_id"`
	BuyerID         uuid.UUID   `json:"buyer_id"`
	SellerID        uuid.UUID   `json:"seller_id"`
	Amount          int64       `json:"amount"`
	Fee             int64       `json:"fee"`
	Status          Status      `json:"status"`
	BuyerConfirmed  bool        `json:"buyer_confirmed"`
	SellerConfirmed bool        `json:"seller_confirmed"`
	AutoReleaseAt   *time.Time  `json:"auto_release_at,omitempty"`
	Disputed        bool        `json:"disputed"`
	DisputeReason   *string     `json:"dispute_reason,omitempty"`
	Resolution      *Resolution `json:"dispute_resolution,omitempty"`
	TrackingNumber  *string     `json:"tracking_number,omitempty"`
	Carrier         *string     `json:"carrier,omitempty"`
	FundedAt        *time.Time  `json:"funded_at,omitempty"`
	ShippedAt       *time.Time  `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty"`
	ReleasedAt      *time.Time  `json:"released_at,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

func newEscrowResponse(e *Escrow) escrowResponse {
	return escrowResponse{
		ID:              e.ID,
		Reference:       e.Reference,
		OrderID:         e.OrderID,
		BuyerID:         e.BuyerID,
		SellerID:        e.SellerID,
		Amount:          e.Amount,
		Fee:             e.Fee,
		Status:          e.Status,
		BuyerConfirmed:  e.BuyerConfirmed,
		SellerConfirmed: e.SellerConfirmed,
		AutoReleaseAt:   e.AutoReleaseAt,
		Disputed:        e.Disputed,
		DisputeReason:   e.DisputeReason,
		Resolution:      e.DisputeResolution,
		TrackingNumber:  e.TrackingNumber,
		Carrier:         e.Carrier,
		FundedAt:        e.FundedAt,
		ShippedAt:       e.ShippedAt,
		DeliveredAt:     e.DeliveredAt,
		ReleasedAt:      e.ReleasedAt,
		CancelledAt:     e.CancelledAt,
		CreatedAt:       e.CreatedAt,
	}
}

type evidenceResponse struct {
	ID        uuid.UUID `json:"id"`
	EscrowID  uuid.UUID `json:"escrow_id"`
	Uploader  uuid.UUID `json:"uploader_id"`
	FileName  string    `json:"file_name"`
	Note      string    `json:"note,omitempty"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
