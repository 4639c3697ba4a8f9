package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// ItemInput is a line item as submitted by the buyer. Unit prices come
// from the product catalog lookup done by the caller.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice int64
}

// Create places a new order in pending status with its total computed
// from the items.
func (s *Service) Create(ctx context.Context, buyerID, sellerID uuid.UUID, items []ItemInput, shippingCost int64) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrInvalidItems
	}
	o := &Order{
		BuyerID:       buyerID,
		SellerID:      sellerID,
		Status:        StatusPending,
		PaymentStatus: PaymentStatusPending,
		ShippingCost:  shippingCost,
	}
	for _, in := range items {
		if in.Quantity <= 0 || in.UnitPrice <= 0 {
			return nil, ErrInvalidItems
		}
		o.Items = append(o.Items, Item{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		})
	}
	o.Recompute()

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	log.Info().
		Str("order_number", o.OrderNumber).
		Str("buyer_id", buyerID.String()).
		Int64("total", o.TotalAmount).
		Msg("order created")
	return o, nil
}

func (s *Service) Get(ctx context.Context, id, actorID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(actorID) {
		return nil, ErrNotParty
	}
	return o, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Advance moves the order one step along its lifecycle. Shipment-side
// steps belong to the seller, the delivered confirmation to the buyer.
func (s *Service) Advance(ctx context.Context, id, actorID uuid.UUID, to Status) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(actorID) {
		return nil, ErrNotParty
	}
	switch to {
	case StatusConfirmed, StatusProcessing, StatusShipped:
		if actorID != o.SellerID {
			return nil, ErrNotParty
		}
	case StatusDelivered:
		if actorID != o.BuyerID {
			return nil, ErrNotParty
		}
	default:
		return nil, ErrStateConflict
	}
	if !o.CanTransition(to) {
		return nil, ErrStateConflict
	}
	if err := s.repo.UpdateStatus(ctx, id, o.Status, to); err != nil {
		return nil, err
	}
	o.Status = to
	return o, nil
}

// Cancel aborts an unpaid order before shipment.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(actorID) {
		return nil, ErrNotParty
	}
	if !o.CanCancel() {
		return nil, ErrStateConflict
	}
	if err := s.repo.UpdateStatus(ctx, id, o.Status, StatusCancelled); err != nil {
		return nil, err
	}
	o.Status = StatusCancelled
	log.Info().Str("order_number", o.OrderNumber).Msg("order cancelled")
	return o, nil
}

// UpdateItems replaces line items on a still-pending order. The total
// is recomputed before persisting.
func (s *Service) UpdateItems(ctx context.Context, id, actorID uuid.UUID, items []ItemInput, shippingCost int64) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != o.BuyerID {
		return nil, ErrNotParty
	}
	if o.Status != StatusPending {
		return nil, ErrStateConflict
	}
	if len(items) == 0 {
		return nil, ErrInvalidItems
	}

	o.Items = o.Items[:0]
	for _, in := range items {
		if in.Quantity <= 0 || in.UnitPrice <= 0 {
			return nil, ErrInvalidItems
		}
		o.Items = append(o.Items, Item{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		})
	}
	o.ShippingCost = shippingCost
	o.Recompute()

	if err := s.repo.ReplaceItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}
