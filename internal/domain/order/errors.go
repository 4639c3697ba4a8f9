package order

import "errors"

var (
	ErrNotFound        = errors.New("order not found")
	ErrInvalidItems    = errors.New("order must contain at least one valid item")
	ErrNotParty        = errors.New("user is not a party to this order")
	ErrStateConflict   = errors.New("order status transition not allowed")
	ErrAlreadyEscrowed = errors.New("order already has an escrow")
)
