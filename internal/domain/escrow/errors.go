package escrow

import "errors"

var (
	ErrNotFound      = errors.New("escrow not found")
	ErrNotParty      = errors.New("user is not a party to this escrow")
	ErrStateConflict = errors.New("escrow status transition not allowed")
	// ErrConcurrency marks a lost conditional-update race. Benign for
	// sweeps: someone else already performed the transition.
	ErrConcurrency   = errors.New("escrow transition lost a concurrent race")
	ErrAlreadyExists = errors.New("order already has an escrow")
	ErrNotDisputed   = errors.New("escrow is not disputed")
	ErrInvalidUpload = errors.New("invalid evidence upload")
	ErrAdminRequired = errors.New("admin privileges required")
)
