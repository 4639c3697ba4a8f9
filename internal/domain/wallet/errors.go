package wallet

import "errors"

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrLimitExceeded     = errors.New("withdrawal limit exceeded")
	ErrKYCRequired       = errors.New("kyc verification required")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrTxNotFound        = errors.New("transaction not found")
	ErrPINNotSet         = errors.New("wallet pin not set")
	ErrPINMismatch       = errors.New("wallet pin mismatch")
	ErrSelfTransfer      = errors.New("cannot transfer to own wallet")
	ErrTxAlreadyFinal    = errors.New("transaction already in a terminal status")
	ErrDuplicateAccount  = errors.New("account number already taken")
)
