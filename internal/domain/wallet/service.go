package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/soko/soko-api/internal/pkg/pin"
)

// Notifier receives fire-and-forget wallet events. Delivery failures are
// logged by the implementation, never propagated to the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload any)
}

// Event names pushed to the owning user's sessions.
const (
	EventBalanceChanged    = "wallet:balance"
	EventTransactionUpdate = "wallet:transaction"
)

type Service struct {
	repo       *Repository
	settler    *Settler
	pinLimiter *pin.AttemptLimiter
	notifier   Notifier
}

func NewService(repo *Repository, settler *Settler, pinLimiter *pin.AttemptLimiter, notifier Notifier) *Service {
	return &Service{repo: repo, settler: settler, pinLimiter: pinLimiter, notifier: notifier}
}

// GetOrCreateWallet returns the user's wallet, creating it lazily.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

// GetBalance returns balance, pending hold and available balance.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

// SetPIN hashes and stores the withdrawal PIN for the user's wallet.
func (s *Service) SetPIN(ctx context.Context, userID uuid.UUID, rawPIN string) error {
	if _, err := s.repo.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	hash, err := pin.Hash(rawPIN)
	if err != nil {
		return err
	}
	return s.repo.SetPINHash(ctx, userID, hash)
}

// SetKYCLevel updates the verification tier. Admin-gated at the routes.
func (s *Service) SetKYCLevel(ctx context.Context, userID uuid.UUID, level KYCLevel) error {
	switch level {
	case KYCLevelBasic, KYCLevelVerified, KYCLevelBusiness:
	default:
		return ErrInvalidAmount
	}
	if _, err := s.repo.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return s.repo.SetKYCLevel(ctx, userID, level)
}

// Deposit creates a pending deposit and hands it to the settlement
// worker. The balance is only credited once the external settlement
// confirms.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	txn, err := s.repo.CreateDeposit(ctx, userID, amount, method)
	if err != nil {
		return nil, err
	}
	s.settler.SubmitDeposit(txn.ID)
	log.Info().
		Str("user_id", userID.String()).
		Str("reference", txn.Reference).
		Int64("amount", amount).
		Msg("deposit submitted for settlement")
	return txn, nil
}

// Withdraw verifies the PIN, runs the withdrawal guards and places the
// hold, then hands the payout to the settlement worker. A failed payout
// is compensated by the settler.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, destination, rawPIN string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	w, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyPIN(ctx, w, rawPIN); err != nil {
		return nil, err
	}
	if err := w.CheckWithdraw(amount, time.Now()); err != nil {
		return nil, err
	}

	txn, err := s.repo.BeginWithdrawal(ctx, userID, amount, destination)
	if err != nil {
		return nil, err
	}
	s.settler.SubmitPayout(txn.ID)
	s.notify(ctx, userID, EventBalanceChanged, map[string]any{"transaction_id": txn.ID})
	log.Info().
		Str("user_id", userID.String()).
		Str("reference", txn.Reference).
		Int64("amount", amount).
		Msg("withdrawal submitted for payout")
	return txn, nil
}

// Transfer moves funds to another wallet identified by account number.
// The debit and credit rows commit as one unit.
func (s *Service) Transfer(ctx context.Context, userID uuid.UUID, amount int64, recipientAccount, rawPIN, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	w, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyPIN(ctx, w, rawPIN); err != nil {
		return nil, err
	}

	debit, credit, err := s.repo.Transfer(ctx, userID, recipientAccount, amount, description)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, debit.UserID, EventBalanceChanged, map[string]any{"transaction_id": debit.ID})
	s.notify(ctx, credit.UserID, EventBalanceChanged, map[string]any{"transaction_id": credit.ID})
	log.Info().
		Str("user_id", userID.String()).
		Str("reference", debit.Reference).
		Int64("amount", amount).
		Msg("transfer applied")
	return debit, nil
}

func (s *Service) verifyPIN(ctx context.Context, w *Wallet, rawPIN string) error {
	if !w.HasPIN() {
		return ErrPINNotSet
	}
	if err := s.pinLimiter.Check(ctx, w.UserID); err != nil {
		return err
	}
	if !pin.Verify(rawPIN, *w.PINHash) {
		s.pinLimiter.RecordFailure(ctx, w.UserID)
		return ErrPINMismatch
	}
	s.pinLimiter.Reset(ctx, w.UserID)
	return nil
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, event string, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, event, payload)
}
