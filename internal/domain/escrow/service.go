package escrow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/soko/soko-api/internal/domain/order"
	"github.com/soko/soko-api/internal/domain/wallet"
	"github.com/soko/soko-api/internal/pkg/storage"
)

// Notifier delivers escrow lifecycle events to a user's sessions.
// Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload any)
}

const EventStatus = "escrow:status"

type Service struct {
	repo           *Repository
	wallets        *wallet.Repository
	orders         *order.Repository
	files          storage.Storage
	notifier       Notifier
	feeBps         int64
	releaseTimeout time.Duration
}

func NewService(repo *Repository, wallets *wallet.Repository, orders *order.Repository,
	files storage.Storage, notifier Notifier, feeBps int64, releaseTimeout time.Duration) *Service {
	if releaseTimeout <= 0 {
		releaseTimeout = DefaultReleaseTimeout
	}
	return &Service{
		repo:           repo,
		wallets:        wallets,
		orders:         orders,
		files:          files,
		notifier:       notifier,
		feeBps:         feeBps,
		releaseTimeout: releaseTimeout,
	}
}

// CreateForOrder opens an escrow covering the order total. The order is
// bound to the escrow in the same commit, so a second attempt fails on
// the escrow_id guard.
func (s *Service) CreateForOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*Escrow, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, ErrNotParty
	}
	if o.EscrowID != nil {
		return nil, ErrAlreadyExists
	}
	if o.TotalAmount <= 0 {
		return nil, ErrStateConflict
	}

	e := &Escrow{
		OrderID:        o.ID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		Amount:         o.TotalAmount,
		Fee:            o.TotalAmount * s.feeBps / 10000,
		Status:         StatusCreated,
		ReleaseTimeout: s.releaseTimeout,
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.CreateTx(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := s.orders.SetEscrowTx(ctx, tx, o.ID, e.ID); err != nil {
		if errors.Is(err, order.ErrAlreadyEscrowed) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, e)
	return e, nil
}

func (s *Service) Get(ctx context.Context, actorID uuid.UUID, isAdmin bool, id uuid.UUID) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !e.IsParty(actorID) {
		return nil, ErrNotParty
	}
	return e, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Escrow, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Fund debits the buyer and marks the escrow funded in one commit. The
// order's payment flips to completed at the same time, which locks out
// late order cancellation.
func (s *Service) Fund(ctx context.Context, buyerID, id uuid.UUID) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.BuyerID != buyerID {
		return nil, ErrNotParty
	}
	if e.Status != StatusCreated {
		return nil, ErrStateConflict
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := s.wallets.DebitTx(ctx, tx, wallet.EntryParams{
		UserID:      e.BuyerID,
		Type:        wallet.TransactionTypePayment,
		Amount:      e.Amount,
		OrderID:     &e.OrderID,
		EscrowID:    &e.ID,
		Description: fmt.Sprintf("Escrow funding %s", e.ID),
	}); err != nil {
		return nil, err
	}
	if err := s.repo.MarkFundedTx(ctx, tx, e.ID); err != nil {
		return nil, err
	}
	if err := s.orders.SetPaymentStatusTx(ctx, tx, e.OrderID, order.PaymentStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

// SellerConfirm records the seller's acceptance of the escrow terms.
func (s *Service) SellerConfirm(ctx context.Context, sellerID, id uuid.UUID) error {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e.SellerID != sellerID {
		return ErrNotParty
	}
	if !e.CanSellerConfirm() {
		return ErrStateConflict
	}
	return s.repo.SetSellerConfirmed(ctx, id)
}

func (s *Service) MarkShipped(ctx context.Context, sellerID, id uuid.UUID, trackingNumber, carrier string) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.SellerID != sellerID {
		return nil, ErrNotParty
	}
	if e.Status != StatusFunded {
		return nil, ErrStateConflict
	}
	if err := s.repo.MarkShipped(ctx, id, trackingNumber, carrier); err != nil {
		return nil, err
	}
	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

// MarkDelivered is the seller's (or an admin's) delivery notice:
// shipped -> delivered, and the auto-release clock starts counting.
// The buyer's confirmation stays a separate signal, so a buyer who
// goes silent only delays the payout until the deadline.
func (s *Service) MarkDelivered(ctx context.Context, actorID uuid.UUID, isAdmin bool, id uuid.UUID) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && e.SellerID != actorID {
		return nil, ErrNotParty
	}
	if !e.CanMarkDelivered() {
		return nil, ErrStateConflict
	}
	if err := s.repo.MarkDelivered(ctx, id, time.Now().Add(s.timeoutFor(e))); err != nil {
		return nil, err
	}
	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

// ConfirmDelivery is the buyer's acknowledgement, which unlocks release
// before the deadline. Confirming a still-shipped escrow marks it
// delivered first.
func (s *Service) ConfirmDelivery(ctx context.Context, buyerID, id uuid.UUID) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.BuyerID != buyerID {
		return nil, ErrNotParty
	}
	if !e.CanBuyerConfirm() {
		return nil, ErrStateConflict
	}

	if e.Status == StatusShipped {
		if err := s.repo.MarkDelivered(ctx, id, time.Now().Add(s.timeoutFor(e))); err != nil {
			return nil, err
		}
	}
	if err := s.repo.SetBuyerConfirmed(ctx, id); err != nil {
		return nil, err
	}
	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

func (s *Service) timeoutFor(e *Escrow) time.Duration {
	if e.ReleaseTimeout > 0 {
		return e.ReleaseTimeout
	}
	return s.releaseTimeout
}

// Release pays the seller. Buyer-initiated after delivery confirmation;
// the sweep calls the same path when the deadline passes.
func (s *Service) Release(ctx context.Context, actorID uuid.UUID, isAdmin bool, id uuid.UUID) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && e.BuyerID != actorID {
		return nil, ErrNotParty
	}
	if !e.CanRelease(time.Now()) {
		return nil, ErrStateConflict
	}
	if err := s.release(ctx, e); err != nil {
		return nil, err
	}
	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

// release performs the payout. ClaimReleaseTx is the race arbiter:
// whoever flips the status writes the seller credit, everyone else gets
// ErrConcurrency and must not retry.
func (s *Service) release(ctx context.Context, e *Escrow) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.repo.ClaimReleaseTx(ctx, tx, e.ID); err != nil {
		return err
	}
	if net := e.SellerNet(); net > 0 {
		if _, err := s.wallets.CreditTx(ctx, tx, wallet.EntryParams{
			UserID:      e.SellerID,
			Type:        wallet.TransactionTypeEscrowRelease,
			Amount:      net,
			Fee:         e.Fee,
			OrderID:     &e.OrderID,
			EscrowID:    &e.ID,
			Description: fmt.Sprintf("Escrow release %s", e.ID),
		}); err != nil {
			return err
		}
	}
	if err := s.completeOrder(ctx, tx, e.OrderID, order.StatusCompleted); err != nil {
		return err
	}
	return tx.Commit()
}

// Cancel aborts a pre-delivery escrow. If the buyer already paid, the
// full amount comes back in the same commit.
func (s *Service) Cancel(ctx context.Context, actorID, id uuid.UUID) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.CanCancel(actorID) {
		if !e.IsParty(actorID) {
			return nil, ErrNotParty
		}
		return nil, ErrStateConflict
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.MarkCancelledTx(ctx, tx, e.ID, e.Status); err != nil {
		return nil, err
	}
	if e.HoldsFunds() {
		if _, err := s.wallets.CreditTx(ctx, tx, wallet.EntryParams{
			UserID:      e.BuyerID,
			Type:        wallet.TransactionTypeEscrowRefund,
			Amount:      e.Amount,
			OrderID:     &e.OrderID,
			EscrowID:    &e.ID,
			Description: fmt.Sprintf("Escrow refund %s", e.ID),
		}); err != nil {
			return nil, err
		}
		if err := s.orders.SetPaymentStatusTx(ctx, tx, e.OrderID, order.PaymentStatusRefunded); err != nil {
			return nil, err
		}
	}
	if err := s.completeOrder(ctx, tx, e.OrderID, order.StatusCancelled); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

// OpenDispute freezes release until an admin resolves.
func (s *Service) OpenDispute(ctx context.Context, actorID, id uuid.UUID, reason string) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsParty(actorID) {
		return nil, ErrNotParty
	}
	if !e.CanDispute(actorID) {
		return nil, ErrStateConflict
	}
	if err := s.repo.OpenDispute(ctx, id, reason); err != nil {
		return nil, err
	}
	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

// ResolveDispute settles a disputed escrow. Exactly one resolution
// lands: the conditional update arbitrates concurrent admins.
func (s *Service) ResolveDispute(ctx context.Context, id uuid.UUID, resolution Resolution) (*Escrow, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusDisputed {
		return nil, ErrNotDisputed
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	switch resolution {
	case ResolutionBuyer, ResolutionRefund:
		if err := s.repo.ResolveDisputeTx(ctx, tx, e.ID, resolution, StatusRefunded); err != nil {
			return nil, err
		}
		if _, err := s.wallets.CreditTx(ctx, tx, wallet.EntryParams{
			UserID:      e.BuyerID,
			Type:        wallet.TransactionTypeEscrowRefund,
			Amount:      e.Amount,
			OrderID:     &e.OrderID,
			EscrowID:    &e.ID,
			Description: fmt.Sprintf("Dispute refund %s", e.ID),
		}); err != nil {
			return nil, err
		}
		if err := s.orders.SetPaymentStatusTx(ctx, tx, e.OrderID, order.PaymentStatusRefunded); err != nil {
			return nil, err
		}
		if err := s.completeOrder(ctx, tx, e.OrderID, order.StatusRefunded); err != nil {
			return nil, err
		}

	case ResolutionSeller:
		if err := s.repo.ResolveDisputeTx(ctx, tx, e.ID, resolution, StatusReleased); err != nil {
			return nil, err
		}
		if net := e.SellerNet(); net > 0 {
			if _, err := s.wallets.CreditTx(ctx, tx, wallet.EntryParams{
				UserID:      e.SellerID,
				Type:        wallet.TransactionTypeEscrowRelease,
				Amount:      net,
				Fee:         e.Fee,
				OrderID:     &e.OrderID,
				EscrowID:    &e.ID,
				Description: fmt.Sprintf("Dispute release %s", e.ID),
			}); err != nil {
				return nil, err
			}
		}
		if err := s.completeOrder(ctx, tx, e.OrderID, order.StatusCompleted); err != nil {
			return nil, err
		}

	case ResolutionSplit:
		if err := s.repo.ResolveDisputeTx(ctx, tx, e.ID, resolution, StatusReleased); err != nil {
			return nil, err
		}
		buyerShare, sellerNet := e.SplitShares()
		if buyerShare > 0 {
			if _, err := s.wallets.CreditTx(ctx, tx, wallet.EntryParams{
				UserID:      e.BuyerID,
				Type:        wallet.TransactionTypeEscrowRefund,
				Amount:      buyerShare,
				OrderID:     &e.OrderID,
				EscrowID:    &e.ID,
				Description: fmt.Sprintf("Dispute split refund %s", e.ID),
			}); err != nil {
				return nil, err
			}
		}
		if sellerNet > 0 {
			if _, err := s.wallets.CreditTx(ctx, tx, wallet.EntryParams{
				UserID:      e.SellerID,
				Type:        wallet.TransactionTypeEscrowRelease,
				Amount:      sellerNet,
				Fee:         (e.Amount - buyerShare) - sellerNet,
				OrderID:     &e.OrderID,
				EscrowID:    &e.ID,
				Description: fmt.Sprintf("Dispute split release %s", e.ID),
			}); err != nil {
				return nil, err
			}
		}
		if err := s.completeOrder(ctx, tx, e.OrderID, order.StatusCompleted); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown resolution %q", resolution)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, e)
	return e, nil
}

// AttachEvidence stores a dispute attachment and records it against the
// escrow. Only parties of a disputed escrow may upload.
func (s *Service) AttachEvidence(ctx context.Context, actorID, id uuid.UUID,
	fileName string, body io.Reader, note string) (*Evidence, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsParty(actorID) {
		return nil, ErrNotParty
	}
	if e.Status != StatusDisputed {
		return nil, ErrNotDisputed
	}

	name := sanitizeFileName(fileName)
	if name == "" {
		return nil, ErrInvalidUpload
	}
	buf, detectedType, err := storage.ValidateAndBuffer(body, storage.CategoryEvidence)
	if err != nil {
		return nil, ErrInvalidUpload
	}
	key := fmt.Sprintf("evidence/%s/%s_%s", e.ID, uuid.New().String()[:8], name)
	if err := s.files.Put(ctx, key, buf, detectedType); err != nil {
		return nil, fmt.Errorf("save evidence: %w", err)
	}

	ev := &Evidence{
		EscrowID:   e.ID,
		UploaderID: actorID,
		ObjectKey:  key,
		FileName:   name,
		Note:       note,
	}
	if err := s.repo.AddEvidence(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Service) ListEvidence(ctx context.Context, actorID uuid.UUID, isAdmin bool, id uuid.UUID) ([]Evidence, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !e.IsParty(actorID) {
		return nil, ErrNotParty
	}
	return s.repo.ListEvidence(ctx, id)
}

func (s *Service) EvidenceURL(ev *Evidence) string {
	return s.files.GetURL(ev.ObjectKey)
}

// completeOrder moves the order to its terminal state alongside the
// escrow settlement. A conflict means the order already reached a
// terminal state through its own flow, which is fine here.
func (s *Service) completeOrder(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, to order.Status) error {
	err := s.orders.FinalizeTx(ctx, tx, orderID, to)
	if errors.Is(err, order.ErrStateConflict) {
		return nil
	}
	return err
}

func (s *Service) notifyStatus(ctx context.Context, e *Escrow) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{
		"escrow_id": e.ID,
		"order_id":  e.OrderID,
		"status":    e.Status,
	}
	s.notifier.Notify(ctx, e.BuyerID, EventStatus, payload)
	s.notifier.Notify(ctx, e.SellerID, EventStatus, payload)
}

func (s *Service) notifyStatusByID(ctx context.Context, id uuid.UUID) {
	if s.notifier == nil {
		return
	}
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return
	}
	s.notifyStatus(ctx, e)
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || len(name) > 200 {
		return ""
	}
	return name
}
