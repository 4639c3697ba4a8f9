package wallet

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Gateway models the external settlement rail. Implementations are
// expected to be slow and fallible; outcomes are applied by the Settler.
type Gateway interface {
	SettleDeposit(ctx context.Context, txn *Transaction) error
	SendPayout(ctx context.Context, txn *Transaction) error
}

// SimulatedGateway stands in for a real settlement provider. It sleeps
// for the configured delay and fails a configurable fraction of calls.
type SimulatedGateway struct {
	Delay       time.Duration
	FailureRate float64
}

func (g *SimulatedGateway) SettleDeposit(ctx context.Context, txn *Transaction) error {
	return g.simulate(ctx)
}

func (g *SimulatedGateway) SendPayout(ctx context.Context, txn *Transaction) error {
	return g.simulate(ctx)
}

func (g *SimulatedGateway) simulate(ctx context.Context) error {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if g.FailureRate > 0 && rand.Float64() < g.FailureRate {
		return errors.New("settlement declined")
	}
	return nil
}

type settlementKind int

const (
	settleDeposit settlementKind = iota
	settlePayout
)

type settlementJob struct {
	kind  settlementKind
	txnID uuid.UUID
}

// Settler drives asynchronous deposit settlement and withdrawal payouts.
// A submitted job is not cancellable: once queued it runs to completion,
// and a gateway failure is handled by a compensating reversal rather
// than a silent discard.
type Settler struct {
	repo     *Repository
	gateway  Gateway
	notifier Notifier

	jobs chan settlementJob
	wg   sync.WaitGroup

	workers int

	mu      sync.Mutex
	started bool
	closed  bool
}

func NewSettler(repo *Repository, gateway Gateway, notifier Notifier, workers int) *Settler {
	if workers <= 0 {
		workers = 4
	}
	return &Settler{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		jobs:     make(chan settlementJob, 256),
		workers:  workers,
	}
}

// Start launches the worker pool. Call once.
func (s *Settler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.run()
	}
}

// Stop drains queued jobs and waits for in-flight ones to finish.
func (s *Settler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Settler) SubmitDeposit(txnID uuid.UUID) {
	s.submit(settlementJob{kind: settleDeposit, txnID: txnID})
}

func (s *Settler) SubmitPayout(txnID uuid.UUID) {
	s.submit(settlementJob{kind: settlePayout, txnID: txnID})
}

func (s *Settler) submit(job settlementJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Warn().Str("txn_id", job.txnID.String()).Msg("settler stopped, job dropped")
		return
	}
	s.jobs <- job
}

func (s *Settler) run() {
	defer s.wg.Done()
	// Jobs use a background context: settlement is non-cancellable once
	// submitted, failures compensate instead.
	ctx := context.Background()
	for job := range s.jobs {
		switch job.kind {
		case settleDeposit:
			s.settleDeposit(ctx, job.txnID)
		case settlePayout:
			s.settlePayout(ctx, job.txnID)
		}
	}
}

func (s *Settler) settleDeposit(ctx context.Context, txnID uuid.UUID) {
	txn, err := s.repo.GetTransaction(ctx, txnID)
	if err != nil {
		log.Error().Err(err).Str("txn_id", txnID.String()).Msg("deposit settlement: load failed")
		return
	}

	if err := s.gateway.SettleDeposit(ctx, txn); err != nil {
		if failErr := s.repo.FailDeposit(ctx, txnID); failErr != nil && !errors.Is(failErr, ErrTxAlreadyFinal) {
			log.Error().Err(failErr).Str("txn_id", txnID.String()).Msg("deposit settlement: fail flip failed")
			return
		}
		log.Warn().Err(err).Str("reference", txn.Reference).Msg("deposit settlement declined")
		s.notifyOutcome(ctx, txn.UserID, txnID, TransactionStatusFailed)
		return
	}

	settled, err := s.repo.SettleDeposit(ctx, txnID)
	if err != nil {
		if errors.Is(err, ErrTxAlreadyFinal) {
			return
		}
		log.Error().Err(err).Str("txn_id", txnID.String()).Msg("deposit settlement: apply failed")
		return
	}
	log.Info().
		Str("reference", settled.Reference).
		Int64("amount", settled.Amount).
		Msg("deposit settled")
	s.notifyOutcome(ctx, settled.UserID, settled.ID, settled.Status)
}

func (s *Settler) settlePayout(ctx context.Context, txnID uuid.UUID) {
	txn, err := s.repo.GetTransaction(ctx, txnID)
	if err != nil {
		log.Error().Err(err).Str("txn_id", txnID.String()).Msg("payout: load failed")
		return
	}

	if err := s.gateway.SendPayout(ctx, txn); err != nil {
		if revErr := s.repo.ReverseWithdrawal(ctx, txnID); revErr != nil && !errors.Is(revErr, ErrTxAlreadyFinal) {
			log.Error().Err(revErr).Str("txn_id", txnID.String()).Msg("payout: reversal failed")
			return
		}
		log.Warn().Err(err).Str("reference", txn.Reference).Msg("payout declined, withdrawal reversed")
		s.notifyOutcome(ctx, txn.UserID, txnID, TransactionStatusFailed)
		return
	}

	completed, err := s.repo.CompleteWithdrawal(ctx, txnID)
	if err != nil {
		if errors.Is(err, ErrTxAlreadyFinal) {
			return
		}
		log.Error().Err(err).Str("txn_id", txnID.String()).Msg("payout: completion failed")
		return
	}
	log.Info().
		Str("reference", completed.Reference).
		Int64("amount", completed.Amount).
		Msg("withdrawal paid out")
	s.notifyOutcome(ctx, completed.UserID, completed.ID, completed.Status)
}

// notifyOutcome pushes the settled transaction state to the owner's
// sessions so balances refresh without polling.
func (s *Settler) notifyOutcome(ctx context.Context, userID, txnID uuid.UUID, status TransactionStatus) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, EventTransactionUpdate, map[string]any{
		"transaction_id": txnID,
		"status":         status,
	})
}
