package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ReleaseJob sweeps delivered escrows past their auto-release deadline
// and pays the seller. Multiple instances may run concurrently: the
// conditional status flip makes each release land exactly once, losing
// sweeps see ErrConcurrency and move on.
type ReleaseJob struct {
	service   *Service
	batchSize int
}

func NewReleaseJob(service *Service, batchSize int) *ReleaseJob {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReleaseJob{
		service:   service,
		batchSize: batchSize,
	}
}

// Start runs the sweep on the given interval until ctx is cancelled.
func (j *ReleaseJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	j.run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Escrow release job stopped")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *ReleaseJob) run(ctx context.Context) {
	released, err := j.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Escrow release sweep failed")
		return
	}
	if released > 0 {
		log.Info().Int("released", released).Msg("Auto-released escrows")
	}
}

// RunOnce performs a single sweep and returns how many escrows this
// instance released.
func (j *ReleaseJob) RunOnce(ctx context.Context) (int, error) {
	now := time.Now()
	due, err := j.service.repo.ListDueForRelease(ctx, now, j.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range due {
		e := &due[i]
		if !e.CanRelease(now) {
			continue
		}
		if err := j.service.release(ctx, e); err != nil {
			if errors.Is(err, ErrConcurrency) {
				continue
			}
			log.Error().Err(err).
				Str("escrow_id", e.ID.String()).
				Msg("Failed to auto-release escrow")
			continue
		}
		released++
		j.service.notifyStatusByID(ctx, e.ID)
	}
	return released, nil
}
