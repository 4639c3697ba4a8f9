package escrow

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/soko/soko-api/internal/pkg/reference"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const escrowRefPrefix = "ESC"

const escrowColumns = `id, reference, order_id, buyer_id, seller_id, amount, fee, status,
	buyer_confirmed, seller_confirmed, buyer_confirmed_at, seller_confirmed_at,
	auto_release_at, release_timeout, disputed, dispute_reason,
	dispute_opened_at, dispute_resolved_at, dispute_resolution,
	tracking_number, carrier, funded_at, shipped_at, delivered_at,
	released_at, cancelled_at, created_at, updated_at`

// DB exposes the handle so the service can run multi-table commits
// (wallet entries + escrow transition + order update as one unit).
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

func (r *Repository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// CreateTx inserts the escrow within the caller's transaction. The
// unique order_id index enforces the 1:1 order-escrow coupling.
func (r *Repository) CreateTx(ctx context.Context, tx *sqlx.Tx, e *Escrow) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	for {
		e.Reference = reference.New(escrowRefPrefix)
		var taken bool
		err := tx.GetContext(ctx, &taken,
			`SELECT EXISTS (SELECT 1 FROM escrows WHERE reference = $1)`, e.Reference)
		if err != nil {
			return err
		}
		if !taken {
			break
		}
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt

	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrows (id, reference, order_id, buyer_id, seller_id, amount, fee,
			status, release_timeout, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.Reference, e.OrderID, e.BuyerID, e.SellerID, e.Amount, e.Fee,
		string(e.Status), e.ReleaseTimeout, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Escrow, error) {
	var e Escrow
	err := r.db.GetContext(ctx, &e,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Escrow, error) {
	var e Escrow
	err := r.db.GetContext(ctx, &e,
		`SELECT `+escrowColumns+` FROM escrows WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) lockByID(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Escrow, error) {
	var e Escrow
	err := tx.GetContext(ctx, &e,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkFundedTx transitions created -> funded conditionally. The funded
// timestamp is written once: COALESCE keeps the first value.
func (r *Repository) MarkFundedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'funded', funded_at = COALESCE(funded_at, now()), updated_at = now()
		WHERE id = $1 AND status = 'created'
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

func (r *Repository) SetSellerConfirmed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escrows
		SET seller_confirmed = true,
		    seller_confirmed_at = COALESCE(seller_confirmed_at, now()),
		    updated_at = now()
		WHERE id = $1 AND status = 'created' AND seller_confirmed = false
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

func (r *Repository) MarkShipped(ctx context.Context, id uuid.UUID, trackingNumber, carrier string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'shipped',
		    shipped_at = COALESCE(shipped_at, now()),
		    tracking_number = $2,
		    carrier = $3,
		    updated_at = now()
		WHERE id = $1 AND status = 'funded'
	`, id, nullable(trackingNumber), nullable(carrier))
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

// MarkDelivered progresses shipped -> delivered and arms the
// auto-release deadline. Buyer confirmation is a separate flag, written
// by SetBuyerConfirmed; a buyer who stays silent leaves the deadline to
// force the payout. The deadline is written only on the first entry
// into delivered.
func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID, autoReleaseAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'delivered',
		    delivered_at = COALESCE(delivered_at, now()),
		    auto_release_at = COALESCE(auto_release_at, $2),
		    updated_at = now()
		WHERE id = $1 AND status = 'shipped' AND disputed = false
	`, id, autoReleaseAt)
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

// SetBuyerConfirmed records the buyer's delivery acknowledgement, once,
// on a delivered escrow.
func (r *Repository) SetBuyerConfirmed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escrows
		SET buyer_confirmed = true,
		    buyer_confirmed_at = COALESCE(buyer_confirmed_at, now()),
		    updated_at = now()
		WHERE id = $1 AND status = 'delivered' AND buyer_confirmed = false AND disputed = false
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

// ClaimReleaseTx is the compare-and-swap that guarantees exactly-once
// release: only the caller that flips delivered -> released performs
// the payout. Zero rows affected means another worker won the race.
func (r *Repository) ClaimReleaseTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'released',
		    released_at = COALESCE(released_at, now()),
		    updated_at = now()
		WHERE id = $1 AND status = 'delivered' AND disputed = false
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrConcurrency)
}

// MarkCancelledTx transitions a pre-delivery escrow to cancelled.
func (r *Repository) MarkCancelledTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from Status) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'cancelled',
		    cancelled_at = COALESCE(cancelled_at, now()),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(from))
	if err != nil {
		return err
	}
	return requireRow(res, ErrConcurrency)
}

// OpenDispute flips a delivered escrow into the disputed state. The
// opened timestamp is recorded once.
func (r *Repository) OpenDispute(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'disputed',
		    disputed = true,
		    dispute_reason = $2,
		    dispute_opened_at = COALESCE(dispute_opened_at, now()),
		    updated_at = now()
		WHERE id = $1 AND status = 'delivered' AND disputed = false
	`, id, reason)
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

// ResolveDisputeTx settles a disputed escrow to exactly one terminal
// status. Conditional on still being disputed so concurrent admins
// cannot double-settle.
func (r *Repository) ResolveDisputeTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, resolution Resolution, terminal Status) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET status = $2,
		    dispute_resolution = $3,
		    dispute_resolved_at = COALESCE(dispute_resolved_at, now()),
		    released_at = CASE WHEN $2 = 'released' THEN COALESCE(released_at, now()) ELSE released_at END,
		    cancelled_at = CASE WHEN $2 = 'refunded' THEN COALESCE(cancelled_at, now()) ELSE cancelled_at END,
		    updated_at = now()
		WHERE id = $1 AND status = 'disputed' AND dispute_resolved_at IS NULL
	`, id, string(terminal), string(resolution))
	if err != nil {
		return err
	}
	return requireRow(res, ErrConcurrency)
}

// ListDueForRelease selects escrows the auto-release sweep should
// attempt: delivered, past deadline, undisputed.
func (r *Repository) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	var due []Escrow
	err := r.db.SelectContext(ctx, &due, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = 'delivered' AND disputed = false AND auto_release_at <= $1
		ORDER BY auto_release_at
		LIMIT $2
	`, now, limit)
	return due, err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Escrow, error) {
	if limit <= 0 {
		limit = 20
	}
	var escrows []Escrow
	err := r.db.SelectContext(ctx, &escrows, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return escrows, err
}

func (r *Repository) AddEvidence(ctx context.Context, ev *Evidence) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escrow_evidence (id, escrow_id, uploader_id, object_key, file_name, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.EscrowID, ev.UploaderID, ev.ObjectKey, ev.FileName, ev.Note, ev.CreatedAt)
	return err
}

func (r *Repository) ListEvidence(ctx context.Context, escrowID uuid.UUID) ([]Evidence, error) {
	var evidence []Evidence
	err := r.db.SelectContext(ctx, &evidence, `
		SELECT id, escrow_id, uploader_id, object_key, file_name, note, created_at
		FROM escrow_evidence WHERE escrow_id = $1
		ORDER BY created_at
	`, escrowID)
	return evidence, err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return conflict
	}
	return nil
}
