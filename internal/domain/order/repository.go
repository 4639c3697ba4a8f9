package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/soko/soko-api/internal/pkg/reference"
)

const orderRefPrefix = "ORD"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const orderColumns = `id, order_number, buyer_id, seller_id, status, payment_status,
	escrow_id, shipping_cost, total_amount, created_at, updated_at`

// Create persists the order and its items as one unit.
func (r *Repository) Create(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for {
		o.OrderNumber = reference.New(orderRefPrefix)
		var taken bool
		err := tx.GetContext(ctx, &taken,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, o.OrderNumber)
		if err != nil {
			return err
		}
		if !taken {
			break
		}
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, buyer_id, seller_id, status,
			payment_status, escrow_id, shipping_cost, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.OrderNumber, o.BuyerID, o.SellerID, string(o.Status),
		string(o.PaymentStatus), o.EscrowID, o.ShippingCost, o.TotalAmount,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = o.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order
	err := r.db.GetContext(ctx, &o,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &o.Items, `
		SELECT id, order_id, product_id, quantity, unit_price, total_price
		FROM order_items WHERE order_id = $1
	`, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+` FROM orders
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return orders, err
}

// UpdateStatus applies a guarded status change conditionally: the row
// must still be in the expected status, otherwise the caller lost a
// race and gets ErrStateConflict.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, string(to), id, string(from))
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

// UpdateStatusTx is UpdateStatus inside the caller's transaction; the
// escrow service uses it so order completion commits with the release.
func (r *Repository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to Status) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, string(to), id, string(from))
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

func (r *Repository) SetPaymentStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status PaymentStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = now()
		WHERE id = $2
	`, string(status), id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotFound)
}

func (r *Repository) SetEscrowTx(ctx context.Context, tx *sqlx.Tx, id, escrowID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET escrow_id = $1, updated_at = now()
		WHERE id = $2 AND escrow_id IS NULL
	`, escrowID, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrAlreadyEscrowed)
}

// FinalizeTx forces an order into a terminal status from whatever
// non-terminal state it is in. Escrow settlement uses it: a refund must
// close the order regardless of how far fulfilment progressed.
func (r *Repository) FinalizeTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, to Status) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = now()
		WHERE id = $2 AND status NOT IN ('completed', 'cancelled', 'refunded')
	`, string(to), id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrStateConflict)
}

// ReplaceItems swaps the order's items and recomputes the total in one
// transaction. Only allowed while the order is still pending.
func (r *Repository) ReplaceItems(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return err
	}
	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = o.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET total_amount = $1, shipping_cost = $2, updated_at = now()
		WHERE id = $3 AND status = 'pending'
	`, o.TotalAmount, o.ShippingCost, o.ID)
	if err != nil {
		return err
	}
	if err := requireRow(res, ErrStateConflict); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
