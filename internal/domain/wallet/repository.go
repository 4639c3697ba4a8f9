package wallet

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

const txnRefPrefix = "TXN"

// Defaults seed newly created wallets.
type Defaults struct {
	Currency        string
	WithdrawalLimit int64
	DailyTxLimit    int
	MonthlyTxLimit  int
}

type Repository struct {
	db       *sqlx.DB
	defaults Defaults
}

func NewRepository(db *sqlx.DB, defaults Defaults) *Repository {
	if defaults.Currency == "" {
		defaults.Currency = "USD"
	}
	return &Repository{db: db, defaults: defaults}
}

const walletColumns = `id, user_id, balance, pending_balance, currency, account_number,
	pin_hash, kyc_level, withdrawal_limit, daily_withdrawn, last_reset,
	daily_tx_limit, monthly_tx_limit, created_at, updated_at`

const txnColumns = `id, wallet_id, user_id, type, amount, fee, status, reference,
	balance_before, balance_after, description, order_id, escrow_id,
	recipient_wallet_id, recipient_user_id, created_at, completed_at`

// GetOrCreate returns the user's wallet, creating it lazily with a zero
// balance and a freshly generated unique account number.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	w, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO user_wallets (id, user_id, balance, pending_balance, currency,
				account_number, kyc_level, withdrawal_limit, daily_withdrawn,
				last_reset, daily_tx_limit, monthly_tx_limit)
			VALUES ($1, $2, 0, 0, $3, $4, 'basic', $5, 0, now(), $6, $7)
			ON CONFLICT (user_id) DO NOTHING
		`, uuid.New(), userID, r.defaults.Currency, reference.NewAccountNumber(),
			r.defaults.WithdrawalLimit, r.defaults.DailyTxLimit, r.defaults.MonthlyTxLimit)
		if err == nil {
			break
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Account number collision, regenerate and retry.
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, ErrDuplicateAccount
	}

	return r.GetByUserID(ctx, userID)
}

func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := r.db.GetContext(ctx, &w,
		`SELECT `+walletColumns+` FROM user_wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) GetByAccountNumber(ctx context.Context, accountNumber string) (*Wallet, error) {
	var w Wallet
	err := r.db.GetContext(ctx, &w,
		`SELECT `+walletColumns+` FROM user_wallets WHERE account_number = $1`, accountNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) SetPINHash(ctx context.Context, userID uuid.UUID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_wallets SET pin_hash = $1, updated_at = now() WHERE user_id = $2`,
		hash, userID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrWalletNotFound)
}

func (r *Repository) SetKYCLevel(ctx context.Context, userID uuid.UUID, level KYCLevel) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_wallets SET kyc_level = $1, updated_at = now() WHERE user_id = $2`,
		level, userID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrWalletNotFound)
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var t Transaction
	err := r.db.GetContext(ctx, &t,
		`SELECT `+txnColumns+` FROM wallet_transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var txns []Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT `+txnColumns+` FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return txns, err
}

// SumCompletedDeltas replays the ledger for a wallet: the sum of
// balance_after - balance_before over completed rows. At quiescence it
// must equal the wallet balance.
func (r *Repository) SumCompletedDeltas(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(balance_after - balance_before), 0)
		FROM wallet_transactions
		WHERE wallet_id = $1 AND status = 'completed'
	`, walletID)
	return sum, err
}

// CreateDeposit inserts a pending deposit row. No balance is touched
// until the external settlement confirms.
func (r *Repository) CreateDeposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (*Transaction, error) {
	w, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txn := &Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		UserID:      userID,
		Type:        TransactionTypeDeposit,
		Amount:      amount,
		Status:      TransactionStatusPending,
		Description: "deposit via " + method,
	}
	if err := r.insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

// SettleDeposit applies the credit and flips the row to completed in one
// critical section. Safe to call once per deposit; a second call fails
// with ErrTxAlreadyFinal.
func (r *Repository) SettleDeposit(ctx context.Context, txnID uuid.UUID) (*Transaction, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txn, err := r.lockTransaction(ctx, tx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.Status != TransactionStatusPending {
		return nil, ErrTxAlreadyFinal
	}

	w, err := r.lockWallet(ctx, tx, txn.WalletID)
	if err != nil {
		return nil, err
	}

	txn.BalanceBefore = w.Balance
	txn.BalanceAfter = w.Balance + txn.Amount

	if err := r.updateBalance(ctx, tx, w.ID, txn.BalanceAfter, w.PendingBalance); err != nil {
		return nil, err
	}
	if err := r.finalizeTransaction(ctx, tx, txn, TransactionStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

// FailDeposit flips a pending deposit to failed. No balance change was
// made, so none is retained.
func (r *Repository) FailDeposit(ctx context.Context, txnID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallet_transactions SET status = 'failed', completed_at = now()
		WHERE id = $1 AND status = 'pending'
	`, txnID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrTxAlreadyFinal)
}

// BeginWithdrawal re-runs the withdrawal guards under the wallet row
// lock, debits the available balance (pending hold), updates the daily
// counter and inserts the processing row, all in one critical section.
func (r *Repository) BeginWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, destination string) (*Transaction, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := r.lockWalletByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := w.CheckWithdraw(amount, now); err != nil {
		return nil, err
	}
	if err := r.checkTxCountLimits(ctx, tx, w, now); err != nil {
		return nil, err
	}

	dailyWithdrawn := w.EffectiveDailyWithdrawn(now) + amount
	_, err = tx.ExecContext(ctx, `
		UPDATE user_wallets
		SET pending_balance = pending_balance + $1,
		    daily_withdrawn = $2,
		    last_reset      = $3,
		    updated_at      = now()
		WHERE id = $4
	`, amount, dailyWithdrawn, now, w.ID)
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		UserID:      userID,
		Type:        TransactionTypeWithdrawal,
		Amount:      amount,
		Status:      TransactionStatusProcessing,
		Description: "withdrawal to " + destination,
	}
	if err := r.insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

// CompleteWithdrawal settles the payout: the held amount leaves the
// balance and the row flips to completed with its snapshot.
func (r *Repository) CompleteWithdrawal(ctx context.Context, txnID uuid.UUID) (*Transaction, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txn, err := r.lockTransaction(ctx, tx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.Status != TransactionStatusProcessing {
		return nil, ErrTxAlreadyFinal
	}

	w, err := r.lockWallet(ctx, tx, txn.WalletID)
	if err != nil {
		return nil, err
	}

	txn.BalanceBefore = w.Balance
	txn.BalanceAfter = w.Balance - txn.Amount

	if err := r.updateBalance(ctx, tx, w.ID, txn.BalanceAfter, w.PendingBalance-txn.Amount); err != nil {
		return nil, err
	}
	if err := r.finalizeTransaction(ctx, tx, txn, TransactionStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

// ReverseWithdrawal compensates a failed payout: the hold and the daily
// counter contribution are rolled back and the row flips to failed.
func (r *Repository) ReverseWithdrawal(ctx context.Context, txnID uuid.UUID) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	txn, err := r.lockTransaction(ctx, tx, txnID)
	if err != nil {
		return err
	}
	if txn.Status != TransactionStatusProcessing {
		return ErrTxAlreadyFinal
	}

	w, err := r.lockWallet(ctx, tx, txn.WalletID)
	if err != nil {
		return err
	}

	dailyWithdrawn := w.DailyWithdrawn - txn.Amount
	if dailyWithdrawn < 0 {
		dailyWithdrawn = 0
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE user_wallets
		SET pending_balance = pending_balance - $1,
		    daily_withdrawn = $2,
		    updated_at      = now()
		WHERE id = $3
	`, txn.Amount, dailyWithdrawn, w.ID)
	if err != nil {
		return err
	}
	if err := r.finalizeTransaction(ctx, tx, txn, TransactionStatusFailed); err != nil {
		return err
	}
	return tx.Commit()
}

// Transfer moves funds between two wallets as one all-or-nothing unit:
// both balances and both ledger rows commit together. Wallets are locked
// in ascending id order to avoid deadlock between crossing transfers.
func (r *Repository) Transfer(ctx context.Context, fromUserID uuid.UUID, toAccountNumber string, amount int64, description string) (*Transaction, *Transaction, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	from, err := r.GetOrCreate(ctx, fromUserID)
	if err != nil {
		return nil, nil, err
	}
	to, err := r.GetByAccountNumber(ctx, toAccountNumber)
	if err != nil {
		return nil, nil, err
	}
	if from.ID == to.ID {
		return nil, nil, ErrSelfTransfer
	}

	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	// Fixed global lock order: ascending wallet id.
	first, second := from.ID, to.ID
	if second.String() < first.String() {
		first, second = second, first
	}
	locked := make(map[uuid.UUID]*Wallet, 2)
	for _, id := range []uuid.UUID{first, second} {
		w, err := r.lockWallet(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = w
	}
	from, to = locked[from.ID], locked[to.ID]

	if from.AvailableBalance() < amount {
		return nil, nil, ErrInsufficientFunds
	}
	if err := r.checkTxCountLimits(ctx, tx, from, time.Now()); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	debit := &Transaction{
		ID:                uuid.New(),
		WalletID:          from.ID,
		UserID:            from.UserID,
		Type:              TransactionTypeTransfer,
		Amount:            amount,
		Status:            TransactionStatusCompleted,
		BalanceBefore:     from.Balance,
		BalanceAfter:      from.Balance - amount,
		Description:       description,
		RecipientWalletID: &to.ID,
		RecipientUserID:   &to.UserID,
		CompletedAt:       &now,
	}
	credit := &Transaction{
		ID:            uuid.New(),
		WalletID:      to.ID,
		UserID:        to.UserID,
		Type:          TransactionTypeTransfer,
		Amount:        amount,
		Status:        TransactionStatusCompleted,
		BalanceBefore: to.Balance,
		BalanceAfter:  to.Balance + amount,
		Description:   description,
		CompletedAt:   &now,
	}

	if err := r.updateBalance(ctx, tx, from.ID, debit.BalanceAfter, from.PendingBalance); err != nil {
		return nil, nil, err
	}
	if err := r.updateBalance(ctx, tx, to.ID, credit.BalanceAfter, to.PendingBalance); err != nil {
		return nil, nil, err
	}
	if err := r.insertTransaction(ctx, tx, debit); err != nil {
		return nil, nil, err
	}
	if err := r.insertTransaction(ctx, tx, credit); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

// EntryParams describes a single escrow-driven ledger entry applied
// within an external transaction.
type EntryParams struct {
	UserID      uuid.UUID
	Type        TransactionType
	Amount      int64
	Fee         int64
	OrderID     *uuid.UUID
	EscrowID    *uuid.UUID
	Description string
}

// DebitTx debits a wallet within the caller's transaction. Used by the
// escrow service so the fund movement and the escrow transition commit
// as one unit.
func (r *Repository) DebitTx(ctx context.Context, tx *sqlx.Tx, p EntryParams) (*Transaction, error) {
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	w, err := r.lockWalletByUser(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}
	if w.AvailableBalance() < p.Amount {
		return nil, ErrInsufficientFunds
	}

	now := time.Now()
	txn := &Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		UserID:        p.UserID,
		Type:          p.Type,
		Amount:        p.Amount,
		Fee:           p.Fee,
		Status:        TransactionStatusCompleted,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance - p.Amount,
		Description:   p.Description,
		OrderID:       p.OrderID,
		EscrowID:      p.EscrowID,
		CompletedAt:   &now,
	}
	if err := r.updateBalance(ctx, tx, w.ID, txn.BalanceAfter, w.PendingBalance); err != nil {
		return nil, err
	}
	if err := r.insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// CreditTx credits a wallet within the caller's transaction.
func (r *Repository) CreditTx(ctx context.Context, tx *sqlx.Tx, p EntryParams) (*Transaction, error) {
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	w, err := r.lockWalletByUser(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		UserID:        p.UserID,
		Type:          p.Type,
		Amount:        p.Amount,
		Fee:           p.Fee,
		Status:        TransactionStatusCompleted,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance + p.Amount,
		Description:   p.Description,
		OrderID:       p.OrderID,
		EscrowID:      p.EscrowID,
		CompletedAt:   &now,
	}
	if err := r.updateBalance(ctx, tx, w.ID, txn.BalanceAfter, w.PendingBalance); err != nil {
		return nil, err
	}
	if err := r.insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// DB exposes the underlying handle for services coordinating multi-table
// commits (escrow release, order completion).
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

func (r *Repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := tx.GetContext(ctx, &w,
		`SELECT `+walletColumns+` FROM user_wallets WHERE id = $1 FOR UPDATE`, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) lockWalletByUser(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := tx.GetContext(ctx, &w,
		`SELECT `+walletColumns+` FROM user_wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) lockTransaction(ctx context.Context, tx *sqlx.Tx, txnID uuid.UUID) (*Transaction, error) {
	var t Transaction
	err := tx.GetContext(ctx, &t,
		`SELECT `+txnColumns+` FROM wallet_transactions WHERE id = $1 FOR UPDATE`, txnID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) updateBalance(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, balance, pending int64) error {
	if balance < 0 || pending < 0 || pending > balance {
		return ErrInsufficientFunds
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE user_wallets SET balance = $1, pending_balance = $2, updated_at = now()
		WHERE id = $3
	`, balance, pending, walletID)
	return err
}

// insertTransaction writes a ledger row, generating a unique reference.
// References are retried while taken; the unique index is the backstop.
func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, txn *Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	for {
		txn.Reference = reference.New(txnRefPrefix)
		var taken bool
		err := tx.GetContext(ctx, &taken,
			`SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE reference = $1)`, txn.Reference)
		if err != nil {
			return err
		}
		if !taken {
			break
		}
	}
	txn.CreatedAt = time.Now()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, user_id, type, amount, fee,
			status, reference, balance_before, balance_after, description,
			order_id, escrow_id, recipient_wallet_id, recipient_user_id,
			created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, txn.ID, txn.WalletID, txn.UserID, string(txn.Type), txn.Amount, txn.Fee,
		string(txn.Status), txn.Reference, txn.BalanceBefore, txn.BalanceAfter,
		txn.Description, txn.OrderID, txn.EscrowID, txn.RecipientWalletID,
		txn.RecipientUserID, txn.CreatedAt, txn.CompletedAt)
	return err
}

// finalizeTransaction performs the single allowed status flip, recording
// the snapshot and completion time. Completed rows are immutable after
// this point.
func (r *Repository) finalizeTransaction(ctx context.Context, tx *sqlx.Tx, txn *Transaction, status TransactionStatus) error {
	now := time.Now()
	txn.Status = status
	txn.CompletedAt = &now
	_, err := tx.ExecContext(ctx, `
		UPDATE wallet_transactions
		SET status = $1, balance_before = $2, balance_after = $3, completed_at = $4
		WHERE id = $5
	`, string(status), txn.BalanceBefore, txn.BalanceAfter, now, txn.ID)
	return err
}

// checkTxCountLimits enforces the per-day and per-month transaction
// count caps on outgoing operations. Zero limits disable the cap.
func (r *Repository) checkTxCountLimits(ctx context.Context, tx *sqlx.Tx, w *Wallet, now time.Time) error {
	if w.DailyTxLimit <= 0 && w.MonthlyTxLimit <= 0 {
		return nil
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var daily, monthly int
	err := tx.GetContext(ctx, &daily, `
		SELECT COUNT(*) FROM wallet_transactions
		WHERE wallet_id = $1 AND type IN ('withdrawal', 'transfer', 'payment')
		  AND status <> 'failed' AND created_at >= $2
	`, w.ID, dayStart)
	if err != nil {
		return err
	}
	if w.DailyTxLimit > 0 && daily >= w.DailyTxLimit {
		return ErrLimitExceeded
	}
	err = tx.GetContext(ctx, &monthly, `
		SELECT COUNT(*) FROM wallet_transactions
		WHERE wallet_id = $1 AND type IN ('withdrawal', 'transfer', 'payment')
		  AND status <> 'failed' AND created_at >= $2
	`, w.ID, monthStart)
	if err != nil {
		return err
	}
	if w.MonthlyTxLimit > 0 && monthly >= w.MonthlyTxLimit {
		return ErrLimitExceeded
	}
	return nil
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
