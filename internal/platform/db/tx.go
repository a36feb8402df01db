package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
)

type contextKey string

const txKey contextKey = "db_tx"

// CodeTxContention marks a transaction that lost a concurrency race twice,
// once on the original attempt and once on the transparent retry.
const CodeTxContention = "CONCURRENT_UPDATE_CONFLICT"

// WithTx begins a transaction on pool and returns a derived context that
// carries it. Repositories whose conn(ctx) checks TxFromContext will run
// every statement on this transaction until it commits or rolls back.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, txKey, tx), tx, nil
}

// TxFromContext returns the transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// TxRunner runs one unit of work atomically. Services hold this instead of
// the pool so unit tests can substitute a pass-through.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTxRunner is the pool-backed TxRunner used in production wiring.
type PoolTxRunner struct {
	Pool *pgxpool.Pool
}

func (r *PoolTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, r.Pool, fn)
}

// RunInTx executes fn inside a transaction carried via context. A
// serialization failure or deadlock is retried once; if the retry also
// loses, the caller gets a transient error rather than a silent partial
// write. Any error from fn rolls the transaction back.
//
// When ctx already carries a transaction, fn joins it and commit/rollback
// stay with the outer owner.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	err := runTxOnce(ctx, pool, fn)
	if err == nil || !isRetryableTxError(err) {
		return err
	}

	err = runTxOnce(ctx, pool, fn)
	if err != nil && isRetryableTxError(err) {
		return apperr.Transient(CodeTxContention, "operation lost a concurrent update race, please retry").Wrap(err)
	}
	return err
}

func runTxOnce(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	txCtx, tx, err := WithTx(ctx, pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PostgreSQL SQLSTATE codes this package reacts to.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateUniqueViolation      = "23505"
)

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != sqlstateUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsNoRows reports whether err is the pgx no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
