package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
	"github.com/jwalitptl/care-scheduling/pkg/retry"
)

type txKey struct{}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// conn returns the transaction carried by ctx, or the pool.
func (r *BaseRepository) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

// Transactor runs units of work in SERIALIZABLE transactions and retries them
// on serialization failures, deadlocks and dropped connections.
type Transactor struct {
	db      *sqlx.DB
	retry   retry.Config
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewTransactor(db *sqlx.DB, cfg retry.Config, m *metrics.Metrics, log *logger.Logger) *Transactor {
	return &Transactor{db: db, retry: cfg, metrics: m, log: log}
}

// WithinTx joins the transaction already in ctx when there is one.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	onRetry := func(err error, wait time.Duration) {
		t.metrics.ObserveRetry()
		t.log.Warn("retrying transaction", "error", err.Error(), "wait", wait.String())
	}

	err := retry.Do(ctx, t.retry, isTransient, onRetry, func() error {
		return t.runOnce(ctx, fn)
	})
	t.metrics.ObserveDatabase("tx", metrics.Result(err))
	return err
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err, "failed to commit transaction")
	}
	return nil
}

// isTransient reports whether a failed transaction may succeed if run again.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01":
		return true
	}
	return pqErr.Code.Class() == "08"
}

// mapError turns constraint violations into domain errors and wraps the rest.
func mapError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "exclusion_violation", "unique_violation":
			if strings.HasPrefix(pqErr.Constraint, "schedules_") {
				return errors.Conflict("schedule conflicts with an existing entry", err)
			}
			return errors.Conflict("doctor is not available at this time", err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func notFoundOr(err error, resource, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource, nil)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// builder appends numbered placeholders for optional filters.
type builder struct {
	sb   strings.Builder
	args []interface{}
}

func newBuilder(base string, args ...interface{}) *builder {
	b := &builder{args: args}
	b.sb.WriteString(base)
	return b
}

func (b *builder) where(clause string, arg interface{}) {
	b.args = append(b.args, arg)
	b.sb.WriteString(" AND ")
	b.sb.WriteString(strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(b.args))))
}

func (b *builder) raw(s string) {
	b.sb.WriteString(s)
}

func (b *builder) limit(p int, prefix string) {
	if p <= 0 {
		return
	}
	b.args = append(b.args, p)
	b.sb.WriteString(fmt.Sprintf(" %s $%d", prefix, len(b.args)))
}

func (b *builder) String() string { return b.sb.String() }
