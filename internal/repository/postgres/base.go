package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/rch-registry/pkg/metrics"
)

// BaseRepository holds the handle and instrumentation shared by repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	if m == nil {
		m = metrics.NewNop()
	}
	return BaseRepository{db: db, metrics: m}
}

func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// observe records the outcome of one statement under operation
func (r *BaseRepository) observe(operation string, start time.Time, err error) {
	r.metrics.ObserveDB(operation, time.Since(start).Seconds(), err)
}

// WithTx runs fn in a transaction, rolling back on error or panic
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
