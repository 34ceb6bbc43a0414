package postgresrepo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-events/internal/repository"
)

const (
	maxTxAttempts = 8
	baseTxBackoff = 5 * time.Millisecond
	maxTxBackoff  = 200 * time.Millisecond
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ repository.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a read committed transaction. GetForUpdate through tx
// locks the row, and updates are guarded by the version column. Serialization
// failures and deadlocks are retried with jittered backoff up to
// maxTxAttempts times, so fn must not have side effects outside tx.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	const op = "postgresrepo.Store.RunTx"

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			if werr := sleepCtx(ctx, txBackoff(attempt)); werr != nil {
				return fmt.Errorf("%s: %w", op, werr)
			}
		}

		err = s.runTxOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// txBackoff returns a full-jitter delay for the given retry attempt.
func txBackoff(attempt int) time.Duration {
	d := baseTxBackoff << attempt
	if d <= 0 || d > maxTxBackoff {
		d = maxTxBackoff
	}
	return rand.N(d) + time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Store) runTxOnce(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, txView{db: tx, locking: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Users() repository.Users       { return &UserRepo{db: s.pool} }
func (s *Store) Events() repository.Events     { return &EventRepo{db: s.pool} }
func (s *Store) Payments() repository.Payments { return &PaymentRepo{db: s.pool} }

type txView struct {
	db      DB
	locking bool
}

func (v txView) Users() repository.Users       { return &UserRepo{db: v.db, locking: v.locking} }
func (v txView) Events() repository.Events     { return &EventRepo{db: v.db, locking: v.locking} }
func (v txView) Payments() repository.Payments { return &PaymentRepo{db: v.db, locking: v.locking} }

// forUpdate returns the locking clause when the repo is bound to a transaction.
func forUpdate(locking bool) string {
	if locking {
		return " FOR UPDATE"
	}
	return ""
}
