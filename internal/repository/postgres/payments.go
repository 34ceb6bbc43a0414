package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
)

type PaymentRepo struct {
	db      DB
	locking bool
}

func (r *PaymentRepo) Upsert(ctx context.Context, rec *domain.PaymentRecord) (bool, error) {
	const op = "postgresrepo.PaymentRepo.Upsert"

	tickets, err := json.Marshal(rec.Tickets)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if rec.Status == "" {
		rec.Status = domain.PaymentPending
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	tag, err := r.db.Exec(ctx,
		`INSERT INTO payments(session_id, user_id, tickets, status, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.UserID, tickets, rec.Status, rec.LastError, now,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) Get(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	const op = "postgresrepo.PaymentRepo.Get"

	rec, err := scanPayment(r.db.QueryRow(ctx,
		`SELECT session_id, user_id, tickets, status, last_error, created_at, updated_at
		 FROM payments WHERE session_id = $1`,
		sessionID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return rec, nil
}

func (r *PaymentRepo) GetForUpdate(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	const op = "postgresrepo.PaymentRepo.GetForUpdate"

	rec, err := scanPayment(r.db.QueryRow(ctx,
		`SELECT session_id, user_id, tickets, status, last_error, created_at, updated_at
		 FROM payments WHERE session_id = $1`+forUpdate(r.locking),
		sessionID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return rec, nil
}

func (r *PaymentRepo) SetStatus(
	ctx context.Context,
	sessionID string,
	status domain.PaymentStatus,
	lastErr string,
) error {
	const op = "postgresrepo.PaymentRepo.SetStatus"

	tag, err := r.db.Exec(ctx,
		`UPDATE payments
		 SET status = $2, last_error = $3, updated_at = now()
		 WHERE session_id = $1`,
		sessionID, status, lastErr,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	var (
		rec     domain.PaymentRecord
		tickets []byte
		status  string
	)

	if err := row.Scan(
		&rec.SessionID,
		&rec.UserID,
		&tickets,
		&status,
		&rec.LastError,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tickets, &rec.Tickets); err != nil {
		return nil, fmt.Errorf("decode payment tickets: %w", err)
	}
	rec.Status = domain.PaymentStatus(status)

	return &rec, nil
}
