package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
)

type EventRepo struct {
	db      DB
	locking bool
}

func (r *EventRepo) Create(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.EventRepo.Create"

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Version = 1
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO events(id, is_public, event_date, doc, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		e.ID, e.IsPublic, e.Date, doc, e.Version, now,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves an event by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the event does not exist.
func (r *EventRepo) Get(ctx context.Context, id string) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.Get"

	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT doc, version FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// GetForUpdate retrieves an event and, inside a transaction, holds a row
// lock on it so concurrent fulfillments serialize on the same event.
func (r *EventRepo) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.GetForUpdate"

	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT doc, version FROM events WHERE id = $1`+forUpdate(r.locking),
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

func (r *EventRepo) List(ctx context.Context, publicOnly bool) ([]domain.Event, error) {
	const op = "postgresrepo.EventRepo.List"

	rows, err := r.db.Query(ctx,
		`SELECT doc, version
		 FROM events
		 WHERE ($1 = false OR is_public)
		 ORDER BY event_date`,
		publicOnly,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Update replaces the event document when e.Version matches the stored version.
//
// Returns:
//   - error: repository.ErrNotFound if the event does not exist.
//   - error: repository.ErrStaleVersion if the document changed since it was read.
func (r *EventRepo) Update(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.EventRepo.Update"

	next := *e
	next.Version = e.Version + 1
	next.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET is_public = $2, event_date = $3, doc = $4, version = $5, updated_at = $6
		 WHERE id = $1 AND version = $7`,
		next.ID, next.IsPublic, next.Date, doc, next.Version, next.UpdatedAt, e.Version,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, missingOrStale(ctx, r.db, "events", "id", e.ID))
	}

	*e = next
	return nil
}

func (r *EventRepo) Delete(ctx context.Context, id string) error {
	const op = "postgresrepo.EventRepo.Delete"

	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		doc     []byte
		version int64
	)

	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}

	var e domain.Event
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	e.Version = version
	if e.Tickets == nil {
		e.Tickets = []domain.TicketClass{}
	}

	return &e, nil
}
