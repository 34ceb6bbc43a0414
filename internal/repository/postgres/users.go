package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
)

type UserRepo struct {
	db      DB
	locking bool
}

// Create inserts a new user document.
//
// Returns:
//   - error: repository.ErrConflict if the email is already registered.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	const op = "postgresrepo.UserRepo.Create"

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	u.Version = 1
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.BoughtTickets == nil {
		u.BoughtTickets = []domain.PurchasedTicket{}
	}

	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO users(id, email, password_hash, doc, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		u.ID, u.Email, u.PasswordHash, doc, u.Version, now,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a user by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the user does not exist.
func (r *UserRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.Get"

	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT doc, password_hash, version FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return u, nil
}

func (r *UserRepo) GetForUpdate(ctx context.Context, id string) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.GetForUpdate"

	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT doc, password_hash, version FROM users WHERE id = $1`+forUpdate(r.locking),
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return u, nil
}

// GetByEmail looks a user up by the unique email index.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const op = "postgresrepo.UserRepo.GetByEmail"

	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT doc, password_hash, version FROM users WHERE email = $1`,
		strings.ToLower(email),
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return u, nil
}

// Update replaces the user document when u.Version matches the stored version.
//
// Returns:
//   - error: repository.ErrNotFound if the user does not exist.
//   - error: repository.ErrStaleVersion if the document changed since it was read.
//   - error: repository.ErrConflict if the new email belongs to another user.
func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	const op = "postgresrepo.UserRepo.Update"

	next := *u
	next.Email = strings.ToLower(next.Email)
	next.Version = u.Version + 1
	next.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET email = $2, password_hash = $3, doc = $4, version = $5, updated_at = $6
		 WHERE id = $1 AND version = $7`,
		next.ID, next.Email, next.PasswordHash, doc, next.Version, next.UpdatedAt, u.Version,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, missingOrStale(ctx, r.db, "users", "id", u.ID))
	}

	*u = next
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	const op = "postgresrepo.UserRepo.Delete"

	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

// ListBuyers returns every user holding at least one ticket for eventID,
// with their ticket list narrowed to that event.
func (r *UserRepo) ListBuyers(ctx context.Context, eventID string) ([]domain.Buyer, error) {
	const op = "postgresrepo.UserRepo.ListBuyers"

	rows, err := r.db.Query(ctx,
		`SELECT doc, password_hash, version
		 FROM users
		 WHERE doc->'boughtTickets' @> jsonb_build_array(
		     jsonb_build_object('event', jsonb_build_object('eventId', $1::text)))
		 ORDER BY created_at`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Buyer{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, buyerFor(u, eventID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func buyerFor(u *domain.User, eventID string) domain.Buyer {
	b := domain.Buyer{ID: u.ID, Name: u.Name, Email: u.Email}
	for _, t := range u.BoughtTickets {
		if t.Event.EventID == eventID {
			b.Tickets = append(b.Tickets, t)
		}
	}
	return b
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		doc     []byte
		hash    string
		version int64
	)

	if err := row.Scan(&doc, &hash, &version); err != nil {
		return nil, err
	}

	var u domain.User
	if err := json.Unmarshal(doc, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	u.PasswordHash = hash
	u.Version = version
	if u.BoughtTickets == nil {
		u.BoughtTickets = []domain.PurchasedTicket{}
	}

	return &u, nil
}

// missingOrStale tells apart a deleted document from one whose version moved.
func missingOrStale(ctx context.Context, db DB, table, keyCol, key string) error {
	var exists bool
	err := db.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)`, table, keyCol),
		key,
	).Scan(&exists)
	if err != nil {
		return translateDBErr(err)
	}

	if !exists {
		return repository.ErrNotFound
	}

	return repository.ErrStaleVersion
}
