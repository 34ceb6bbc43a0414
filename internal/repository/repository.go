package repository

import (
	"context"

	"github.com/kirinyoku/tix-events/internal/domain"
)

// Users is the `users` collection.
type Users interface {
	// Create inserts u, assigning ID and Version. ErrConflict on duplicate email.
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, id string) (*domain.User, error)
	// GetForUpdate locks the document until the surrounding transaction ends.
	// Outside a transaction it behaves like Get.
	GetForUpdate(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Update writes u if its Version still matches the stored one and bumps
	// the version. ErrNotFound, ErrStaleVersion, ErrConflict (email taken).
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
	ListBuyers(ctx context.Context, eventID string) ([]domain.Buyer, error)
}

// Events is the `events` collection.
type Events interface {
	Create(ctx context.Context, e *domain.Event) error
	Get(ctx context.Context, id string) (*domain.Event, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Event, error)
	List(ctx context.Context, publicOnly bool) ([]domain.Event, error)
	Update(ctx context.Context, e *domain.Event) error
	Delete(ctx context.Context, id string) error
}

// Payments is the `payments` collection, one record per checkout session.
type Payments interface {
	// Upsert inserts rec unless a record for the session already exists.
	// It reports whether a new record was created.
	Upsert(ctx context.Context, rec *domain.PaymentRecord) (bool, error)
	Get(ctx context.Context, sessionID string) (*domain.PaymentRecord, error)
	GetForUpdate(ctx context.Context, sessionID string) (*domain.PaymentRecord, error)
	SetStatus(ctx context.Context, sessionID string, status domain.PaymentStatus, lastErr string) error
}

// Tx is the set of collections visible inside a transaction.
type Tx interface {
	Users() Users
	Events() Events
	Payments() Payments
}

// Store is the document store. Collections returned directly from the Store
// run each call on its own.
type Store interface {
	Tx
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
