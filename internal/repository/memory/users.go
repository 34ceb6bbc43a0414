package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
)

type users struct {
	access access
}

func (r *users) Create(_ context.Context, u *domain.User) error {
	return r.access(func(st *state) error {
		email := strings.ToLower(u.Email)
		if emailTaken(st, email, "") {
			return repository.ErrConflict
		}

		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if _, ok := st.users[u.ID]; ok {
			return repository.ErrConflict
		}

		u.Email = email
		u.Version = 1
		now := time.Now().UTC()
		u.CreatedAt, u.UpdatedAt = now, now
		if u.BoughtTickets == nil {
			u.BoughtTickets = []domain.PurchasedTicket{}
		}

		st.users[u.ID] = cloneUser(*u)
		return nil
	})
}

func (r *users) Get(_ context.Context, id string) (*domain.User, error) {
	var out domain.User
	err := r.access(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneUser(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *users) GetForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.Get(ctx, id)
}

func (r *users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	var out domain.User
	err := r.access(func(st *state) error {
		email = strings.ToLower(email)
		for _, u := range st.users {
			if u.Email == email {
				out = cloneUser(u)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *users) Update(_ context.Context, u *domain.User) error {
	return r.access(func(st *state) error {
		cur, ok := st.users[u.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if cur.Version != u.Version {
			return repository.ErrStaleVersion
		}

		email := strings.ToLower(u.Email)
		if emailTaken(st, email, u.ID) {
			return repository.ErrConflict
		}

		next := cloneUser(*u)
		next.Email = email
		next.Version++
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = time.Now().UTC()

		st.users[u.ID] = next
		*u = cloneUser(next)
		return nil
	})
}

func (r *users) Delete(_ context.Context, id string) error {
	return r.access(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.users, id)
		return nil
	})
}

func (r *users) ListBuyers(_ context.Context, eventID string) ([]domain.Buyer, error) {
	out := []domain.Buyer{}
	err := r.access(func(st *state) error {
		for _, u := range st.users {
			b := domain.Buyer{ID: u.ID, Name: u.Name, Email: u.Email}
			for _, t := range u.BoughtTickets {
				if t.Event.EventID == eventID {
					b.Tickets = append(b.Tickets, t)
				}
			}
			if len(b.Tickets) > 0 {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, err
}

func emailTaken(st *state, email, exceptID string) bool {
	for id, u := range st.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}
