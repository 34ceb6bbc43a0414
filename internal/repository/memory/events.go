package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
)

type events struct {
	access access
}

func (r *events) Create(_ context.Context, e *domain.Event) error {
	return r.access(func(st *state) error {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, ok := st.events[e.ID]; ok {
			return repository.ErrConflict
		}

		e.Version = 1
		now := time.Now().UTC()
		e.CreatedAt, e.UpdatedAt = now, now

		st.events[e.ID] = cloneEvent(*e)
		return nil
	})
}

func (r *events) Get(_ context.Context, id string) (*domain.Event, error) {
	var out domain.Event
	err := r.access(func(st *state) error {
		e, ok := st.events[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = cloneEvent(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *events) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return r.Get(ctx, id)
}

func (r *events) List(_ context.Context, publicOnly bool) ([]domain.Event, error) {
	out := []domain.Event{}
	err := r.access(func(st *state) error {
		for _, e := range st.events {
			if publicOnly && !e.IsPublic {
				continue
			}
			out = append(out, cloneEvent(e))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, err
}

func (r *events) Update(_ context.Context, e *domain.Event) error {
	return r.access(func(st *state) error {
		cur, ok := st.events[e.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if cur.Version != e.Version {
			return repository.ErrStaleVersion
		}

		next := cloneEvent(*e)
		next.Version++
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = time.Now().UTC()

		st.events[e.ID] = next
		*e = cloneEvent(next)
		return nil
	})
}

func (r *events) Delete(_ context.Context, id string) error {
	return r.access(func(st *state) error {
		if _, ok := st.events[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.events, id)
		return nil
	})
}
