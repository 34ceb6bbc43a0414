package memory

import (
	"context"
	"time"

	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
)

type payments struct {
	access access
}

func (r *payments) Upsert(_ context.Context, rec *domain.PaymentRecord) (bool, error) {
	created := false
	err := r.access(func(st *state) error {
		if _, ok := st.payments[rec.SessionID]; ok {
			return nil
		}

		if rec.Status == "" {
			rec.Status = domain.PaymentPending
		}
		now := time.Now().UTC()
		rec.CreatedAt, rec.UpdatedAt = now, now

		st.payments[rec.SessionID] = clonePayment(*rec)
		created = true
		return nil
	})
	return created, err
}

func (r *payments) Get(_ context.Context, sessionID string) (*domain.PaymentRecord, error) {
	var out domain.PaymentRecord
	err := r.access(func(st *state) error {
		p, ok := st.payments[sessionID]
		if !ok {
			return repository.ErrNotFound
		}
		out = clonePayment(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *payments) GetForUpdate(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	return r.Get(ctx, sessionID)
}

func (r *payments) SetStatus(_ context.Context, sessionID string, status domain.PaymentStatus, lastErr string) error {
	return r.access(func(st *state) error {
		p, ok := st.payments[sessionID]
		if !ok {
			return repository.ErrNotFound
		}
		p.Status = status
		p.LastError = lastErr
		p.UpdatedAt = time.Now().UTC()
		st.payments[sessionID] = p
		return nil
	})
}
