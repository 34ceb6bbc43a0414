// Package memory is an in-process document store with the same contract as
// the Postgres store. Transactions are serialized behind one mutex and
// applied copy-on-write, so a failed transaction leaves no trace.
package memory

import (
	"context"
	"sync"

	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
)

type state struct {
	users    map[string]domain.User
	events   map[string]domain.Event
	payments map[string]domain.PaymentRecord
}

func newState() *state {
	return &state{
		users:    map[string]domain.User{},
		events:   map[string]domain.Event{},
		payments: map[string]domain.PaymentRecord{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.users {
		out.users[k] = cloneUser(v)
	}
	for k, v := range s.events {
		out.events[k] = cloneEvent(v)
	}
	for k, v := range s.payments {
		out.payments[k] = clonePayment(v)
	}
	return out
}

var _ repository.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(ctx, view{access: direct(work)}); err != nil {
		return err
	}

	s.st = work
	return nil
}

func (s *Store) Users() repository.Users       { return &users{access: s.locked} }
func (s *Store) Events() repository.Events     { return &events{access: s.locked} }
func (s *Store) Payments() repository.Payments { return &payments{access: s.locked} }

// access runs fn against the state the caller is allowed to see.
type access func(fn func(st *state) error) error

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func direct(st *state) access {
	return func(fn func(st *state) error) error { return fn(st) }
}

type view struct {
	access access
}

func (v view) Users() repository.Users       { return &users{access: v.access} }
func (v view) Events() repository.Events     { return &events{access: v.access} }
func (v view) Payments() repository.Payments { return &payments{access: v.access} }

func cloneUser(u domain.User) domain.User {
	u.BoughtTickets = append([]domain.PurchasedTicket{}, u.BoughtTickets...)
	return u
}

func cloneEvent(e domain.Event) domain.Event {
	e.Tickets = append([]domain.TicketClass{}, e.Tickets...)
	return e
}

func clonePayment(p domain.PaymentRecord) domain.PaymentRecord {
	p.Tickets = append([]domain.TicketRequest{}, p.Tickets...)
	return p
}
