package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/kirinyoku/tix-events/internal/uow"
)

// Notifier is told about every committed event mutation.
type Notifier interface {
	EventChanged(ctx context.Context, eventID string)
}

type Config struct {
	EventTTL         time.Duration
	ListTTL          time.Duration
	EnforceOwnership bool
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	cache    *redisrepo.Cache
	notifier Notifier
	log      *slog.Logger
	cfg      Config
}

// New builds the service. cache and notifier may be nil, in which case reads
// go straight to the store and changes are not announced.
func New(
	store repository.Store,
	cache *redisrepo.Cache,
	notifier Notifier,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = 60 * time.Second
	}

	if cfg.ListTTL <= 0 {
		cfg.ListTTL = 15 * time.Second
	}

	return &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		cache:    cache,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
	}
}

// Input is the writable part of an event.
type Input struct {
	Name             string
	Description      string
	Date             time.Time
	IsPublic         bool
	OrganizationName string
	Location         domain.Location
	Tickets          []domain.TicketClass
}

func (in Input) apply(e *domain.Event) {
	e.Name = in.Name
	e.Description = in.Description
	e.Date = in.Date.UTC()
	e.IsPublic = in.IsPublic
	e.OrganizationName = in.OrganizationName
	e.Location = in.Location
	e.Tickets = append([]domain.TicketClass{}, in.Tickets...)
}

// List returns events ordered by date. Anonymous callers pass publicOnly.
func (s *Service) List(ctx context.Context, publicOnly bool) ([]domain.Event, error) {
	const op = "service.events.List"

	load := func(ctx context.Context) ([]domain.Event, error) {
		return s.store.Events().List(ctx, publicOnly)
	}

	var (
		out []domain.Event
		err error
	)
	if s.cache != nil {
		out, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventList(publicOnly), s.cfg.ListTTL, load)
	} else {
		out, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Get retrieves an event by its ID, utilizing a caching layer to improve performance.
// Private events are reported as missing unless includePrivate is set.
//
// Returns:
//   - *domain.Event: the retrieved event.
//   - error: events.ErrEventNotFound if the event is not found or not visible.
func (s *Service) Get(ctx context.Context, id string, includePrivate bool) (*domain.Event, error) {
	const op = "service.events.Get"

	load := func(ctx context.Context) (domain.Event, error) {
		e, err := s.store.Events().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Event{}, ErrEventNotFound
			}
			return domain.Event{}, err
		}
		return *e, nil
	}

	var (
		e   domain.Event
		err error
	)
	if s.cache != nil {
		e, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEvent(id), s.cfg.EventTTL, load)
	} else {
		e, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !e.IsPublic && !includePrivate {
		return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
	}

	return &e, nil
}

// Create stores a new event owned by creatorID.
func (s *Service) Create(ctx context.Context, creatorID string, in Input) (*domain.Event, error) {
	const op = "service.events.Create"

	e := &domain.Event{CreatedBy: creatorID}
	in.apply(e)

	if err := s.store.Events().Create(ctx, e); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.changed(ctx, e.ID)
	s.log.Info("event created", slog.String("event_id", e.ID), slog.String("user_id", creatorID))

	return e, nil
}

// Update replaces the writable fields of an event.
//
// Returns:
//   - error: events.ErrEventNotFound if the event does not exist.
//   - error: events.ErrForbidden if ownership is enforced and callerID did not create it.
func (s *Service) Update(ctx context.Context, callerID, id string, in Input) (*domain.Event, error) {
	const op = "service.events.Update"

	var out *domain.Event

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		e, err := tx.Events().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if err := s.checkOwner(callerID, e); err != nil {
			return err
		}

		in.apply(e)
		if err := tx.Events().Update(ctx, e); err != nil {
			return err
		}

		out = e
		after(func(ctx context.Context) { s.changed(ctx, id) })
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	return out, nil
}

// Delete removes an event. Tickets already sold stay on buyers' profiles.
//
// Returns:
//   - error: events.ErrEventNotFound if the event does not exist.
//   - error: events.ErrForbidden if ownership is enforced and callerID did not create it.
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	const op = "service.events.Delete"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		e, err := tx.Events().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if err := s.checkOwner(callerID, e); err != nil {
			return err
		}

		if err := tx.Events().Delete(ctx, id); err != nil {
			return err
		}

		after(func(ctx context.Context) { s.changed(ctx, id) })
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	s.log.Info("event deleted", slog.String("event_id", id), slog.String("user_id", callerID))

	return nil
}

// Buyers lists the users holding tickets for an event.
//
// Returns:
//   - error: events.ErrEventNotFound if the event does not exist.
//   - error: events.ErrForbidden if ownership is enforced and callerID did not create it.
func (s *Service) Buyers(ctx context.Context, callerID, id string) ([]domain.Buyer, error) {
	const op = "service.events.Buyers"

	e, err := s.store.Events().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	if err := s.checkOwner(callerID, e); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	buyers, err := s.store.Users().ListBuyers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buyers, nil
}

func (s *Service) checkOwner(callerID string, e *domain.Event) error {
	if s.cfg.EnforceOwnership && e.CreatedBy != callerID {
		return ErrForbidden
	}
	return nil
}

func (s *Service) changed(ctx context.Context, id string) {
	if s.notifier != nil {
		s.notifier.EventChanged(ctx, id)
	}
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrEventNotFound
	case errors.Is(err, repository.ErrStaleVersion):
		return ErrConcurrentUpdate
	}
	return err
}
