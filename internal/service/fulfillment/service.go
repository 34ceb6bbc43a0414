// Package fulfillment turns a completed payment into tickets: it decrements
// event inventory and appends the purchase to the buyer's profile in one
// transaction, at most once per checkout session.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/repository"
	"github.com/kirinyoku/tix-events/internal/uow"
)

// Notifier is told about every event whose inventory changed.
type Notifier interface {
	EventChanged(ctx context.Context, eventID string)
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func New(store repository.Store, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Fulfill applies the payment recorded for sessionID.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: checkout session whose payment record carries buyer and tickets.
//
// Returns:
//   - error: fulfillment.ErrAlreadyFulfilled if the session was applied before.
//   - error: fulfillment.ErrPaymentNotFound if no record exists for the session.
//   - error: fulfillment.ErrBuyerNotFound if the buyer no longer exists.
//   - error: fulfillment.ErrEventNotFound if a target event no longer exists.
//   - error: fulfillment.ErrInsufficientInventory if any class cannot cover the order.
//
// Any error other than ErrAlreadyFulfilled and ErrPaymentNotFound marks the
// record failed so it can be replayed.
func (s *Service) Fulfill(ctx context.Context, sessionID string) error {
	const op = "service.fulfillment.Fulfill"

	var userID string

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		rec, err := tx.Payments().GetForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		userID = rec.UserID

		if rec.Status == domain.PaymentFulfilled {
			return ErrAlreadyFulfilled
		}

		if len(rec.Tickets) == 0 {
			return fmt.Errorf("%w: no tickets", ErrInvalidOrder)
		}

		buyer, err := tx.Users().GetForUpdate(ctx, rec.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrBuyerNotFound
			}
			return err
		}

		events := make(map[string]*domain.Event)
		for _, id := range EventIDs(rec.Tickets) {
			ev, err := tx.Events().GetForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrEventNotFound, id)
				}
				return err
			}

			if err := Reserve(ev, rec.Tickets); err != nil {
				return err
			}

			if err := tx.Events().Update(ctx, ev); err != nil {
				return err
			}

			events[id] = ev
		}

		now := s.now()
		for _, t := range rec.Tickets {
			ev := events[t.EventID]
			buyer.BoughtTickets = append(buyer.BoughtTickets, domain.PurchasedTicket{
				SessionID: sessionID,
				Event: domain.EventRef{
					EventID: ev.ID,
					Name:    ev.Name,
					Date:    ev.Date,
				},
				Type:        t.Type,
				Quantity:    t.Quantity,
				PriceCents:  t.UnitPriceCents,
				PurchasedAt: now,
			})
		}

		if err := tx.Users().Update(ctx, buyer); err != nil {
			return err
		}

		if err := tx.Payments().SetStatus(ctx, sessionID, domain.PaymentFulfilled, ""); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			if s.notifier == nil {
				return
			}
			for id := range events {
				s.notifier.EventChanged(ctx, id)
			}
		})

		return nil
	})

	log := s.log.With(slog.String("session_id", sessionID), slog.String("user_id", userID))

	switch {
	case err == nil:
		log.Info("order fulfilled")
		return nil
	case errors.Is(err, ErrAlreadyFulfilled):
		log.Info("duplicate payment notification ignored")
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, ErrPaymentNotFound):
		log.Error("fulfillment without payment record")
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Error("fulfillment failed", slog.Any("error", err))

	if serr := s.store.Payments().SetStatus(ctx, sessionID, domain.PaymentFailed, err.Error()); serr != nil {
		log.Error("recording fulfillment failure", slog.Any("error", serr))
	}

	return fmt.Errorf("%s: %w", op, err)
}
