// Package checkout opens payment sessions for ticket orders and turns the
// gateway's completion notifications into fulfillment runs.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/eticket"
	"github.com/kirinyoku/tix-events/internal/gateway"
	"github.com/kirinyoku/tix-events/internal/repository"
	"github.com/kirinyoku/tix-events/internal/service/fulfillment"
)

// maxLines bounds how many lines one checkout may carry.
const maxLines = 10

type Config struct {
	EnforceOwnership bool
}

type Service struct {
	store     repository.Store
	gw        gateway.Gateway
	fulfiller *fulfillment.Service
	log       *slog.Logger
	cfg       Config
	now       func() time.Time
}

func New(
	store repository.Store,
	gw gateway.Gateway,
	fulfiller *fulfillment.Service,
	log *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		store:     store,
		gw:        gw,
		fulfiller: fulfiller,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Item is one requested ticket line. Prices are never taken from the client.
type Item struct {
	EventID  string
	Type     domain.TicketType
	Quantity int
}

// CreateSession prices items from the stored events, checks they can be
// covered right now and opens a gateway session for buyerID. A pending
// payment record is stored for the new session.
//
// Returns:
//   - *domain.CheckoutSession: id and redirect URL of the session.
//   - error: checkout.ErrEmptyCart or checkout.ErrInvalidQuantity for a bad cart.
//   - error: checkout.ErrEventNotFound if an event does not exist.
//   - error: fulfillment.ErrInsufficientInventory if a class cannot cover the cart.
//   - error: gateway.ErrUpstream if the gateway fails.
func (s *Service) CreateSession(
	ctx context.Context,
	buyerID string,
	items []Item,
	idempotencyKey string,
) (*domain.CheckoutSession, error) {
	const op = "service.checkout.CreateSession"

	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}

	if len(items) > maxLines {
		return nil, fmt.Errorf("%s: %w", op, ErrTooManyLineItems)
	}

	reqs := make([]domain.TicketRequest, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
		}
		reqs = append(reqs, domain.TicketRequest{EventID: it.EventID, Type: it.Type, Quantity: it.Quantity})
	}

	events := make(map[string]*domain.Event)
	for _, id := range fulfillment.EventIDs(reqs) {
		e, err := s.store.Events().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if e.Date.Before(s.now()) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventInPast)
		}

		// Reserve works on a copy here; the real decrement happens on payment.
		probe := *e
		probe.Tickets = append([]domain.TicketClass{}, e.Tickets...)
		if err := fulfillment.Reserve(&probe, reqs); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		events[id] = e
	}

	lines := make([]gateway.LineItem, 0, len(reqs))
	for i := range reqs {
		e := events[reqs[i].EventID]
		class := e.Tickets[e.TicketClass(reqs[i].Type)]

		reqs[i].Type = class.Type
		reqs[i].UnitPriceCents = class.PriceCents

		lines = append(lines, gateway.LineItem{
			Name:            fmt.Sprintf("%s - %s", e.Name, class.Type),
			Description:     "Event Date: " + e.Date.Format("2006-01-02"),
			UnitAmountCents: class.PriceCents,
			Quantity:        int64(reqs[i].Quantity),
		})
	}

	sess, err := s.gw.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		BuyerID:        buyerID,
		Items:          lines,
		Tickets:        reqs,
		CancelEventID:  reqs[0].EventID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.store.Payments().Upsert(ctx, &domain.PaymentRecord{
		SessionID: sess.ID,
		UserID:    buyerID,
		Tickets:   reqs,
	}); err != nil {
		// The webhook stores the record from the session metadata as well.
		s.log.Warn("storing pending payment", slog.String("session_id", sess.ID), slog.Any("error", err))
	}

	s.log.Info("checkout session created",
		slog.String("session_id", sess.ID),
		slog.String("user_id", buyerID),
		slog.Int("lines", len(reqs)),
	)

	return sess, nil
}

// HandleWebhook verifies a gateway delivery and fulfills the payment it
// reports. Fulfillment failures are logged and recorded but not returned:
// the payment has been captured and a retried delivery would not help.
//
// Returns:
//   - error: gateway.ErrInvalidSignature if the delivery does not verify.
//   - error: a store error if the payment could not be recorded.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	const op = "service.checkout.HandleWebhook"

	n, err := s.gw.ParseWebhook(payload, sigHeader)
	if err != nil {
		if errors.Is(err, gateway.ErrMalformedNotification) {
			s.log.Error("unusable payment notification", slog.Any("error", err))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == nil {
		return nil
	}

	if _, err := s.store.Payments().Upsert(ctx, &domain.PaymentRecord{
		SessionID: n.SessionID,
		UserID:    n.UserID,
		Tickets:   n.Tickets,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Fulfill logs every outcome itself.
	_ = s.fulfiller.Fulfill(ctx, n.SessionID)

	return nil
}

// Replay re-runs fulfillment for a stored payment, typically one that failed.
//
// Returns:
//   - error: checkout.ErrPaymentNotFound if no payment exists for sessionID.
//   - error: checkout.ErrForbidden if ownership is enforced and callerID is not the buyer.
//   - error: any fulfillment error, including fulfillment.ErrAlreadyFulfilled.
func (s *Service) Replay(ctx context.Context, callerID, sessionID string) error {
	const op = "service.checkout.Replay"

	if _, err := s.Get(ctx, callerID, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.fulfiller.Fulfill(ctx, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) Get(ctx context.Context, callerID, sessionID string) (*domain.PaymentRecord, error) {
	const op = "service.checkout.Get"

	rec, err := s.store.Payments().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cfg.EnforceOwnership && rec.UserID != callerID {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	return rec, nil
}

// Ticket renders the printable ticket of a fulfilled payment.
//
// Returns:
//   - []byte: a PDF document.
//   - error: checkout.ErrPaymentNotFound if no payment exists for sessionID.
//   - error: checkout.ErrForbidden if ownership is enforced and callerID is not the buyer.
//   - error: checkout.ErrNotFulfilled until the payment has been fulfilled.
func (s *Service) Ticket(ctx context.Context, callerID, sessionID string) ([]byte, error) {
	const op = "service.checkout.Ticket"

	rec, err := s.Get(ctx, callerID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if rec.Status != domain.PaymentFulfilled {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFulfilled)
	}

	u, err := s.store.Users().Get(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t := eticket.Ticket{
		SessionID:  rec.SessionID,
		BuyerName:  u.Name,
		BuyerEmail: u.Email,
		IssuedAt:   rec.UpdatedAt,
	}
	for _, bt := range u.BoughtTickets {
		if bt.SessionID == sessionID {
			t.Lines = append(t.Lines, bt)
		}
	}

	pdf, err := eticket.Render(t, eticket.EntryCode(rec.SessionID, rec.UserID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pdf, nil
}
