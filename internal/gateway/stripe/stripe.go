// Package stripe adapts Stripe Checkout to gateway.Gateway.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/gateway"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	metaUserID  = "userId"
	metaTickets = "tickets"

	// Stripe caps metadata at 50 keys of at most 500 characters each.
	maxMetadataValue = 500
	maxTicketsChunks = 40
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	FrontendURL   string
	// Backends overrides the Stripe API endpoints; nil uses the live API.
	Backends *stripego.Backends
}

var _ gateway.Gateway = (*Adapter)(nil)

type Adapter struct {
	api *client.API
	cfg Config
}

func New(cfg Config) *Adapter {
	if cfg.Currency == "" {
		cfg.Currency = string(stripego.CurrencyUSD)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, cfg.Backends)

	return &Adapter{api: api, cfg: cfg}
}

// CreateCheckoutSession opens a hosted payment page for req. The buyer id and
// the ticket snapshot are attached as session metadata.
//
// Returns:
//   - error: gateway.ErrUpstream if Stripe rejects the request.
func (a *Adapter) CreateCheckoutSession(
	ctx context.Context,
	req gateway.CheckoutRequest,
) (*domain.CheckoutSession, error) {
	const op = "gateway.stripe.Adapter.CreateCheckoutSession"

	tickets, err := json.Marshal(req.Tickets)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	params := &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		ClientReferenceID:  stripego.String(req.BuyerID),
		SuccessURL:         stripego.String(a.cfg.FrontendURL + "/profile?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripego.String(a.cfg.FrontendURL + "/events/" + req.CancelEventID),
	}
	params.Context = ctx

	for _, it := range req.Items {
		product := &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripego.String(it.Name),
		}
		if it.Description != "" {
			product.Description = stripego.String(it.Description)
		}

		params.LineItems = append(params.LineItems, &stripego.CheckoutSessionLineItemParams{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripego.String(a.cfg.Currency),
				ProductData: product,
				UnitAmount:  stripego.Int64(it.UnitAmountCents),
			},
			Quantity: stripego.Int64(it.Quantity),
		})
	}

	params.AddMetadata(metaUserID, req.BuyerID)
	chunks := splitMetadata(string(tickets), maxMetadataValue)
	if len(chunks) > maxTicketsChunks {
		return nil, fmt.Errorf("%s: ticket snapshot spans %d metadata values", op, len(chunks))
	}
	for i, chunk := range chunks {
		params.AddMetadata(chunkKey(metaTickets, i), chunk)
	}

	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, gateway.ErrUpstream, err)
	}

	return &domain.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header over the raw payload and
// extracts the completed checkout session, if any.
//
// Returns:
//   - error: gateway.ErrInvalidSignature if verification fails.
//   - error: gateway.ErrMalformedNotification if the session metadata is unusable.
func (a *Adapter) ParseWebhook(payload []byte, sigHeader string) (*domain.PaymentNotification, error) {
	const op = "gateway.stripe.Adapter.ParseWebhook"

	ev, err := webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		a.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, gateway.ErrInvalidSignature, err)
	}

	switch ev.Type {
	case stripego.EventTypeCheckoutSessionCompleted,
		stripego.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return nil, nil
	}

	var s stripego.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, gateway.ErrMalformedNotification, err)
	}

	// Delayed payment methods complete the session before the money moves;
	// those are fulfilled on async_payment_succeeded instead.
	if ev.Type == stripego.EventTypeCheckoutSessionCompleted &&
		s.PaymentStatus == stripego.CheckoutSessionPaymentStatusUnpaid {
		return nil, nil
	}

	return notificationFrom(ev.ID, &s)
}

func notificationFrom(eventID string, s *stripego.CheckoutSession) (*domain.PaymentNotification, error) {
	const op = "gateway.stripe.notificationFrom"

	userID := s.Metadata[metaUserID]
	if userID == "" || s.ID == "" {
		return nil, fmt.Errorf("%s: %w: missing session id or buyer", op, gateway.ErrMalformedNotification)
	}

	var tickets []domain.TicketRequest
	if err := json.Unmarshal([]byte(joinMetadata(s.Metadata, metaTickets)), &tickets); err != nil {
		return nil, fmt.Errorf("%s: %w: tickets: %v", op, gateway.ErrMalformedNotification, err)
	}

	if len(tickets) == 0 {
		return nil, fmt.Errorf("%s: %w: no tickets", op, gateway.ErrMalformedNotification)
	}

	return &domain.PaymentNotification{
		GatewayEventID: eventID,
		SessionID:      s.ID,
		UserID:         userID,
		Tickets:        tickets,
	}, nil
}

// chunkKey names the i-th metadata value of a split entry: key, key_1, key_2...
func chunkKey(key string, i int) string {
	if i == 0 {
		return key
	}
	return key + "_" + strconv.Itoa(i)
}

// splitMetadata cuts v into pieces of at most limit bytes without splitting a
// UTF-8 sequence.
func splitMetadata(v string, limit int) []string {
	var out []string
	for len(v) > limit {
		end := limit
		for end > 0 && !utf8.RuneStart(v[end]) {
			end--
		}
		if end == 0 {
			end = limit
		}
		out = append(out, v[:end])
		v = v[end:]
	}
	return append(out, v)
}

func joinMetadata(md map[string]string, key string) string {
	var b strings.Builder
	for i := 0; ; i++ {
		chunk, ok := md[chunkKey(key, i)]
		if !ok {
			return b.String()
		}
		b.WriteString(chunk)
	}
}
