// Package gateway describes the payment provider the checkout flow talks to.
package gateway

import (
	"context"
	"errors"

	"github.com/kirinyoku/tix-events/internal/domain"
)

var (
	// ErrInvalidSignature rejects a webhook whose signature does not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedNotification rejects a verified webhook with unusable metadata.
	ErrMalformedNotification = errors.New("malformed payment notification")
	// ErrUpstream wraps failures talking to the provider.
	ErrUpstream = errors.New("payment gateway error")
)

type LineItem struct {
	Name            string
	Description     string
	UnitAmountCents int64
	Quantity        int64
}

type CheckoutRequest struct {
	BuyerID string
	Items   []LineItem
	// Tickets travel in the session metadata and come back in the
	// completion notification.
	Tickets        []domain.TicketRequest
	CancelEventID  string
	IdempotencyKey string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*domain.CheckoutSession, error)
	// ParseWebhook verifies payload against sigHeader. It returns a nil
	// notification for verified events that carry no completed payment.
	ParseWebhook(payload []byte, sigHeader string) (*domain.PaymentNotification, error)
}
