package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/gateway"
	"github.com/kirinyoku/tix-events/internal/gateway/gatewaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) (*Adapter, *gatewaytest.StripeServer) {
	t.Helper()

	srv := gatewaytest.NewStripeServer(t)
	a := New(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: gatewaytest.WebhookSecret,
		FrontendURL:   "https://tix.example",
		Backends:      srv.Backends(),
	})

	return a, srv
}

func TestCreateCheckoutSession_SendsLineItemsAndMetadata(t *testing.T) {
	a, srv := newTestAdapter(t)

	tickets := []domain.TicketRequest{{EventID: "ev-1", Type: domain.TicketStandard, Quantity: 2, UnitPriceCents: 2000}}
	sess, err := a.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		BuyerID:       "u-1",
		Items:         []gateway.LineItem{{Name: "Gig - standard", UnitAmountCents: 2000, Quantity: 2}},
		Tickets:       tickets,
		CancelEventID: "ev-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Contains(t, sess.URL, "cs_test_1")

	sent := srv.Sessions()
	require.Len(t, sent, 1)
	form := sent[0].Form

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "u-1", form.Get("metadata[userId]"))
	assert.Equal(t, "2000", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "https://tix.example/events/ev-1", form.Get("cancel_url"))

	var meta []domain.TicketRequest
	require.NoError(t, json.Unmarshal([]byte(form.Get("metadata[tickets]")), &meta))
	assert.Equal(t, tickets, meta)
}

func TestCreateCheckoutSession_UpstreamFailure(t *testing.T) {
	a, srv := newTestAdapter(t)
	srv.FailNext(http.StatusInternalServerError)

	_, err := a.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		BuyerID: "u-1",
		Items:   []gateway.LineItem{{Name: "x", UnitAmountCents: 100, Quantity: 1}},
	})
	assert.ErrorIs(t, err, gateway.ErrUpstream)
}

func TestParseWebhook_CompletedSessionRoundTrip(t *testing.T) {
	a, srv := newTestAdapter(t)

	tickets := []domain.TicketRequest{{EventID: "ev-1", Type: domain.TicketVIP, Quantity: 3, UnitPriceCents: 5000}}
	sess, err := a.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		BuyerID: "u-7",
		Items:   []gateway.LineItem{{Name: "Gig - vip", UnitAmountCents: 5000, Quantity: 3}},
		Tickets: tickets,
	})
	require.NoError(t, err)

	payload, sig := srv.CompletedWebhook(t, sess.ID)
	n, err := a.ParseWebhook(payload, sig)
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, sess.ID, n.SessionID)
	assert.Equal(t, "u-7", n.UserID)
	assert.Equal(t, tickets, n.Tickets)
	assert.NotEmpty(t, n.GatewayEventID)
}

func TestCreateCheckoutSession_LargeCartSplitsTicketMetadata(t *testing.T) {
	a, srv := newTestAdapter(t)

	var tickets []domain.TicketRequest
	var items []gateway.LineItem
	for i := 0; i < 10; i++ {
		tickets = append(tickets, domain.TicketRequest{
			EventID:        uuid.NewString(),
			Type:           domain.TicketStandard,
			Quantity:       100,
			UnitPriceCents: 1_000_000,
		})
		items = append(items, gateway.LineItem{Name: "Gig - standard", UnitAmountCents: 1_000_000, Quantity: 100})
	}

	sess, err := a.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		BuyerID: uuid.NewString(),
		Items:   items,
		Tickets: tickets,
	})
	require.NoError(t, err)

	meta := gatewaytest.Metadata(srv.Sessions()[0].Form)
	assert.Contains(t, meta, "tickets_1")
	for key, v := range meta {
		assert.LessOrEqual(t, len(v), maxMetadataValue, key)
	}

	payload, sig := srv.CompletedWebhook(t, sess.ID)
	n, err := a.ParseWebhook(payload, sig)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, tickets, n.Tickets)
}

func TestSplitMetadata(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{"fits", "abc", 5, []string{"abc"}},
		{"exact multiple", "abcdef", 3, []string{"abc", "def"}},
		{"remainder", "abcdefg", 3, []string{"abc", "def", "g"}},
		{"keeps runes whole", "aéb", 2, []string{"a", "é", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMetadata(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)

			md := make(map[string]string, len(got))
			for i, chunk := range got {
				md[chunkKey("tickets", i)] = chunk
			}
			assert.Equal(t, tt.in, joinMetadata(md, "tickets"))
		})
	}
}

func TestParseWebhook_BadSignature(t *testing.T) {
	a, _ := newTestAdapter(t)

	payload, sig := gatewaytest.SignedEvent(t, "checkout.session.completed", map[string]any{"id": "cs_1"})
	payload = append(payload, ' ')

	_, err := a.ParseWebhook(payload, sig)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)

	_, err = a.ParseWebhook(payload, "")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestParseWebhook_IgnoresOtherEvents(t *testing.T) {
	a, _ := newTestAdapter(t)

	payload, sig := gatewaytest.SignedEvent(t, "payment_intent.created", map[string]any{"id": "pi_1", "object": "payment_intent"})
	n, err := a.ParseWebhook(payload, sig)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestParseWebhook_UnpaidCompletionWaitsForAsyncSuccess(t *testing.T) {
	a, _ := newTestAdapter(t)

	object := map[string]any{
		"id":             "cs_async",
		"object":         "checkout.session",
		"payment_status": "unpaid",
		"metadata": map[string]string{
			"userId":  "u-1",
			"tickets": `[{"e":"ev-1","t":"standard","q":1,"p":100}]`,
		},
	}

	payload, sig := gatewaytest.SignedEvent(t, "checkout.session.completed", object)
	n, err := a.ParseWebhook(payload, sig)
	require.NoError(t, err)
	assert.Nil(t, n)

	payload, sig = gatewaytest.SignedEvent(t, "checkout.session.async_payment_succeeded", object)
	n, err = a.ParseWebhook(payload, sig)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "cs_async", n.SessionID)
	assert.Equal(t, 1, n.Tickets[0].Quantity)
}

func TestParseWebhook_MalformedMetadata(t *testing.T) {
	a, _ := newTestAdapter(t)

	payload, sig := gatewaytest.SignedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_bad",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]string{"userId": "u-1", "tickets": "not json"},
	})

	_, err := a.ParseWebhook(payload, sig)
	assert.ErrorIs(t, err, gateway.ErrMalformedNotification)
}
