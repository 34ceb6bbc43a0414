package httpgin

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirinyoku/tix-events/internal/domain"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseFlow(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	orgToken, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	fanToken, fanID := h.signUp("fan@example.com", domain.RoleClient)

	ev := h.createEvent(orgToken, eventBody("Jazz Night", true))
	assert.Equal(t, 5, h.available(ev.ID, domain.TicketStandard))

	rec := h.checkout(fanToken, CheckoutTicket{EventID: ev.ID, Type: "Standard", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sess := decode[domain.CheckoutSession](t, rec)
	assert.NotEmpty(t, sess.URL)

	// nothing is taken before payment
	assert.Equal(t, 5, h.available(ev.ID, domain.TicketStandard))

	rec = h.pay(sess.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[WebhookResponse](t, rec).Received)

	assert.Equal(t, 3, h.available(ev.ID, domain.TicketStandard))

	rec = h.do(request{method: http.MethodGet, path: "/users/boughtTickets/" + fanID, token: fanToken})
	require.Equal(t, http.StatusOK, rec.Code)
	bought := decode[BoughtTicketsResponse](t, rec).Tickets
	require.Len(t, bought, 1)
	assert.Equal(t, 2, bought[0].Quantity)
	assert.Equal(t, int64(2000), bought[0].PriceCents)
	assert.Equal(t, ev.ID, bought[0].Event.EventID)
	assert.Equal(t, sess.ID, bought[0].SessionID)

	// a redelivered notification changes nothing
	rec = h.pay(sess.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, h.available(ev.ID, domain.TicketStandard))

	rec = h.do(request{method: http.MethodGet, path: "/payments/" + sess.ID, token: fanToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PaymentFulfilled, decode[domain.PaymentRecord](t, rec).Status)

	rec = h.do(request{method: http.MethodGet, path: "/payments/" + sess.ID + "/ticket", token: fanToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = h.do(request{method: http.MethodGet, path: "/events/" + ev.ID + "/buyers", token: orgToken})
	require.Equal(t, http.StatusOK, rec.Code)
	buyers := decode[[]domain.Buyer](t, rec)
	require.Len(t, buyers, 1)
	assert.Equal(t, fanID, buyers[0].ID)
}

func TestOversellIsRejectedAtPayment(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	orgToken, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	aToken, _ := h.signUp("a@example.com", domain.RoleClient)
	bToken, bID := h.signUp("b@example.com", domain.RoleClient)

	ev := h.createEvent(orgToken, eventBody("Jazz Night", true))

	// both carts fit the current stock, together they do not
	recA := h.checkout(aToken, CheckoutTicket{EventID: ev.ID, Type: "standard", Quantity: 3})
	require.Equal(t, http.StatusOK, recA.Code)
	recB := h.checkout(bToken, CheckoutTicket{EventID: ev.ID, Type: "standard", Quantity: 3})
	require.Equal(t, http.StatusOK, recB.Code)

	sessA := decode[domain.CheckoutSession](t, recA)
	sessB := decode[domain.CheckoutSession](t, recB)

	require.Equal(t, http.StatusOK, h.pay(sessA.ID).Code)
	require.Equal(t, http.StatusOK, h.pay(sessB.ID).Code)

	assert.Equal(t, 2, h.available(ev.ID, domain.TicketStandard))

	rec := h.do(request{method: http.MethodGet, path: "/payments/" + sessB.ID, token: bToken})
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[domain.PaymentRecord](t, rec)
	assert.Equal(t, domain.PaymentFailed, failed.Status)
	assert.Contains(t, failed.LastError, "insufficient")

	rec = h.do(request{method: http.MethodGet, path: "/users/boughtTickets/" + bID, token: bToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[BoughtTicketsResponse](t, rec).Tickets)

	rec = h.do(request{method: http.MethodGet, path: "/payments/" + sessB.ID + "/ticket", token: bToken})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(request{method: http.MethodPost, path: "/payments/replay/" + sessB.ID, token: bToken})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(request{method: http.MethodPost, path: "/payments/replay/" + sessA.ID, token: aToken})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already fulfilled")
}

func TestCheckout_Rejections(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	orgToken, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	fanToken, _ := h.signUp("fan@example.com", domain.RoleClient)
	ev := h.createEvent(orgToken, eventBody("Jazz Night", true))

	tests := []struct {
		name   string
		ticket CheckoutTicket
		code   int
	}{
		{"more than available", CheckoutTicket{EventID: ev.ID, Type: "standard", Quantity: 6}, http.StatusConflict},
		{"missing class", CheckoutTicket{EventID: ev.ID, Type: "vip", Quantity: 1}, http.StatusConflict},
		{"unknown event", CheckoutTicket{EventID: "nope", Type: "standard", Quantity: 1}, http.StatusNotFound},
		{"zero quantity", CheckoutTicket{EventID: ev.ID, Type: "standard", Quantity: 0}, http.StatusBadRequest},
		{"bad type", CheckoutTicket{EventID: ev.ID, Type: "balcony", Quantity: 1}, http.StatusBadRequest},
		{"quantity over line limit", CheckoutTicket{EventID: ev.ID, Type: "standard", Quantity: 101}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.checkout(fanToken, tt.ticket)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := h.do(request{
		method: http.MethodPost,
		path:   "/payments/create-checkout-session",
		body:   map[string]any{"tickets": []any{}},
		token:  fanToken,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.stripe.FailNext(http.StatusInternalServerError)
	rec = h.checkout(fanToken, CheckoutTicket{EventID: ev.ID, Type: "standard", Quantity: 1})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	assert.Equal(t, 5, h.available(ev.ID, domain.TicketStandard))
}

func TestCheckout_IdempotencyKeyReplaysSession(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	orgToken, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	fanToken, _ := h.signUp("fan@example.com", domain.RoleClient)
	ev := h.createEvent(orgToken, eventBody("Jazz Night", true))

	send := func() *httptest.ResponseRecorder {
		return h.do(request{
			method:  http.MethodPost,
			path:    "/payments/create-checkout-session",
			body:    CheckoutRequest{Tickets: []CheckoutTicket{{EventID: ev.ID, Type: "standard", Quantity: 1}}},
			token:   fanToken,
			headers: map[string]string{"Idempotency-Key": "cart-42"},
		})
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	assert.Equal(t, "cart-42", second.Header().Get("Idempotency-Key"))
	assert.Equal(t,
		decode[domain.CheckoutSession](t, first).ID,
		decode[domain.CheckoutSession](t, second).ID,
	)
	assert.Len(t, h.stripe.Sessions(), 1)
}

func TestWebhook_BadSignature(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	payload, _ := h.stripe.CompletedWebhook(t, mustSession(t, h))

	rec := h.do(request{
		method:  http.MethodPost,
		path:    "/payments/webhook",
		raw:     payload,
		headers: map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(request{method: http.MethodPost, path: "/payments/webhook", raw: payload})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustSession(t *testing.T, h *harness) string {
	t.Helper()

	orgToken, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	fanToken, _ := h.signUp("fan@example.com", domain.RoleClient)
	ev := h.createEvent(orgToken, eventBody("Jazz Night", true))

	rec := h.checkout(fanToken, CheckoutTicket{EventID: ev.ID, Type: "standard", Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[domain.CheckoutSession](t, rec).ID
}

func TestAuth_TokenHandling(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token, _ := h.signUp("org@example.com", domain.RoleOrganizer)

	rec := h.do(request{method: http.MethodPost, path: "/events", body: eventBody("Jazz Night", true)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "no token provided")

	rec = h.do(request{method: http.MethodPost, path: "/events", body: eventBody("Jazz Night", true), token: "garbage"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(request{
		method:  http.MethodPost,
		path:    "/events",
		body:    eventBody("Jazz Night", true),
		headers: map[string]string{"Authorization": token},
	})
	assert.Equal(t, http.StatusCreated, rec.Code, "bare token should be accepted")

	rec = h.do(request{method: http.MethodGet, path: "/events", token: "garbage"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuth_LoginFailures(t *testing.T) {
	h := newHarness(t, harnessOpts{loginLimit: 3})
	h.signUp("fan@example.com", domain.RoleClient) // one login attempt

	rec := h.do(request{method: http.MethodPost, path: "/users/login", body: map[string]string{
		"email": "fan@example.com", "password": "wrong-password",
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(request{method: http.MethodPost, path: "/users/login", body: map[string]string{
		"email": "nobody@example.com", "password": "secret123",
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(request{method: http.MethodPost, path: "/users/login", body: map[string]string{
		"email": "fan@example.com", "password": "secret123",
	}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAuth_LoginLimitKeysOnPeerAddress(t *testing.T) {
	login := func(h *harness, forwardedFor string) int {
		return h.do(request{
			method:  http.MethodPost,
			path:    "/users/login",
			body:    map[string]string{"email": "nobody@example.com", "password": "secret123"},
			headers: map[string]string{"X-Forwarded-For": forwardedFor},
		}).Code
	}

	t.Run("untrusted peer cannot rotate X-Forwarded-For", func(t *testing.T) {
		h := newHarness(t, harnessOpts{loginLimit: 2})

		assert.Equal(t, http.StatusUnauthorized, login(h, "203.0.113.1"))
		assert.Equal(t, http.StatusUnauthorized, login(h, "203.0.113.2"))
		assert.Equal(t, http.StatusTooManyRequests, login(h, "203.0.113.3"))
	})

	t.Run("trusted proxy forwards the client address", func(t *testing.T) {
		// httptest requests come from 192.0.2.1.
		h := newHarness(t, harnessOpts{loginLimit: 2, trustedProxies: []string{"192.0.2.1"}})

		assert.Equal(t, http.StatusUnauthorized, login(h, "203.0.113.1"))
		assert.Equal(t, http.StatusUnauthorized, login(h, "203.0.113.1"))
		assert.Equal(t, http.StatusTooManyRequests, login(h, "203.0.113.1"))
		assert.Equal(t, http.StatusUnauthorized, login(h, "203.0.113.2"))
	})
}

func TestUsers_RegisterAndProfile(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token, id := h.signUp("fan@example.com", domain.RoleClient)

	rec := h.do(request{method: http.MethodPost, path: "/users/register", body: map[string]any{
		"name": "Other", "email": "FAN@example.com", "password": "secret123", "role": "client",
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(request{method: http.MethodPost, path: "/users/register", body: map[string]any{
		"name": "Org", "email": "org@example.com", "password": "secret123", "role": "organizer",
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "required_if", decode[ValidationErrorResponse](t, rec).Fields["organizationName"])

	rec = h.do(request{method: http.MethodGet, path: "/users/" + id, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = h.do(request{method: http.MethodPut, path: "/users/" + id, token: token, body: map[string]any{"name": "Renamed Fan"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed Fan", decode[domain.User](t, rec).Name)

	rec = h.do(request{method: http.MethodDelete, path: "/users/" + id, token: token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(request{method: http.MethodGet, path: "/users/" + id, token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_ValidationReportsFields(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token, _ := h.signUp("org@example.com", domain.RoleOrganizer)

	body := eventBody("Jazz Night", true, map[string]any{
		"type": "gold", "priceCents": 100, "availableQuantity": -1,
	}, map[string]any{
		"type": "vip", "priceCents": 100, "availableQuantity": 2000000,
	})
	body["name"] = ""
	body["date"] = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	rec := h.do(request{method: http.MethodPost, path: "/events", body: body, token: token})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	fields := decode[ValidationErrorResponse](t, rec).Fields
	assert.Equal(t, "required", fields["name"])
	assert.Equal(t, "future", fields["date"])
	assert.Equal(t, "tickettype", fields["tickets[0].type"])
	assert.Equal(t, "min", fields["tickets[0].availableQuantity"])
	assert.Equal(t, "max", fields["tickets[1].availableQuantity"])

	rec = h.do(request{method: http.MethodPost, path: "/events", raw: []byte("{not json"), token: token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvents_CRUDAndVisibility(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token, _ := h.signUp("org@example.com", domain.RoleOrganizer)

	pub := h.createEvent(token, eventBody("Open Air", true))
	priv := h.createEvent(token, eventBody("Members Only", false))

	rec := h.do(request{method: http.MethodGet, path: "/events"})
	require.Equal(t, http.StatusOK, rec.Code)
	anon := decode[[]domain.Event](t, rec)
	require.Len(t, anon, 1)
	assert.Equal(t, pub.ID, anon[0].ID)

	rec = h.do(request{method: http.MethodGet, path: "/events", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Event](t, rec), 2)

	rec = h.do(request{method: http.MethodGet, path: "/events/" + priv.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(request{method: http.MethodGet, path: "/events/" + priv.ID, token: token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, no-cache", rec.Header().Get("Cache-Control"))

	update := eventBody("Open Air Festival", true)
	rec = h.do(request{method: http.MethodPut, path: "/events/" + pub.ID, body: update, token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the cached copy was dropped on update
	rec = h.do(request{method: http.MethodGet, path: "/events/" + pub.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Open Air Festival", decode[domain.Event](t, rec).Name)

	rec = h.do(request{method: http.MethodDelete, path: "/events/" + pub.ID, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(request{method: http.MethodDelete, path: "/events/" + pub.ID, token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(request{method: http.MethodGet, path: "/events/" + pub.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_OwnershipEnforced(t *testing.T) {
	h := newHarness(t, harnessOpts{enforceOwnership: true})
	owner, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	other, _ := h.signUp("rival@example.com", domain.RoleOrganizer)

	ev := h.createEvent(owner, eventBody("Open Air", true))

	rec := h.do(request{method: http.MethodDelete, path: "/events/" + ev.ID, token: other})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(request{method: http.MethodDelete, path: "/events/" + ev.ID, token: owner})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEvents_ETagNotModified(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	h.createEvent(token, eventBody("Open Air", true))

	rec := h.do(request{method: http.MethodGet, path: "/events"})
	require.Equal(t, http.StatusOK, rec.Code)
	tag := rec.Header().Get("ETag")
	require.NotEmpty(t, tag)
	assert.Equal(t, "public, max-age=15", rec.Header().Get("Cache-Control"))

	rec = h.do(request{method: http.MethodGet, path: "/events", headers: map[string]string{"If-None-Match": tag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestEventStream_AnnouncesChanges(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	token, _ := h.signUp("org@example.com", domain.RoleOrganizer)
	ev := h.createEvent(token, eventBody("Open Air", true))

	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return h.redis.PubSubNumSub(redisrepo.ChannelEventsChanged())[redisrepo.ChannelEventsChanged()] > 0
	}, 2*time.Second, 10*time.Millisecond)

	rec := h.do(request{method: http.MethodPut, path: "/events/" + ev.ID, body: eventBody("Open Air II", true), token: token})
	require.Equal(t, http.StatusOK, rec.Code)

	sc := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for sc.Scan() {
		line := sc.Text()
		if line == "event:event_changed" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data:") {
			assert.Contains(t, line, ev.ID)
			return
		}
	}
	t.Fatalf("stream ended without an event_changed message: %v", sc.Err())
}
