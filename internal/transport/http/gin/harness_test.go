package httpgin

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-events/internal/auth"
	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/gateway/gatewaytest"
	"github.com/kirinyoku/tix-events/internal/gateway/stripe"
	"github.com/kirinyoku/tix-events/internal/repository/memory"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/kirinyoku/tix-events/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harnessOpts struct {
	enforceOwnership bool
	loginLimit       int
	trustedProxies   []string
}

type harness struct {
	t      testing.TB
	router *gin.Engine
	store  *memory.Store
	stripe *gatewaytest.StripeServer
	redis  *miniredis.Miniredis
}

func newHarness(t testing.TB, opts harnessOpts) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.NewStore()
	srv := gatewaytest.NewStripeServer(t)
	gw := stripe.New(stripe.Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: gatewaytest.WebhookSecret,
		FrontendURL:   "https://tix.example",
		Backends:      srv.Backends(),
	})

	tokens, err := auth.New(auth.Config{Secret: []byte("test-secret"), TTL: time.Hour})
	require.NoError(t, err)

	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewEventsPubSub(rdb)

	svcs := service.NewServices(
		store,
		cache,
		redisrepo.NewChangeNotifier(cache, pubsub, log),
		tokens,
		gw,
		log,
		service.Config{EnforceOwnership: opts.enforceOwnership},
	)

	var limiter *redisrepo.SlidingWindowLimiter
	if opts.loginLimit > 0 {
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "login", opts.loginLimit, time.Minute)
	}

	router := NewRouter(Deps{
		Services:     svcs,
		Tokens:       tokens,
		Idem:         redisrepo.NewIdempotencyStore(rdb, time.Hour),
		LoginLimiter: limiter,
		PubSub:       pubsub,
		Logger:       log,

		TrustedProxies: opts.trustedProxies,
	})

	return &harness{t: t, router: router, store: store, stripe: srv, redis: mr}
}

type request struct {
	method  string
	path    string
	body    any
	raw     []byte
	token   string
	headers map[string]string
}

func (h *harness) do(r request) *httptest.ResponseRecorder {
	h.t.Helper()

	var body io.Reader = http.NoBody
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
	case r.body != nil:
		b, err := json.Marshal(r.body)
		require.NoError(h.t, err)
		body = bytes.NewReader(b)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// signUp registers a user and logs them in, returning the token and id.
func (h *harness) signUp(email string, role domain.Role) (token, id string) {
	h.t.Helper()

	reg := map[string]any{
		"name":     "Test User",
		"email":    email,
		"password": "secret123",
		"role":     role,
	}
	if role == domain.RoleOrganizer {
		reg["organizationName"] = "Acme Live"
	}

	rec := h.do(request{method: http.MethodPost, path: "/users/register", body: reg})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(request{method: http.MethodPost, path: "/users/login", body: map[string]string{
		"email":    email,
		"password": "secret123",
	}})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[LoginResponse](h.t, rec)
	return resp.Token, resp.User.ID
}

func eventBody(name string, public bool, tickets ...map[string]any) map[string]any {
	if len(tickets) == 0 {
		tickets = []map[string]any{{"type": "standard", "priceCents": 2000, "availableQuantity": 5}}
	}

	return map[string]any{
		"name":             name,
		"description":      "An evening of live music downtown.",
		"date":             time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"isPublic":         public,
		"organizationName": "Acme Live",
		"location":         map[string]any{"name": "Blue Hall", "city": "Lisbon", "capacity": 300},
		"tickets":          tickets,
	}
}

func (h *harness) createEvent(token string, body map[string]any) domain.Event {
	h.t.Helper()

	rec := h.do(request{method: http.MethodPost, path: "/events", body: body, token: token})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Event](h.t, rec)
}

func (h *harness) checkout(token string, tickets ...CheckoutTicket) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.do(request{
		method: http.MethodPost,
		path:   "/payments/create-checkout-session",
		body:   CheckoutRequest{Tickets: tickets},
		token:  token,
	})
}

// pay delivers a signed completion webhook for sessionID.
func (h *harness) pay(sessionID string) *httptest.ResponseRecorder {
	h.t.Helper()

	payload, sig := h.stripe.CompletedWebhook(h.t, sessionID)
	return h.do(request{
		method:  http.MethodPost,
		path:    "/payments/webhook",
		raw:     payload,
		headers: map[string]string{"Stripe-Signature": sig},
	})
}

func (h *harness) available(eventID string, typ domain.TicketType) int {
	h.t.Helper()

	rec := h.do(request{method: http.MethodGet, path: "/events/" + eventID})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	e := decode[domain.Event](h.t, rec)
	i := e.TicketClass(typ)
	require.GreaterOrEqual(h.t, i, 0, "no %s class", typ)
	return e.Tickets[i].AvailableQuantity
}
