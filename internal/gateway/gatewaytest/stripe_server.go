// Package gatewaytest runs a stand-in for the Stripe Checkout API so the
// adapter can be exercised end to end without network access.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const WebhookSecret = "whsec_test_secret"

const maxMetadataValue = 500

// Session is a checkout session the fake API accepted.
type Session struct {
	ID   string
	Form url.Values
}

type StripeServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	seq      int
	sessions map[string]Session
	order    []string
	failNext int
}

// NewStripeServer starts a fake API that is closed when t finishes.
func NewStripeServer(t testing.TB) *StripeServer {
	t.Helper()

	s := &StripeServer{sessions: map[string]Session{}}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)

	return s
}

// Backends routes every Stripe client call to the fake server.
func (s *StripeServer) Backends() *stripego.Backends {
	b := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(s.srv.URL),
		HTTPClient:        s.srv.Client(),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})

	return &stripego.Backends{API: b, Connect: b, Uploads: b}
}

// FailNext makes the next session creation answer with status.
func (s *StripeServer) FailNext(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = status
}

func (s *StripeServer) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id])
	}
	return out
}

func (s *StripeServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"unknown route"}}`)
		return
	}

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, `{"error":{"type":"invalid_request_error","message":%q}}`, err.Error())
		return
	}

	for key, vals := range r.PostForm {
		if !strings.HasPrefix(key, "metadata[") {
			continue
		}
		for _, v := range vals {
			if utf8.RuneCountInString(v) > maxMetadataValue {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = fmt.Fprintf(w, `{"error":{"type":"invalid_request_error","message":"Metadata values can have up to %d characters","param":%q}}`, maxMetadataValue, key)
				return
			}
		}
	}

	s.mu.Lock()
	if status := s.failNext; status != 0 {
		s.failNext = 0
		s.mu.Unlock()
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, `{"error":{"type":"api_error","message":"upstream unavailable"}}`)
		return
	}

	s.seq++
	id := fmt.Sprintf("cs_test_%d", s.seq)
	s.sessions[id] = Session{ID: id, Form: r.PostForm}
	s.order = append(s.order, id)
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":             id,
		"object":         "checkout.session",
		"url":            "https://checkout.stripe.test/pay/" + id,
		"payment_status": "unpaid",
	})
}

// CompletedWebhook builds a signed checkout.session.completed delivery for a
// session created through the fake API.
func (s *StripeServer) CompletedWebhook(t testing.TB, sessionID string) (payload []byte, sigHeader string) {
	t.Helper()

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("unknown checkout session %q", sessionID)
	}

	return SignedEvent(t, "checkout.session.completed", map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       Metadata(sess.Form),
	})
}

// Metadata collects the metadata[...] fields of a session form.
func Metadata(form url.Values) map[string]string {
	out := make(map[string]string)
	for key := range form {
		if name, ok := strings.CutPrefix(key, "metadata["); ok {
			out[strings.TrimSuffix(name, "]")] = form.Get(key)
		}
	}
	return out
}

// SignedEvent wraps object in an event envelope of type typ and signs it
// with WebhookSecret.
func SignedEvent(t testing.TB, typ string, object map[string]any) ([]byte, string) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_test_%d", time.Now().UnixNano()),
		"object":      "event",
		"type":        typ,
		"api_version": stripego.APIVersion,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  WebhookSecret,
	})

	return payload, signed.Header
}
