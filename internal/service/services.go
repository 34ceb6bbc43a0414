package service

import (
	"log/slog"

	"github.com/kirinyoku/tix-events/internal/auth"
	"github.com/kirinyoku/tix-events/internal/gateway"
	"github.com/kirinyoku/tix-events/internal/repository"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/kirinyoku/tix-events/internal/service/checkout"
	"github.com/kirinyoku/tix-events/internal/service/events"
	"github.com/kirinyoku/tix-events/internal/service/fulfillment"
	"github.com/kirinyoku/tix-events/internal/service/users"
)

type Services struct {
	Users       *users.Service
	Events      *events.Service
	Fulfillment *fulfillment.Service
	Checkout    *checkout.Service
}

type Config struct {
	Events           events.Config
	EnforceOwnership bool
}

// Notifier fans a committed event change out to caches and subscribers.
type Notifier interface {
	events.Notifier
	fulfillment.Notifier
}

// NewServices wires the services around one store. cache and notifier may be
// nil when Redis is not configured.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	notifier Notifier,
	tokens *auth.Service,
	gw gateway.Gateway,
	log *slog.Logger,
	cfg Config,
) *Services {
	cfg.Events.EnforceOwnership = cfg.EnforceOwnership

	var (
		evNotifier events.Notifier
		fuNotifier fulfillment.Notifier
	)
	if notifier != nil {
		evNotifier, fuNotifier = notifier, notifier
	}

	f := fulfillment.New(store, fuNotifier, log.With(slog.String("component", "fulfillment")))

	return &Services{
		Users:       users.New(store, tokens, log, users.Config{EnforceOwnership: cfg.EnforceOwnership}),
		Events:      events.New(store, cache, evNotifier, log, cfg.Events),
		Fulfillment: f,
		Checkout:    checkout.New(store, gw, f, log, checkout.Config{EnforceOwnership: cfg.EnforceOwnership}),
	}
}
