package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/tix-events/internal/auth"
	"github.com/kirinyoku/tix-events/internal/config"
	"github.com/kirinyoku/tix-events/internal/gateway/stripe"
	"github.com/kirinyoku/tix-events/internal/postgres"
	"github.com/kirinyoku/tix-events/internal/redis"
	"github.com/kirinyoku/tix-events/internal/repository"
	"github.com/kirinyoku/tix-events/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-events/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/kirinyoku/tix-events/internal/service"
	httpgin "github.com/kirinyoku/tix-events/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := httpgin.Deps{
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
	}

	var (
		cache    *redisrepo.Cache
		notifier service.Notifier
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache = redisrepo.New(rdb)
		deps.PubSub = redisrepo.NewEventsPubSub(rdb)
		notifier = redisrepo.NewChangeNotifier(cache, deps.PubSub, logger)
		deps.Idem = redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
		if cfg.Policy.LoginRateLimit > 0 {
			deps.LoginLimiter = redisrepo.NewSlidingWindowLimiter(rdb, "login", cfg.Policy.LoginRateLimit, time.Minute)
		}
	} else {
		logger.Warn("redis disabled: no caching, rate limiting, idempotency keys or change stream")
	}

	tokens, err := auth.New(auth.Config{Secret: []byte(cfg.Auth.Secret), TTL: cfg.Auth.TTL})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}
	deps.Tokens = tokens

	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		logger.Warn("stripe credentials missing: checkout and webhooks will fail")
	}

	gw := stripe.New(stripe.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		FrontendURL:   cfg.Stripe.FrontendURL,
	})

	deps.Services = service.NewServices(store, cache, notifier, tokens, gw, logger, service.Config{
		EnforceOwnership: cfg.Policy.EnforceOwnership,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpgin.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured document store. The Postgres schema is
// applied on every start.
func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory store: data is lost on restart")
		return memory.NewStore(), nil
	case config.DriverPostgres:
		pool, err := postgres.New(ctx, postgres.Config{
			DSN:      a.cfg.Postgres.DSN(),
			MaxConns: a.cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		store := postgresrepo.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

// Migrate applies the Postgres schema without starting the server.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations need STORE_DRIVER=%s, got %q", config.DriverPostgres, cfg.Store.Driver)
	}

	a := &App{cfg: cfg, logger: logger}
	defer a.Close()

	_, err := a.openStore(ctx)
	return err
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
