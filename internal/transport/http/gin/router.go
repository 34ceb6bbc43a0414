package httpgin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-events/internal/auth"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/kirinyoku/tix-events/internal/service"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps are the collaborators the HTTP layer needs. The Redis-backed ones may
// be nil; their features are then switched off.
type Deps struct {
	Services     *service.Services
	Tokens       *auth.Service
	Idem         *redisrepo.IdempotencyStore
	LoginLimiter *redisrepo.SlidingWindowLimiter
	PubSub       *redisrepo.EventsPubSub
	Logger       *slog.Logger

	// AllowedOrigins restricts CORS; empty allows any origin.
	AllowedOrigins []string
	// TrustedProxies are the peers whose X-Forwarded-For is believed when
	// resolving the client IP. Empty trusts none.
	TrustedProxies []string
}

func NewRouter(deps Deps, middlewares ...gin.HandlerFunc) *gin.Engine {
	registerValidators()

	svcs := deps.Services
	logger := deps.Logger

	r := gin.New()
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, trusting none", slog.Any("error", err))
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(deps.AllowedOrigins...))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := AuthMiddleware(deps.Tokens)
	optionalAuth := OptionalAuthMiddleware(deps.Tokens)

	u := r.Group("/users")
	{
		u.POST("/register", handleRegister(svcs))
		u.POST("/login", RateLimitMiddleware(deps.LoginLimiter, logger), handleLogin(svcs))
		u.GET("/boughtTickets/:id", requireAuth, handleBoughtTickets(svcs))
		u.GET("/:id", requireAuth, handleGetUser(svcs))
		u.PUT("/:id", requireAuth, handleUpdateUser(svcs))
		u.DELETE("/:id", requireAuth, handleDeleteUser(svcs))
	}

	e := r.Group("/events")
	{
		e.GET("", optionalAuth, handleListEvents(svcs))
		e.GET("/stream", handleEventStream(deps.PubSub, logger))
		e.GET("/:id", optionalAuth, handleGetEvent(svcs))
		e.GET("/:id/buyers", requireAuth, handleListBuyers(svcs))
		e.POST("", requireAuth, handleCreateEvent(svcs))
		e.PUT("/:id", requireAuth, handleUpdateEvent(svcs))
		e.DELETE("/:id", requireAuth, handleDeleteEvent(svcs))
	}

	p := r.Group("/payments")
	{
		// The signature covers the raw body, so nothing may read it first.
		p.POST("/webhook", handleWebhook(svcs))
		p.POST("/create-checkout-session", requireAuth, handleCreateCheckoutSession(svcs, deps.Idem))
		p.POST("/replay/:sessionId", requireAuth, handleReplayPayment(svcs))
		p.GET("/:sessionId", requireAuth, handleGetPayment(svcs))
		p.GET("/:sessionId/ticket", requireAuth, handleTicketPDF(svcs))
	}

	return r
}
