package httpgin

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/tix-events/internal/auth"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
)

const maxRequestIDLen = 128

// RequestIDMiddleware propagates a caller supplied X-Request-ID or mints one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set("request_id", reqID)

		c.Next()
	}
}

// CORS allows the listed browser origins, or any origin when none are given.
func CORS(origins ...string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{
			"GET", "POST", "PUT", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Request-ID",
			"Idempotency-Key",
			"If-None-Match",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"ETag",
			"Cache-Control",
			"Retry-After",
			"Idempotency-Key",
		},
		MaxAge: 12 * time.Hour,
	}

	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}

// LoggingMiddleware writes one line per request. Server errors log at error
// level with whatever handlers attached via c.Error, client errors at warn.
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		reqID, _ := c.Get("request_id")

		attrs := []any{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.String("ip", c.ClientIP()),
			slog.Any("request_id", reqID),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", c.Writer.Size()),
		}

		if id, ok := auth.FromContext(c.Request.Context()); ok {
			attrs = append(attrs, slog.String("user_id", id.UserID))
		}

		switch {
		case status >= http.StatusInternalServerError || len(c.Errors) > 0:
			logger.Error("http",
				slog.Group("http", attrs...),
				slog.String("error", c.Errors.String()),
			)
		case status >= http.StatusBadRequest:
			logger.Warn("http", slog.Group("http", attrs...))
		case c.FullPath() == "/healthz":
			logger.Debug("http", slog.Group("http", attrs...))
		default:
			logger.Info("http", slog.Group("http", attrs...))
		}
	}
}

// AuthMiddleware requires a valid token in the Authorization header, either
// "Bearer <token>" or the bare token. Missing credentials get 401, bad ones 403.
func AuthMiddleware(tokens *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, tokens) {
			return
		}
		if _, ok := auth.FromContext(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "no token provided"})
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the caller's identity when a token is
// sent and lets anonymous requests through.
func OptionalAuthMiddleware(tokens *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, tokens) {
			c.Next()
		}
	}
}

// authenticate validates any presented token and stores the identity on the
// request context. It reports false after aborting the request.
func authenticate(c *gin.Context, tokens *auth.Service) bool {
	raw := auth.ExtractToken(c.GetHeader("Authorization"))
	if raw == "" {
		return true
	}

	id, err := tokens.ValidateToken(raw)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return true
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "invalid or expired token"})
		return false
	}

	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
	return true
}

// RateLimitMiddleware applies limiter per client IP. A nil limiter disables
// it; limiter failures let the request through.
func RateLimitMiddleware(limiter *redisrepo.SlidingWindowLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ok, _, retry, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", slog.Any("error", err))
			c.Next()
			return
		}

		if !ok {
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}

		c.Next()
	}
}

func identity(c *gin.Context) (auth.Identity, bool) {
	return auth.FromContext(c.Request.Context())
}
