package httpgin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
)

const streamKeepAlive = 25 * time.Second

// @Summary  Stream event changes
// @Description Server-sent events, one "event_changed" per committed change.
// @Tags     events
// @Produce  text/event-stream
// @Success  200
// @Failure  503 {object} ErrorResponse "stream unavailable"
// @Router   /events/stream [get]
func handleEventStream(ps *redisrepo.EventsPubSub, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ps == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "change stream unavailable"})
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		changes := make(chan string, 64)
		go func() {
			err := ps.Subscribe(ctx, func(_ context.Context, eventID string) {
				select {
				case changes <- eventID:
				default:
					// slow client; it refetches on the next message anyway
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("change stream subscription ended", slog.Any("error", err))
				cancel()
			}
		}()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("ready", gin.H{"ok": true})
		c.Writer.Flush()

		ping := time.NewTicker(streamKeepAlive)
		defer ping.Stop()

		c.Stream(func(io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case id := <-changes:
				c.SSEvent("event_changed", gin.H{"eventId": id})
				return true
			case <-ping.C:
				c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
				return true
			}
		})
	}
}
