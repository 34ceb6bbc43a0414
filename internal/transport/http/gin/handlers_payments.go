package httpgin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-events/internal/domain"
	redisrepo "github.com/kirinyoku/tix-events/internal/repository/redis"
	"github.com/kirinyoku/tix-events/internal/service"
	"github.com/kirinyoku/tix-events/internal/service/checkout"
)

// @Summary  Create checkout session (idempotent)
// @Tags     payments
// @Security BearerAuth
// @Param    req body  CheckoutRequest true "tickets"
// @Header   200 {string} Idempotency-Key "echo"
// @Success  200 {object} domain.CheckoutSession
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "insufficient inventory / idem in progress"
// @Failure  502 {object} ErrorResponse "payment gateway error"
// @Router   /payments/create-checkout-session [post]
func handleCreateCheckoutSession(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if !bindJSON(c, &req) {
			return
		}

		caller, _ := identity(c)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemCheckout(caller.UserID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusOK,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusOK,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		items := make([]checkout.Item, 0, len(req.Tickets))
		for _, t := range req.Tickets {
			items = append(items, checkout.Item{
				EventID:  t.EventID,
				Type:     domain.TicketType(normalizeTicketType(t.Type)),
				Quantity: t.Quantity,
			})
		}

		var gatewayKey string
		if idemKey != "" {
			gatewayKey = caller.UserID + ":" + idemKey
		}

		sess, err := svcs.Checkout.CreateSession(c.Request.Context(), caller.UserID, items, gatewayKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(sess)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, sess)
	}
}

// @Summary  Payment gateway webhook
// @Description Verified against the Stripe-Signature header over the raw body.
// @Tags     payments
// @Param    Stripe-Signature header string true "signature"
// @Success  200 {object} WebhookResponse
// @Failure  400 {object} ErrorResponse "signature verification failed"
// @Router   /payments/webhook [post]
func handleWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
			return
		}

		if err := svcs.Checkout.HandleWebhook(
			c.Request.Context(),
			payload,
			c.GetHeader("Stripe-Signature"),
		); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}
}

// @Summary  Re-run fulfillment for a stored payment
// @Tags     payments
// @Security BearerAuth
// @Param    sessionId  path  string  true  "Checkout session ID"
// @Success  200 {object} ReplayResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already fulfilled / insufficient inventory"
// @Router   /payments/replay/{sessionId} [post]
func handleReplayPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, _ := identity(c)
		sessionID := c.Param("sessionId")

		if err := svcs.Checkout.Replay(c.Request.Context(), caller.UserID, sessionID); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ReplayResponse{SessionID: sessionID, Status: domain.PaymentFulfilled})
	}
}

// @Summary  Get payment record
// @Tags     payments
// @Security BearerAuth
// @Param    sessionId  path  string  true  "Checkout session ID"
// @Success  200 {object} domain.PaymentRecord
// @Failure  404 {object} ErrorResponse
// @Router   /payments/{sessionId} [get]
func handleGetPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, _ := identity(c)

		rec, err := svcs.Checkout.Get(c.Request.Context(), caller.UserID, c.Param("sessionId"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

// @Summary  Download the e-ticket of a fulfilled payment
// @Tags     payments
// @Security BearerAuth
// @Produce  application/pdf
// @Param    sessionId  path  string  true  "Checkout session ID"
// @Success  200 {file} binary
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "not fulfilled yet"
// @Router   /payments/{sessionId}/ticket [get]
func handleTicketPDF(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, _ := identity(c)
		sessionID := c.Param("sessionId")

		pdf, err := svcs.Checkout.Ticket(c.Request.Context(), caller.UserID, sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="ticket-`+sessionID+`.pdf"`)
		c.Header("Cache-Control", "private, no-store")
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}
