package httpgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-events/internal/auth"
	"github.com/kirinyoku/tix-events/internal/gateway"
	"github.com/kirinyoku/tix-events/internal/service/checkout"
	"github.com/kirinyoku/tix-events/internal/service/events"
	"github.com/kirinyoku/tix-events/internal/service/fulfillment"
	"github.com/kirinyoku/tix-events/internal/service/users"
)

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var inv *fulfillment.InsufficientInventoryError

	switch {
	// auth
	case errors.Is(err, auth.ErrMissingToken):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no token provided"})
		return
	case errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "invalid or expired token"})
		return
	// users service
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "user with this email already exists"})
		return
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	case errors.Is(err, users.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not allowed to modify this user"})
		return
	case errors.Is(err, users.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "user was modified concurrently"})
		return
	case errors.Is(err, users.ErrOrganizationName):
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: map[string]string{"organizationName": "required"},
		})
		return
	// events service
	case errors.Is(err, events.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, events.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not allowed to modify this event"})
		return
	case errors.Is(err, events.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event was modified concurrently"})
		return
	// fulfillment
	case errors.As(err, &inv):
		c.JSON(http.StatusConflict, ErrorResponse{Error: inv.Error()})
		return
	case errors.Is(err, fulfillment.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "insufficient inventory"})
		return
	case errors.Is(err, fulfillment.ErrAlreadyFulfilled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "payment already fulfilled"})
		return
	case errors.Is(err, fulfillment.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment not found"})
		return
	case errors.Is(err, fulfillment.ErrBuyerNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "buyer not found"})
		return
	case errors.Is(err, fulfillment.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, fulfillment.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order"})
		return
	// checkout service
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no tickets provided"})
		return
	case errors.Is(err, checkout.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ticket quantity must be positive"})
		return
	case errors.Is(err, checkout.ErrTooManyLineItems):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "too many ticket lines"})
		return
	case errors.Is(err, checkout.ErrEventInPast):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "event already took place"})
		return
	case errors.Is(err, checkout.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, checkout.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment not found"})
		return
	case errors.Is(err, checkout.ErrNotFulfilled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "payment not fulfilled yet"})
		return
	case errors.Is(err, checkout.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not allowed to access this payment"})
		return
	// gateway
	case errors.Is(err, gateway.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "webhook signature verification failed"})
		return
	case errors.Is(err, gateway.ErrUpstream):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment gateway error"})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
