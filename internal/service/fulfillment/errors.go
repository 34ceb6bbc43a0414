package fulfillment

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/tix-events/internal/domain"
)

var (
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrAlreadyFulfilled      = errors.New("payment already fulfilled")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrBuyerNotFound         = errors.New("buyer not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrInvalidOrder          = errors.New("invalid order")
)

// InsufficientInventoryError names the ticket class that could not cover a
// request. It matches ErrInsufficientInventory with errors.Is.
type InsufficientInventoryError struct {
	EventID   string
	Type      domain.TicketType
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("%v: event %s has no %q tickets", ErrInsufficientInventory, e.EventID, e.Type)
	}
	return fmt.Sprintf(
		"%v: event %s: requested %d %q tickets, %d available",
		ErrInsufficientInventory, e.EventID, e.Requested, e.Type, e.Available,
	)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientInventory
}
