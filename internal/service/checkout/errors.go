package checkout

import "errors"

var (
	ErrEmptyCart        = errors.New("no tickets provided")
	ErrInvalidQuantity  = errors.New("ticket quantity must be positive")
	ErrEventNotFound    = errors.New("event not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrForbidden        = errors.New("not allowed to access this payment")
	ErrEventInPast      = errors.New("event already took place")
	ErrTooManyLineItems = errors.New("too many ticket lines")
	ErrNotFulfilled     = errors.New("payment not fulfilled")
)
