package events

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrForbidden        = errors.New("not allowed to modify this event")
	ErrConcurrentUpdate = errors.New("event was modified concurrently")
)
