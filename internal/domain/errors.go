package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidCycle      = errors.New("invalid cycle definition")
	ErrStaleSnapshot     = errors.New("market snapshot stale")
	ErrIncompleteDepth   = errors.New("market snapshot incomplete")
	ErrUnknownVenue      = errors.New("unknown venue")
)
