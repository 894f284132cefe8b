package domain

import "errors"

// Trading failures. Venue adapters wrap these so callers can branch with
// errors.Is regardless of which venue produced them.
var (
	ErrQuoteUnavailable  = errors.New("quote unavailable")
	ErrRouteFailure      = errors.New("route failure")
	ErrSubmitFailure     = errors.New("submit failure")
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	ErrComputation       = errors.New("computation error")
)

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrSigningFailed   = errors.New("signing failed")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrLockHeld        = errors.New("lock already held")
	ErrAlreadyRunning  = errors.New("already running")
	ErrNotRunning      = errors.New("not running")
)
