package rate

import "errors"

var (
	// ErrRateLimited is returned once a window's budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps ephemeral store failures.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)
