package limiters

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/internal/ephemeral"
	"github.com/MrEthical07/authgate/internal/rate"
)

var (
	// ErrAccountRateLimited reports that the client IP used up its
	// registration window.
	ErrAccountRateLimited      = errors.New("account creation rate limited")
	// ErrAccountStoreUnavailable wraps a backend failure of the window.
	ErrAccountStoreUnavailable = errors.New("account creation limiter unavailable")
)

// AccountCreationLimiter throttles registrations per client IP.
type AccountCreationLimiter struct {
	window *rate.Limiter
}

// NewAccountCreationLimiter keeps its windows in store under "register:ip:".
func NewAccountCreationLimiter(store ephemeral.Store, cfg rate.Config) *AccountCreationLimiter {
	return &AccountCreationLimiter{window: rate.New(store, "register:ip:", cfg)}
}

// Enforce counts one registration for ip. A nil limiter or an empty ip
// always passes.
func (l *AccountCreationLimiter) Enforce(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	err := l.window.Allow(ctx, ip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrAccountRateLimited
	default:
		return errors.Join(ErrAccountStoreUnavailable, err)
	}
}
