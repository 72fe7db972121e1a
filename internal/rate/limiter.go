package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal/ephemeral"
)

// Config sets the budget of a fixed window.
type Config struct {
	Max    int
	Window time.Duration
}

// Limiter allows at most Max hits per subject within Window.
type Limiter struct {
	store  ephemeral.Store
	prefix string
	config Config
}

// New creates a Limiter whose keys are prefix+subject.
func New(store ephemeral.Store, prefix string, cfg Config) *Limiter {
	return &Limiter{store: store, prefix: prefix, config: cfg}
}

// Allow records a hit for subject and returns ErrRateLimited when the hit
// exceeds the budget. A nil Limiter or a non-positive Max allows everything.
func (l *Limiter) Allow(ctx context.Context, subject string) error {
	if l == nil || l.config.Max <= 0 {
		return nil
	}
	count, err := ephemeral.IncrementWithTTL(ctx, l.store, l.prefix+subject, l.config.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count > int64(l.config.Max) {
		return ErrRateLimited
	}
	return nil
}

// RetryAfter returns how long until the current window for subject closes.
func (l *Limiter) RetryAfter(ctx context.Context, subject string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	ttl, ok, err := l.store.RemainingTTL(ctx, l.prefix+subject)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return 0, nil
	}
	return ttl, nil
}

// Reset discards the window for subject.
func (l *Limiter) Reset(ctx context.Context, subject string) error {
	if l == nil {
		return nil
	}
	if _, err := l.store.Delete(ctx, l.prefix+subject); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
