package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authgate/internal/ephemeral"
)

const (
	failedKeyPrefix = "login:failed:"
	lockedKeyPrefix = "login:locked:"
)

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutConfig holds configuration for the login lockout.
type LockoutConfig struct {
	MaxFailures  int
	LockDuration time.Duration
	// CounterMargin extends the failure counter's lifetime past the lock so
	// the count is still inspectable after one full lock cycle.
	CounterMargin time.Duration
}

// LockStatus is the result of Check.
type LockStatus struct {
	Locked    bool
	Remaining time.Duration
}

// RemainingSeconds rounds Remaining up to whole seconds.
func (s LockStatus) RemainingSeconds() int64 {
	if s.Remaining <= 0 {
		return 0
	}
	return int64((s.Remaining + time.Second - 1) / time.Second)
}

// FailureOutcome is the result of RecordFailure.
type FailureOutcome struct {
	LockedNow         bool
	RemainingAttempts int
}

// Lockout tracks failed logins per principal and locks the principal once
// MaxFailures is reached.
type Lockout struct {
	store  ephemeral.Store
	config LockoutConfig
}

// NewLockout creates a Lockout.
func NewLockout(store ephemeral.Store, cfg LockoutConfig) *Lockout {
	return &Lockout{store: store, config: cfg}
}

// Principal picks the lockout key: the explicit username or phone when
// present, otherwise the client IP.
func Principal(explicit, clientIP string) string {
	if explicit != "" {
		return explicit
	}
	return "ip:" + clientIP
}

// Check reports whether principal is locked and for how long.
func (l *Lockout) Check(ctx context.Context, principal string) (LockStatus, error) {
	ttl, ok, err := l.store.RemainingTTL(ctx, lockedKeyPrefix+principal)
	if err != nil {
		return LockStatus{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if !ok {
		return LockStatus{}, nil
	}
	return LockStatus{Locked: true, Remaining: ttl}, nil
}

// RecordFailure counts one failed attempt. Concurrent failures for the same
// principal are all counted because the increment is a single INCR. The
// lock is written with SET NX so repeated failures never extend it.
func (l *Lockout) RecordFailure(ctx context.Context, principal string) (FailureOutcome, error) {
	count, err := ephemeral.IncrementWithTTL(ctx, l.store, failedKeyPrefix+principal, l.config.LockDuration+l.config.CounterMargin)
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if count >= int64(l.config.MaxFailures) {
		if _, err := l.store.SetIfAbsent(ctx, lockedKeyPrefix+principal, strconv.FormatInt(count, 10), l.config.LockDuration); err != nil {
			return FailureOutcome{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		return FailureOutcome{LockedNow: true, RemainingAttempts: 0}, nil
	}

	return FailureOutcome{RemainingAttempts: l.config.MaxFailures - int(count)}, nil
}

// Reset clears the failure counter of principal. An active lock is left in
// place and expires on its own.
func (l *Lockout) Reset(ctx context.Context, principal string) error {
	if _, err := l.store.Delete(ctx, failedKeyPrefix+principal); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the current failure counter of principal.
func (l *Lockout) FailureCount(ctx context.Context, principal string) (int64, error) {
	raw, ok, err := l.store.Get(ctx, failedKeyPrefix+principal)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}
