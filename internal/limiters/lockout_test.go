package limiters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/internal/ephemeral"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (ephemeral.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return ephemeral.NewRedisStore(rdb, ""), mr
}

func defaultLockout(store ephemeral.Store) *Lockout {
	return NewLockout(store, LockoutConfig{
		MaxFailures:   5,
		LockDuration:  15 * time.Minute,
		CounterMargin: 10 * time.Minute,
	})
}

func TestPrincipal(t *testing.T) {
	if got := Principal("alice", "1.2.3.4"); got != "alice" {
		t.Fatalf("expected explicit principal, got %q", got)
	}
	if got := Principal("", "1.2.3.4"); got != "ip:1.2.3.4" {
		t.Fatalf("expected ip principal, got %q", got)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	store, mr := newTestStore(t)
	l := defaultLockout(store)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		out, err := l.RecordFailure(ctx, "alice")
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if out.LockedNow {
			t.Fatalf("failure %d should not lock", i)
		}
		if out.RemainingAttempts != 5-i {
			t.Fatalf("failure %d: expected %d remaining, got %d", i, 5-i, out.RemainingAttempts)
		}
	}

	status, _ := l.Check(ctx, "alice")
	if status.Locked {
		t.Fatal("expected principal to be unlocked before the fifth failure")
	}

	out, err := l.RecordFailure(ctx, "alice")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !out.LockedNow || out.RemainingAttempts != 0 {
		t.Fatalf("expected fifth failure to lock, got %+v", out)
	}

	status, err = l.Check(ctx, "alice")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !status.Locked || status.RemainingSeconds() != 900 {
		t.Fatalf("expected 900s lock, got %+v (%ds)", status, status.RemainingSeconds())
	}

	counterTTL := mr.TTL("login:failed:alice")
	if counterTTL != 25*time.Minute {
		t.Fatalf("expected counter ttl of lock + margin, got %v", counterTTL)
	}
}

func TestFailureWhileLockedDoesNotGoNegativeOrExtend(t *testing.T) {
	store, mr := newTestStore(t)
	l := defaultLockout(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.RecordFailure(ctx, "bob")
	}
	mr.FastForward(5 * time.Minute)

	out, err := l.RecordFailure(ctx, "bob")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if out.RemainingAttempts != 0 {
		t.Fatalf("remaining attempts must not go below 0, got %d", out.RemainingAttempts)
	}

	status, _ := l.Check(ctx, "bob")
	if status.Remaining > 10*time.Minute {
		t.Fatalf("expected lock not to be extended, remaining %v", status.Remaining)
	}
}

func TestLockExpires(t *testing.T) {
	store, mr := newTestStore(t)
	l := defaultLockout(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.RecordFailure(ctx, "carol")
	}
	mr.FastForward(15*time.Minute + time.Second)

	status, err := l.Check(ctx, "carol")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status.Locked {
		t.Fatal("expected lock to expire")
	}

	count, _ := l.FailureCount(ctx, "carol")
	if count != 5 {
		t.Fatalf("expected counter to survive the lock cycle, got %d", count)
	}
}

func TestConcurrentFailuresAreAllCounted(t *testing.T) {
	store, _ := newTestStore(t)
	l := NewLockout(store, LockoutConfig{MaxFailures: 100, LockDuration: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.RecordFailure(ctx, "ip:9.9.9.9"); err != nil {
				t.Errorf("record failure: %v", err)
			}
		}()
	}
	wg.Wait()

	count, _ := l.FailureCount(ctx, "ip:9.9.9.9")
	if count != 25 {
		t.Fatalf("expected 25 failures, got %d", count)
	}
}

func TestResetClearsCounter(t *testing.T) {
	store, _ := newTestStore(t)
	l := defaultLockout(store)
	ctx := context.Background()

	_, _ = l.RecordFailure(ctx, "dave")
	_, _ = l.RecordFailure(ctx, "dave")
	if err := l.Reset(ctx, "dave"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	out, _ := l.RecordFailure(ctx, "dave")
	if out.RemainingAttempts != 4 {
		t.Fatalf("expected fresh budget after reset, got %d", out.RemainingAttempts)
	}
}

func TestLockoutStoreFailure(t *testing.T) {
	store, mr := newTestStore(t)
	l := defaultLockout(store)
	mr.Close()

	if _, err := l.Check(context.Background(), "x"); !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
}

func TestAccountCreationLimiter(t *testing.T) {
	store, _ := newTestStore(t)
	l := NewAccountCreationLimiter(store, rate.Config{Max: 2, Window: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Enforce(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := l.Enforce(ctx, "10.0.0.1"); !errors.Is(err, ErrAccountRateLimited) {
		t.Fatalf("expected ErrAccountRateLimited, got %v", err)
	}
	if err := l.Enforce(ctx, ""); err != nil {
		t.Fatalf("unknown ip must not be throttled: %v", err)
	}
}
