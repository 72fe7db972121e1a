package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/internal/ephemeral"
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

func TestAllowOnePerMinute(t *testing.T) {
	store, mr := newTestStore(t)
	l := New(store, "sms:rate:", Config{Max: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.Allow(ctx, "13800138000"); err != nil {
		t.Fatalf("first send should pass: %v", err)
	}
	if err := l.Allow(ctx, "13800138000"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(ctx, "13900139000"); err != nil {
		t.Fatalf("other subject should pass: %v", err)
	}

	wait, err := l.RetryAfter(ctx, "13800138000")
	if err != nil || wait <= 0 || wait > time.Minute {
		t.Fatalf("retry after = %v %v", wait, err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "13800138000"); err != nil {
		t.Fatalf("expected new window to allow, got %v", err)
	}
}

func TestWindowDoesNotSlide(t *testing.T) {
	store, mr := newTestStore(t)
	l := New(store, "register:ip:", Config{Max: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		mr.FastForward(15 * time.Second)
	}
	mr.FastForward(16 * time.Second)
	if err := l.Allow(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("expected window opened by first hit to have closed: %v", err)
	}
}

func TestResetAndNilLimiter(t *testing.T) {
	store, _ := newTestStore(t)
	l := New(store, "x:", Config{Max: 1, Window: time.Hour})
	ctx := context.Background()

	_ = l.Allow(ctx, "s")
	if err := l.Reset(ctx, "s"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Allow(ctx, "s"); err != nil {
		t.Fatalf("expected reset window to allow: %v", err)
	}

	var none *Limiter
	if err := none.Allow(ctx, "s"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
}

func TestStoreFailureIsWrapped(t *testing.T) {
	store, mr := newTestStore(t)
	l := New(store, "x:", Config{Max: 1, Window: time.Hour})
	mr.Close()

	if err := l.Allow(context.Background(), "s"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
