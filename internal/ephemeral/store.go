package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every backend failure.
var ErrUnavailable = errors.New("ephemeral store unavailable")

// Store is a key/value store with per-key expiry. Every operation is atomic
// for concurrent callers on the same key, and an expired key reads as absent.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent writes only when the key does not exist and reports whether it wrote.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	// Delete reports whether this call removed the key. Of several concurrent
	// callers at most one observes true.
	Delete(ctx context.Context, key string) (bool, error)
	// DeleteIfEquals removes key only when it holds value, in one atomic
	// step. found reports whether the key existed at all.
	DeleteIfEquals(ctx context.Context, key, value string) (removed, found bool, err error)
	// Take reads and removes key atomically.
	Take(ctx context.Context, key string) (string, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	// Increment creates the key at 1 when absent.
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// RemainingTTL returns found=false for an absent key and zero for a key
	// without expiry.
	RemainingTTL(ctx context.Context, key string) (time.Duration, bool, error)
}

// RedisStore implements Store on a go-redis client.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a Store that namespaces every key with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.redis.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err)
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

var deleteIfEqualsScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
	return -1
end
if v == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

func (s *RedisStore) DeleteIfEquals(ctx context.Context, key, value string) (bool, bool, error) {
	n, err := deleteIfEqualsScript.Run(ctx, s.redis, []string{s.key(key)}, value).Int64()
	if err != nil {
		return false, false, unavailable(err)
	}
	return n == 1, n >= 0, nil
}

func (s *RedisStore) Take(ctx context.Context, key string) (string, bool, error) {
	val, err := s.redis.GetDel(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err)
	}
	return val, true, nil
}

func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.redis.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.redis.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) RemainingTTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := s.redis.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, false, unavailable(err)
	}
	// go-redis reports the raw -2 (missing) and -1 (no expiry) replies
	// without applying the precision multiplier.
	switch {
	case ttl == -2:
		return 0, false, nil
	case ttl == -1:
		return 0, true, nil
	case ttl < 0:
		return 0, false, nil
	}
	return ttl, true, nil
}

// IncrementWithTTL increments key and starts its expiry window on the first hit.
func IncrementWithTTL(ctx context.Context, s Store, key string, ttl time.Duration) (int64, error) {
	count, err := s.Increment(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.Expire(ctx, key, ttl); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
