package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal/ephemeral"
)

// ErrStateInvalid is returned for an empty, unknown, reused or foreign state.
var ErrStateInvalid = errors.New("oauth state invalid or already used")

// StateStore binds anti-CSRF state values to the platform they were issued for.
type StateStore struct {
	store ephemeral.Store
	ttl   time.Duration
}

// NewStateStore keeps states at oauth:state:<state> for ttl.
func NewStateStore(store ephemeral.Store, ttl time.Duration) *StateStore {
	return &StateStore{store: store, ttl: ttl}
}

func stateKey(state string) string {
	return "oauth:state:" + state
}

// Save records state as issued for platform.
func (s *StateStore) Save(ctx context.Context, state, platform string) error {
	if err := s.store.Set(ctx, stateKey(state), platform, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeBackend, err)
	}
	return nil
}

// Consume redeems state for platform exactly once. The state is burned by
// any attempt, including one from the wrong platform.
func (s *StateStore) Consume(ctx context.Context, state, platform string) error {
	if state == "" {
		return ErrStateInvalid
	}
	bound, ok, err := s.store.Take(ctx, stateKey(state))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeBackend, err)
	}
	if !ok || bound != platform {
		return ErrStateInvalid
	}
	return nil
}
