package revocation

import (
	"context"
	"time"

	"github.com/MrEthical07/authgate/internal/ephemeral"
	"github.com/MrEthical07/authgate/jwt"
	"go.uber.org/zap"
)

// KeyPrefix namespaces blacklist entries in the ephemeral store.
const KeyPrefix = "jwt:blacklist:"

// Registry records revoked token identities until the tokens would have
// expired on their own.
type Registry struct {
	store  ephemeral.Store
	tokens *jwt.Manager
	now    func() time.Time
	logger *zap.Logger
}

// New returns a Registry. now may be nil.
func New(store ephemeral.Store, tokens *jwt.Manager, now func() time.Time, logger *zap.Logger) *Registry {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, tokens: tokens, now: now, logger: logger}
}

// Revoke blacklists token for as long as the token manager would accept it,
// leeway included. It returns false without side effects for empty,
// expired or forged tokens, and false when the store write fails.
func (r *Registry) Revoke(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return false
	}
	remaining := r.tokens.AcceptedUntil(claims).Sub(r.now())
	if remaining <= 0 {
		return false
	}

	identity := claims.Identity()
	if err := r.store.Set(ctx, KeyPrefix+identity, "1", remaining); err != nil {
		r.logger.Error("revoke token", zap.String("identity", identity), zap.Error(err))
		return false
	}
	return true
}

// IsRevoked reports whether token was revoked. Store failures are logged and
// reported as not revoked so that an outage does not reject every request.
func (r *Registry) IsRevoked(ctx context.Context, token string) bool {
	identity, err := r.tokens.IdentityOf(token)
	if err != nil {
		return false
	}
	revoked, err := r.store.Has(ctx, KeyPrefix+identity)
	if err != nil {
		r.logger.Warn("revocation lookup failed, treating token as live", zap.String("identity", identity), zap.Error(err))
		return false
	}
	return revoked
}
