package authgate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/revocation"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/oauth"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/strategy"
	"go.uber.org/zap"
)

// Engine is the authentication gateway. It is created by Builder.Build and
// is safe for concurrent use.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	users       account.Store
	tokens      *jwt.Manager
	hasher      *password.Hasher
	revocations *revocation.Registry

	lockout       *limiters.Lockout
	registrations *limiters.AccountCreationLimiter
	smsRate       *rate.Limiter

	smsCodes *stores.CodeStore
	captchas *stores.CodeStore
	states   *stores.StateStore

	oauth      *oauth.Service
	strategies *strategy.Registry
	sms        SMSSender

	phonePattern *regexp.Regexp
	audit        *audit.Dispatcher
}

// Close flushes queued login events. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many login events were discarded because the
// audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// LoginTypes lists the login types accepted by Login.
func (e *Engine) LoginTypes() []string {
	return e.strategies.Types()
}

// Platforms lists the configured OAuth platforms.
func (e *Engine) Platforms() []string {
	return e.oauth.Platforms()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Validate parses a bearer token and checks that it was not revoked.
func (e *Engine) Validate(ctx context.Context, token string) (*jwt.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrTokenMissing
	}
	claims, err := e.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if e.revocations.IsRevoked(ctx, token) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// ValidateSensitive is Validate for operations that change credentials. When
// Sensitive.MaxTokenAge is set the token must also be recent enough.
func (e *Engine) ValidateSensitive(ctx context.Context, token, operation string) (*jwt.Claims, error) {
	claims, err := e.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if maxAge := e.config.Sensitive.MaxTokenAge; maxAge > 0 {
		if claims.IssuedAt == nil || e.now().Sub(claims.IssuedAt.Time) > maxAge {
			e.logger.Info("sensitive operation refused for stale token",
				zap.String("operation", operation),
				zap.Int64("user_id", claims.UserID),
			)
			return nil, ErrTokenTooOld
		}
	}
	e.logger.Info("sensitive operation authorized",
		zap.String("operation", operation),
		zap.Int64("user_id", claims.UserID),
	)
	return claims, nil
}

// Logout revokes token. It reports whether a revocation was written; an
// absent, expired or forged token is not an error.
func (e *Engine) Logout(ctx context.Context, token string) bool {
	if e == nil {
		return false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	return e.revocations.Revoke(ctx, token)
}

// UserInfo returns the profile of the account that token was issued to.
func (e *Engine) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	claims, err := e.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	u, err := e.userForClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &UserInfo{
		ID:          u.ID,
		Username:    u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		WechatBound: u.WechatOpenID != "",
		AlipayBound: u.AlipayUserID != "",
		CreatedAt:   u.CreatedAt,
	}, nil
}

func (e *Engine) userForClaims(ctx context.Context, claims *jwt.Claims) (*account.User, error) {
	u, err := e.users.FindBy(ctx, account.FieldID, strconv.FormatInt(claims.UserID, 10))
	if errors.Is(err, account.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", ErrTokenInvalid)
	}
	return u, err
}

func (e *Engine) issue(u *account.User, created bool) (*LoginResult, error) {
	token, err := e.tokens.Issue(jwt.Subject{UserID: u.ID, Username: u.Name, Email: u.Email})
	if err != nil {
		return nil, err
	}
	exp, err := e.tokens.ExpiryOf(token)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		UserID:    u.ID,
		Username:  u.Name,
		Token:     token,
		ExpiresAt: exp,
		Created:   created,
	}, nil
}
