package authgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/strategy"
	"go.uber.org/zap"
)

// Login authenticates req with the strategy registered for req.LoginType
// and issues a token.
//
// Credential failures are returned as *AuthenticationError carrying the
// attempts left before lockout. The failure that reaches the limit, and
// every login while the lock lasts, return *LockedOutError.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	loginType := strings.ToLower(strings.TrimSpace(req.LoginType))
	if !e.strategies.Supports(loginType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLoginType, req.LoginType)
	}

	principal := lockPrincipal(loginType, req.Principal, clientIPFromContext(ctx))
	if err := e.checkLocked(ctx, principal); err != nil {
		e.emitLogin(ctx, loginType, nil, req.Principal, err)
		return nil, err
	}

	subject := strings.TrimSpace(req.Principal)
	if loginType == strategy.TypeEmail {
		subject = strings.ToLower(subject)
	}
	u, err := e.strategies.Dispatch(ctx, loginType, strategy.Request{
		Principal:  subject,
		Credential: req.Credential,
		ClientIP:   clientIPFromContext(ctx),
	})
	if err != nil {
		err = e.recordFailure(ctx, principal, err)
		e.emitLogin(ctx, loginType, nil, req.Principal, err)
		return nil, err
	}

	e.clearFailures(ctx, principal)
	if loginType == strategy.TypeEmail {
		e.upgradeHash(ctx, u, req.Credential)
	}

	res, err := e.issue(u, false)
	if err != nil {
		return nil, err
	}
	e.emitLogin(ctx, loginType, u, req.Principal, nil)
	return res, nil
}

// lockPrincipal counts phone and email failures against the number or
// address. Social logins carry no stable principal before the exchange, so
// they are counted per client IP.
func lockPrincipal(loginType, principal, clientIP string) string {
	switch loginType {
	case strategy.TypePhone, strategy.TypeEmail:
		return limiters.Principal(strings.ToLower(strings.TrimSpace(principal)), clientIP)
	default:
		return limiters.Principal("", clientIP)
	}
}

func (e *Engine) checkLocked(ctx context.Context, principal string) error {
	if e.lockout == nil {
		return nil
	}
	status, err := e.lockout.Check(ctx, principal)
	if err != nil {
		e.logger.Warn("lockout check failed, allowing attempt", zap.String("principal", principal), zap.Error(err))
		return nil
	}
	if status.Locked {
		return &LockedOutError{Remaining: status.Remaining}
	}
	return nil
}

// recordFailure counts credential failures only. Provider, store and
// request errors pass through unchanged.
func (e *Engine) recordFailure(ctx context.Context, principal string, err error) error {
	var authErr *AuthenticationError
	if e.lockout == nil || !errors.As(err, &authErr) {
		return err
	}

	outcome, lerr := e.lockout.RecordFailure(ctx, principal)
	if lerr != nil {
		e.logger.Warn("lockout record failed", zap.String("principal", principal), zap.Error(lerr))
		return err
	}
	if outcome.LockedNow {
		e.logger.Info("principal locked", zap.String("principal", principal), zap.Duration("duration", e.config.Lockout.LockDuration))
		return &LockedOutError{Remaining: e.config.Lockout.LockDuration}
	}

	counted := *authErr
	counted.RemainingAttempts = outcome.RemainingAttempts
	return &counted
}

func (e *Engine) clearFailures(ctx context.Context, principal string) {
	if e.lockout == nil || !e.config.Lockout.ResetOnSuccess {
		return
	}
	if err := e.lockout.Reset(ctx, principal); err != nil {
		e.logger.Warn("lockout reset failed", zap.String("principal", principal), zap.Error(err))
	}
}

// upgradeHash replaces bcrypt or weaker Argon2id hashes after a successful
// password login. Failures are logged and never fail the login.
func (e *Engine) upgradeHash(ctx context.Context, u *account.User, plain string) {
	if !e.config.Password.UpgradeOnLogin || !e.hasher.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.Int64("user_id", u.ID), zap.Error(err))
		return
	}
	if _, err := e.users.UpdateField(ctx, u.ID, account.FieldPasswordHash, hash); err != nil {
		e.logger.Warn("password rehash not stored", zap.Int64("user_id", u.ID), zap.Error(err))
		return
	}
	u.PasswordHash = hash
}
