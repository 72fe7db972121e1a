package authgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
	"github.com/MrEthical07/authgate/internal/limiters"
	"go.uber.org/zap"
)

// Register creates a password account and issues its first token. Email or
// Phone is required; both, when given, must be unused.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Account.RegistrationEnabled {
		return nil, ErrRegistrationDisabled
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := strings.TrimSpace(req.Phone)

	if n := utf8.RuneCountInString(username); n < e.config.Account.MinUsernameLength || n > e.config.Account.MaxUsernameLength {
		return nil, fmt.Errorf("%w: username must be %d to %d characters",
			ErrInvalidRequest, e.config.Account.MinUsernameLength, e.config.Account.MaxUsernameLength)
	}
	if email == "" && phone == "" {
		return nil, fmt.Errorf("%w: email or phone is required", ErrInvalidRequest)
	}
	if email != "" && !looksLikeEmail(email) {
		return nil, fmt.Errorf("%w: email address is invalid", ErrInvalidRequest)
	}
	if phone != "" && !e.validPhone(phone) {
		return nil, ErrInvalidPhone
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	switch err := e.registrations.Enforce(ctx, clientIPFromContext(ctx)); {
	case err == nil:
	case errors.Is(err, limiters.ErrAccountRateLimited):
		return nil, ErrRegistrationRateLimited
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	u, err := e.users.Create(ctx, &account.User{
		Name:         username,
		PasswordHash: hash,
		Email:        email,
		Phone:        phone,
	})
	if err != nil {
		var dup *account.DuplicateError
		switch {
		case account.IsDuplicate(err, account.FieldName):
			return nil, ErrUsernameTaken
		case errors.As(err, &dup):
			return nil, fmt.Errorf("%w: %s already registered", ErrAccountExists, dup.Field)
		default:
			return nil, err
		}
	}

	e.logger.Info("account registered", zap.Int64("user_id", u.ID), zap.String("username", u.Name))
	return e.issue(u, true)
}

// ChangePassword replaces the password of the token's account and revokes
// the token, so the caller must log in again.
func (e *Engine) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	claims, err := e.Validate(ctx, token)
	if err != nil {
		return err
	}
	u, err := e.userForClaims(ctx, claims)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(oldPassword, u.PasswordHash)
	if err != nil || !ok {
		return autherr.Authentication("old password is incorrect")
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	if newPassword == oldPassword {
		return fmt.Errorf("%w: new password must differ from the old one", ErrPasswordPolicy)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if _, err := e.users.UpdateField(ctx, u.ID, account.FieldPasswordHash, hash); err != nil {
		return err
	}

	if !e.revocations.Revoke(ctx, token) {
		e.logger.Warn("token not revoked after password change", zap.Int64("user_id", u.ID))
	}
	return nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < e.config.Password.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if n > e.config.Password.MaxLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrPasswordPolicy, e.config.Password.MaxLength)
	}
	return nil
}

func (e *Engine) validPhone(phone string) bool {
	if phone == "" {
		return false
	}
	return e.phonePattern == nil || e.phonePattern.MatchString(phone)
}

func looksLikeEmail(s string) bool {
	local, domain, ok := strings.Cut(s, "@")
	return ok && local != "" && strings.Contains(domain, ".") && !strings.ContainsAny(s, " \t\r\n")
}
