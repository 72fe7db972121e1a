package strategy

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
)

const invalidEmailOrPassword = "invalid email or password"

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(plain, encoded string) (bool, error)
}

// Email authenticates with an email address and password.
type Email struct {
	users  account.Store
	hasher PasswordVerifier
}

// NewEmail checks passwords from users with hasher.
func NewEmail(users account.Store, hasher PasswordVerifier) *Email {
	return &Email{users: users, hasher: hasher}
}

func (e *Email) Type() string { return TypeEmail }

// Authenticate gives the same answer for an unknown address and a wrong
// password.
func (e *Email) Authenticate(ctx context.Context, req Request) (*account.User, error) {
	email := strings.TrimSpace(req.Principal)
	if email == "" || req.Credential == "" {
		return nil, autherr.Authentication("email and password are required")
	}

	u, err := e.users.FindBy(ctx, account.FieldEmail, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil, autherr.Authentication(invalidEmailOrPassword)
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, autherr.Authentication(invalidEmailOrPassword)
	}

	ok, err := e.hasher.Verify(req.Credential, u.PasswordHash)
	if err != nil || !ok {
		// an unreadable stored hash is treated like a wrong password
		return nil, autherr.Authentication(invalidEmailOrPassword)
	}
	return u, nil
}
