package strategy

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
	"github.com/MrEthical07/authgate/internal/stores"
)

// CodeVerifier redeems a one-time code for a subject.
type CodeVerifier interface {
	Verify(ctx context.Context, subject, code string) error
}

// Phone authenticates with a phone number and an SMS code.
type Phone struct {
	codes CodeVerifier
	users account.Store
}

// NewPhone redeems login codes through codes and resolves the phone in users.
func NewPhone(codes CodeVerifier, users account.Store) *Phone {
	return &Phone{codes: codes, users: users}
}

func (p *Phone) Type() string { return TypePhone }

// Authenticate redeems the code before looking up the phone, so a valid
// code is spent even if the number has no account.
func (p *Phone) Authenticate(ctx context.Context, req Request) (*account.User, error) {
	phone := strings.TrimSpace(req.Principal)
	code := strings.TrimSpace(req.Credential)
	if phone == "" || code == "" {
		return nil, autherr.Authentication("phone and code are required")
	}

	switch err := p.codes.Verify(ctx, phone, code); {
	case err == nil:
	case errors.Is(err, stores.ErrCodeNotFound):
		return nil, autherr.Authentication("code expired")
	case errors.Is(err, stores.ErrCodeMismatch):
		return nil, autherr.Authentication("code mismatch")
	default:
		return nil, err
	}

	u, err := p.users.FindBy(ctx, account.FieldPhone, phone)
	if errors.Is(err, account.ErrNotFound) {
		return nil, autherr.Authentication("phone not registered")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
