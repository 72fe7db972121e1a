package strategy

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
	"github.com/MrEthical07/authgate/oauth"
)

// CodeExchanger turns an authorization code into a provider identity.
type CodeExchanger interface {
	Platform() string
	ExchangeCode(ctx context.Context, code string) (*oauth.Token, error)
}

// Social authenticates an already linked provider identity. It never
// creates accounts; first logins go through the OAuth callback.
type Social struct {
	provider CodeExchanger
	users    account.Store
	timeout  time.Duration
}

// NewSocial builds the strategy for provider.Platform(). timeout bounds the
// code exchange; zero leaves it to the provider's HTTP client.
func NewSocial(provider CodeExchanger, users account.Store, timeout time.Duration) *Social {
	return &Social{provider: provider, users: users, timeout: timeout}
}

func (s *Social) Type() string { return s.provider.Platform() }

// Authenticate exchanges the code carried in Credential (or Principal) and
// loads the account linked to the returned provider identity.
func (s *Social) Authenticate(ctx context.Context, req Request) (*account.User, error) {
	code := strings.TrimSpace(req.Credential)
	if code == "" {
		code = strings.TrimSpace(req.Principal)
	}
	if code == "" {
		return nil, autherr.Authentication("authorization code is required")
	}

	platform := s.provider.Platform()
	field, ok := account.ProviderField(platform)
	if !ok {
		return nil, autherr.ErrUnsupportedPlatform
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	tok, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		var pae *autherr.ProviderAuthError
		if errors.As(err, &pae) {
			return nil, err
		}
		return nil, autherr.ProviderTransport(platform, err)
	}

	u, err := s.users.FindBy(ctx, field, tok.ProviderUserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return nil, err
	}

	link, err := s.users.FindLink(ctx, platform, tok.ProviderUserID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, autherr.Authentication("account not linked")
	}
	if err != nil {
		return nil, err
	}
	u, err = s.users.FindBy(ctx, account.FieldID, strconv.FormatInt(link.UserID, 10))
	if errors.Is(err, account.ErrNotFound) {
		return nil, autherr.Authentication("account not linked")
	}
	return u, err
}
