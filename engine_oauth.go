package authgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authgate/internal"
	"github.com/MrEthical07/authgate/internal/stores"
)

// OAuthAuthURL returns the provider authorization URL for platform with a
// fresh state bound to it for OAuth.StateTTL.
func (e *Engine) OAuthAuthURL(ctx context.Context, platform string) (*OAuthAuthorization, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	state, err := internal.NewState()
	if err != nil {
		return nil, err
	}
	authURL, err := e.oauth.GenerateAuthURL(platform, state)
	if err != nil {
		return nil, err
	}
	if err := e.states.Save(ctx, state, platform); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &OAuthAuthorization{URL: authURL, State: state}, nil
}

// OAuthCallback completes the authorization code flow. The state must have
// been issued by OAuthAuthURL for the same platform and is redeemed once.
// The remote identity is mapped onto a local account, creating it on first
// login, and a token is issued.
func (e *Engine) OAuthCallback(ctx context.Context, platform, code, state string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if _, ok := e.oauth.Provider(platform); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}

	switch err := e.states.Consume(ctx, state, platform); {
	case err == nil:
	case errors.Is(err, stores.ErrStateInvalid):
		e.emitLogin(ctx, platform, nil, "", ErrInvalidState)
		return nil, ErrInvalidState
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	profile, err := e.oauth.GetUserInfo(ctx, platform, code, state)
	if err != nil {
		e.emitLogin(ctx, platform, nil, "", err)
		return nil, err
	}
	u, err := e.oauth.CreateOrLink(ctx, profile)
	if err != nil {
		e.emitLogin(ctx, platform, nil, profile.ProviderUserID, err)
		return nil, err
	}

	res, err := e.issue(u, false)
	if err != nil {
		return nil, err
	}
	e.emitLogin(ctx, platform, u, profile.ProviderUserID, nil)
	return res, nil
}
