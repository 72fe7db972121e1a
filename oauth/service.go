package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/autherr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxLinkAttempts = 3

// PasswordHasher hashes the random password given to accounts created on
// first OAuth login.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// Service runs the authorization code flow against the configured
// providers and maps remote identities onto local accounts.
type Service struct {
	providers map[string]Provider
	users     account.Store
	hasher    PasswordHasher
	logger    *zap.Logger
	timeout   time.Duration
}

// NewService indexes providers by platform. timeout bounds the exchange and
// profile calls of GetUserInfo together.
func NewService(users account.Store, hasher PasswordHasher, logger *zap.Logger, timeout time.Duration, providers ...Provider) (*Service, error) {
	if users == nil || hasher == nil {
		return nil, errors.New("oauth service requires an account store and a password hasher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Service{
		providers: make(map[string]Provider, len(providers)),
		users:     users,
		hasher:    hasher,
		logger:    logger,
		timeout:   timeout,
	}
	for _, p := range providers {
		platform := p.Platform()
		if _, ok := account.ProviderField(platform); !ok {
			return nil, fmt.Errorf("%w: %q", autherr.ErrUnsupportedPlatform, platform)
		}
		if _, dup := s.providers[platform]; dup {
			return nil, fmt.Errorf("duplicate oauth provider %q", platform)
		}
		s.providers[platform] = p
	}
	return s, nil
}

// Provider returns the provider registered for platform.
func (s *Service) Provider(platform string) (Provider, bool) {
	p, ok := s.providers[platform]
	return p, ok
}

// Platforms lists the configured platforms in sorted order.
func (s *Service) Platforms() []string {
	out := make([]string, 0, len(s.providers))
	for p := range s.providers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GenerateAuthURL returns the provider authorization URL carrying state.
func (s *Service) GenerateAuthURL(platform, state string) (string, error) {
	p, ok := s.providers[platform]
	if !ok {
		return "", fmt.Errorf("%w: %q", autherr.ErrUnsupportedPlatform, platform)
	}
	return p.AuthURL(state), nil
}

// GetUserInfo exchanges code and fetches the remote profile. state is only
// logged; checking it belongs to the caller that issued it.
func (s *Service) GetUserInfo(ctx context.Context, platform, code, state string) (*Profile, error) {
	p, ok := s.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", autherr.ErrUnsupportedPlatform, platform)
	}
	if strings.TrimSpace(code) == "" {
		return nil, autherr.Provider(platform, "invalid_request", "authorization code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tok, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, s.providerError(platform, "exchange code", state, err)
	}
	profile, err := p.FetchProfile(ctx, tok)
	if err != nil {
		return nil, s.providerError(platform, "fetch profile", state, err)
	}
	if profile.Platform == "" {
		profile.Platform = platform
	}
	if profile.ProviderUserID == "" {
		profile.ProviderUserID = tok.ProviderUserID
	}
	if profile.UnionID == "" {
		profile.UnionID = tok.UnionID
	}
	return profile, nil
}

func (s *Service) providerError(platform, step, state string, err error) error {
	var pae *autherr.ProviderAuthError
	if !errors.As(err, &pae) {
		pae = autherr.ProviderTransport(platform, err)
	}
	s.logger.Warn("oauth "+step+" failed",
		zap.String("platform", platform),
		zap.String("code", pae.Code),
		zap.String("state", state),
		zap.Error(err),
	)
	return pae
}

// CreateOrLink returns the local account for profile, creating it on first
// login. Concurrent first logins for the same identity converge: the losing
// insert hits the unique provider column and retries the lookup. A taken
// name moves on to the fallback name, then to the fallback with a random
// suffix.
func (s *Service) CreateOrLink(ctx context.Context, profile *Profile) (*account.User, error) {
	if profile == nil || profile.ProviderUserID == "" {
		return nil, autherr.Provider("", "invalid_profile", "profile without provider user id")
	}
	field, ok := account.ProviderField(profile.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %q", autherr.ErrUnsupportedPlatform, profile.Platform)
	}

	var lastErr error
	for attempt := 0; attempt < maxLinkAttempts; attempt++ {
		var user *account.User
		err := s.inTx(ctx, func(tx account.Store) error {
			u, err := s.findOrCreate(ctx, tx, profile, field, attempt)
			user = u
			return err
		})
		if err == nil {
			return user, nil
		}

		var dup *account.DuplicateError
		if !errors.As(err, &dup) {
			return nil, err
		}
		s.logger.Debug("oauth account race, retrying",
			zap.String("platform", profile.Platform),
			zap.String("field", string(dup.Field)),
			zap.Int("attempt", attempt+1),
		)
		lastErr = err
	}
	return nil, fmt.Errorf("link %s account: %w", profile.Platform, lastErr)
}

func (s *Service) inTx(ctx context.Context, fn func(account.Store) error) error {
	if tx, ok := s.users.(account.Transactor); ok {
		return tx.InTx(ctx, fn)
	}
	return fn(s.users)
}

func (s *Service) findOrCreate(ctx context.Context, users account.Store, p *Profile, field account.Field, attempt int) (*account.User, error) {
	u, err := users.FindBy(ctx, field, p.ProviderUserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return nil, err
	}

	link, err := users.FindLink(ctx, p.Platform, p.ProviderUserID)
	switch {
	case err == nil:
		u, err := users.FindBy(ctx, account.FieldID, strconv.FormatInt(link.UserID, 10))
		if err != nil {
			return nil, err
		}
		if u.ProviderID(p.Platform) == "" {
			if _, err := users.UpdateField(ctx, u.ID, field, p.ProviderUserID); err != nil {
				return nil, err
			}
			setProviderID(u, p.Platform, p.ProviderUserID)
		}
		return u, nil
	case !errors.Is(err, account.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("hash random password: %w", err)
	}
	newUser := &account.User{Name: candidateName(p, attempt), PasswordHash: hash}
	setProviderID(newUser, p.Platform, p.ProviderUserID)

	created, err := users.Create(ctx, newUser)
	if err != nil {
		return nil, err
	}
	if p.UnionID != "" {
		_, err := users.CreateLink(ctx, &account.SocialLink{
			UserID:         created.ID,
			Platform:       p.Platform,
			ProviderUserID: p.ProviderUserID,
			UnionID:        p.UnionID,
		})
		if err != nil {
			return nil, err
		}
	}
	s.logger.Info("oauth account created",
		zap.String("platform", p.Platform),
		zap.Int64("user_id", created.ID),
	)
	return created, nil
}

// FallbackName is the account name used when the provider gives no
// nickname or the nickname is taken.
func FallbackName(platform, providerUserID string) string {
	short := providerUserID
	if len(short) > 8 {
		short = short[:8]
	}
	return platform + "_user_" + short
}

func candidateName(p *Profile, attempt int) string {
	names := make([]string, 0, 3)
	if nick := strings.TrimSpace(p.Nickname); nick != "" {
		names = append(names, nick)
	}
	names = append(names, FallbackName(p.Platform, p.ProviderUserID))
	names = append(names, FallbackName(p.Platform, p.ProviderUserID)+"_"+uuid.NewString()[:6])

	if attempt >= len(names) {
		attempt = len(names) - 1
	}
	return names[attempt]
}

func setProviderID(u *account.User, platform, id string) {
	switch platform {
	case account.PlatformWechat:
		u.WechatOpenID = id
	case account.PlatformAlipay:
		u.AlipayUserID = id
	}
}
