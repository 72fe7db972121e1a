package authgate

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/MrEthical07/authgate/account"
	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/ephemeral"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/revocation"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/oauth"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/strategy"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder is configured once during
// initialization and can build a single Engine.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	users     account.Store
	sms       SMSSender
	providers []oauth.Provider
	recorder  LoginRecorder
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder initialized with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing codes, lockout counters,
// revocations, rate windows and OAuth state. It is required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the user store. It is required.
func (b *Builder) WithAccountStore(users account.Store) *Builder {
	b.users = users
	return b
}

// WithSMSSender sets the SMS delivery backend. Without one SendSMSCode
// fails with ErrSMSUnavailable.
func (b *Builder) WithSMSSender(sender SMSSender) *Builder {
	b.sms = sender
	return b
}

// WithProviders registers OAuth providers. Each provider also enables the
// login type named after its platform.
func (b *Builder) WithProviders(providers ...oauth.Provider) *Builder {
	b.providers = append(b.providers, providers...)
	return b
}

// WithLoginRecorder sets where login events are persisted. When unset and
// the account store implements LoginRecorder, the store is used.
func (b *Builder) WithLoginRecorder(rec LoginRecorder) *Builder {
	b.recorder = rec
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issuance and validation.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("account store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var phonePattern *regexp.Regexp
	if cfg.SMS.PhonePattern != "" {
		phonePattern = regexp.MustCompile(cfg.SMS.PhonePattern)
	}

	store := ephemeral.NewRedisStore(b.redis, cfg.Store.KeyPrefix)

	oauthService, err := oauth.NewService(b.users, hasher, logger.Named("oauth"), cfg.OAuth.ProviderTimeout, b.providers...)
	if err != nil {
		return nil, err
	}

	smsCodes := stores.NewSMSCodeStore(store, cfg.SMS.CodeTTL)
	all := []strategy.Strategy{
		strategy.NewPhone(smsCodes, b.users),
		strategy.NewEmail(b.users, hasher),
	}
	for _, p := range b.providers {
		all = append(all, strategy.NewSocial(p, b.users, cfg.OAuth.ProviderTimeout))
	}
	registry, err := strategy.NewRegistry(all...)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:       cfg,
		logger:       logger,
		now:          now,
		users:        b.users,
		tokens:       tokens,
		hasher:       hasher,
		revocations:  revocation.New(store, tokens, now, logger.Named("revocation")),
		smsCodes:     smsCodes,
		captchas:     stores.NewCaptchaStore(store, cfg.Captcha.TTL),
		states:       stores.NewStateStore(store, cfg.OAuth.StateTTL),
		oauth:        oauthService,
		strategies:   registry,
		sms:          b.sms,
		phonePattern: phonePattern,
	}

	if cfg.Lockout.Enabled {
		e.lockout = limiters.NewLockout(store, limiters.LockoutConfig{
			MaxFailures:   cfg.Lockout.MaxFailures,
			LockDuration:  cfg.Lockout.LockDuration,
			CounterMargin: cfg.Lockout.CounterMargin,
		})
	}
	if cfg.SMS.SendInterval > 0 {
		e.smsRate = rate.New(store, "sms:rate:", rate.Config{Max: 1, Window: cfg.SMS.SendInterval})
	}
	if cfg.Account.RegistrationLimit > 0 {
		e.registrations = limiters.NewAccountCreationLimiter(store, rate.Config{
			Max:    cfg.Account.RegistrationLimit,
			Window: cfg.Account.RegistrationWindow,
		})
	}

	recorder := b.recorder
	if recorder == nil {
		recorder, _ = b.users.(LoginRecorder)
	}
	sinks := audit.MultiSink{audit.NewLoggerSink(logger.Named("audit"))}
	if recorder != nil {
		sinks = append(sinks, audit.NewRecorderSink(recorder, logger.Named("audit")))
	}
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		FailureWait: cfg.Audit.FailureWait,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, sinks)

	b.built = true
	return e, nil
}
