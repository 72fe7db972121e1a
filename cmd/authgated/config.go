package main

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/account/sqlstore"
	"github.com/MrEthical07/authgate/internal/httpapi"
	"github.com/MrEthical07/authgate/oauth"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

type serverConfig struct {
	Listen          string        `env:"AUTHGATE_LISTEN" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"AUTHGATE_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"AUTHGATE_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"AUTHGATE_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	Log   logConfig   `envPrefix:"LOG_"`
	DB    dbConfig    `envPrefix:"AUTHGATE_DB_"`
	Redis redisConfig `envPrefix:"REDIS_"`

	KeyPrefix string `env:"AUTHGATE_KEY_PREFIX" envDefault:"authgate:"`

	JWTSecret string        `env:"AUTHGATE_JWT_SECRET"`
	JWTTTL    time.Duration `env:"AUTHGATE_JWT_TTL" envDefault:"24h"`
	JWTIssuer string        `env:"AUTHGATE_JWT_ISSUER"`

	LockoutEnabled  bool          `env:"AUTHGATE_LOCKOUT_ENABLED" envDefault:"true"`
	LockoutMax      int           `env:"AUTHGATE_LOCKOUT_MAX_FAILURES" envDefault:"5"`
	LockoutDuration time.Duration `env:"AUTHGATE_LOCKOUT_DURATION" envDefault:"15m"`

	SMSCodeTTL      time.Duration `env:"AUTHGATE_SMS_CODE_TTL" envDefault:"5m"`
	SMSSendInterval time.Duration `env:"AUTHGATE_SMS_SEND_INTERVAL" envDefault:"1m"`
	SMSCaptcha      bool          `env:"AUTHGATE_SMS_REQUIRE_CAPTCHA" envDefault:"true"`
	// SMSLogSender writes issued codes to the log instead of a provider.
	SMSLogSender bool `env:"AUTHGATE_SMS_LOG_SENDER"`

	RegistrationEnabled bool          `env:"AUTHGATE_REGISTRATION_ENABLED" envDefault:"true"`
	RegistrationLimit   int           `env:"AUTHGATE_REGISTRATION_LIMIT" envDefault:"5"`
	RegistrationWindow  time.Duration `env:"AUTHGATE_REGISTRATION_WINDOW" envDefault:"15m"`

	MaxTokenAge time.Duration `env:"AUTHGATE_SENSITIVE_MAX_TOKEN_AGE"`

	OAuthSuccessRedirect string        `env:"AUTHGATE_OAUTH_SUCCESS_REDIRECT"`
	OAuthErrorRedirect   string        `env:"AUTHGATE_OAUTH_ERROR_REDIRECT"`
	OAuthTimeout         time.Duration `env:"AUTHGATE_OAUTH_TIMEOUT" envDefault:"10s"`

	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `env:"AUTHGATE_TRUSTED_PROXIES" envSeparator:","`
	trusted        []netip.Prefix

	Wechat wechatConfig `envPrefix:"AUTHGATE_WECHAT_"`
	Alipay alipayConfig `envPrefix:"AUTHGATE_ALIPAY_"`
}

type logConfig struct {
	Level string `env:"LEVEL"`
	Dev   bool   `env:"DEV"`
}

type dbConfig struct {
	Dialect     string `env:"DIALECT" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"authgate.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type redisConfig struct {
	Addrs    []string `env:"ADDR" envSeparator:"," envDefault:"127.0.0.1:6379"`
	Password string   `env:"PASSWORD"`
	DB       int      `env:"DB"`
}

type wechatConfig struct {
	AppID       string `env:"APP_ID"`
	AppSecret   string `env:"APP_SECRET"`
	RedirectURI string `env:"REDIRECT_URI"`
}

type alipayConfig struct {
	AppID       string `env:"APP_ID"`
	PrivateKey  string `env:"PRIVATE_KEY"`
	PublicKey   string `env:"PUBLIC_KEY"`
	RedirectURI string `env:"REDIRECT_URI"`
}

func loadConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.DB.Dialect {
	case sqlstore.DialectSQLite, sqlstore.DialectPostgres:
	default:
		return serverConfig{}, fmt.Errorf("unsupported AUTHGATE_DB_DIALECT %q", cfg.DB.Dialect)
	}
	if len(cfg.Redis.Addrs) == 0 {
		return serverConfig{}, errors.New("REDIS_ADDR is required")
	}
	trusted, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return serverConfig{}, fmt.Errorf("AUTHGATE_TRUSTED_PROXIES: %w", err)
	}
	cfg.trusted = trusted
	return cfg, nil
}

func (c serverConfig) gateway() authgate.Config {
	cfg := authgate.DefaultConfig()
	cfg.JWT.Secret = []byte(c.JWTSecret)
	cfg.JWT.TTL = c.JWTTTL
	cfg.JWT.Issuer = c.JWTIssuer

	cfg.Lockout.Enabled = c.LockoutEnabled
	cfg.Lockout.MaxFailures = c.LockoutMax
	cfg.Lockout.LockDuration = c.LockoutDuration

	cfg.SMS.CodeTTL = c.SMSCodeTTL
	cfg.SMS.SendInterval = c.SMSSendInterval
	cfg.SMS.RequireCaptcha = c.SMSCaptcha

	cfg.Account.RegistrationEnabled = c.RegistrationEnabled
	cfg.Account.RegistrationLimit = c.RegistrationLimit
	cfg.Account.RegistrationWindow = c.RegistrationWindow

	cfg.Sensitive.MaxTokenAge = c.MaxTokenAge

	cfg.OAuth.ProviderTimeout = c.OAuthTimeout
	cfg.OAuth.SuccessRedirectURL = c.OAuthSuccessRedirect
	cfg.OAuth.ErrorRedirectURL = c.OAuthErrorRedirect

	cfg.Store.KeyPrefix = c.KeyPrefix
	return cfg
}

func (c serverConfig) httpOptions() httpapi.Options {
	return httpapi.Options{
		SuccessRedirectURL: c.OAuthSuccessRedirect,
		ErrorRedirectURL:   c.OAuthErrorRedirect,
		TrustedProxies:     c.trusted,
	}
}

func (c serverConfig) redisOptions() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:    c.Redis.Addrs,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// providers returns a provider for every platform with an app id set.
// Partially configured platforms fail with authgate.ErrConfig.
func (c serverConfig) providers() ([]oauth.Provider, error) {
	var out []oauth.Provider
	if c.Wechat.AppID != "" {
		w, err := oauth.NewWechat(oauth.WechatConfig{
			AppID:       c.Wechat.AppID,
			AppSecret:   c.Wechat.AppSecret,
			RedirectURI: c.Wechat.RedirectURI,
			Timeout:     c.OAuthTimeout,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if c.Alipay.AppID != "" {
		a, err := oauth.NewAlipay(oauth.AlipayConfig{
			AppID:       c.Alipay.AppID,
			PrivateKey:  c.Alipay.PrivateKey,
			PublicKey:   c.Alipay.PublicKey,
			RedirectURI: c.Alipay.RedirectURI,
			Timeout:     c.OAuthTimeout,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
