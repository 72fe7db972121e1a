package authgate

import (
	"errors"
	"regexp"
	"time"
)

// Config is the complete gateway configuration. Start from DefaultConfig
// and override what differs.
type Config struct {
	JWT       JWTConfig
	Lockout   LockoutConfig
	SMS       SMSConfig
	Captcha   CaptchaConfig
	Account   AccountConfig
	Password  PasswordConfig
	OAuth     OAuthConfig
	Sensitive SensitiveConfig
	Audit     AuditConfig
	Store     StoreConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures bearer token issuance.
type JWTConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs512" (default) or "hs256"
	Secret        []byte
	Issuer        string
	Leeway        time.Duration
	// KeyID and VerifyKeys enable secret rotation; see jwt.Config.
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig configures consecutive-failure lockout.
type LockoutConfig struct {
	Enabled      bool
	MaxFailures  int
	LockDuration time.Duration
	// CounterMargin is how long the failure counter outlives the lock.
	CounterMargin  time.Duration
	ResetOnSuccess bool
}

/*
====================================
SMS CONFIG
====================================
*/

// SMSConfig configures SMS login codes.
type SMSConfig struct {
	CodeTTL        time.Duration
	CodeDigits     int
	SendInterval   time.Duration
	RequireCaptcha bool
	// PhonePattern validates phone numbers before a code is sent or an
	// account registered.
	PhonePattern string
}

/*
====================================
CAPTCHA CONFIG
====================================
*/

// CaptchaConfig configures captcha answers.
type CaptchaConfig struct {
	TTL    time.Duration
	Length int
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig configures self-service registration.
type AccountConfig struct {
	RegistrationEnabled bool
	// RegistrationLimit registrations are allowed per client IP within
	// RegistrationWindow. Zero disables the throttle.
	RegistrationLimit  int
	RegistrationWindow time.Duration
	MinUsernameLength  int
	MaxUsernameLength  int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
	// UpgradeOnLogin rehashes legacy or weaker hashes after a successful
	// email login.
	UpgradeOnLogin bool
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig configures the provider linking flow.
type OAuthConfig struct {
	StateTTL        time.Duration
	ProviderTimeout time.Duration
	// SuccessRedirectURL and ErrorRedirectURL are used by the HTTP callback
	// handler. When empty the callback answers with JSON.
	SuccessRedirectURL string
	ErrorRedirectURL   string
}

/*
====================================
SENSITIVE OPERATION CONFIG
====================================
*/

// SensitiveConfig configures RequireVerification.
type SensitiveConfig struct {
	// MaxTokenAge rejects tokens issued longer ago than this for sensitive
	// operations. Zero only requires a valid, unrevoked token.
	MaxTokenAge time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures the asynchronous login log.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	// FailureWait is how long a failed attempt may wait for buffer room
	// before it is dropped as well.
	FailureWait time.Duration
	SinkTimeout time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig configures the ephemeral store.
type StoreConfig struct {
	// KeyPrefix is prepended to every Redis key.
	KeyPrefix string
}

// DefaultConfig returns the configuration the gateway was tuned for. The
// JWT secret is left empty and must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs512",
		},
		Lockout: LockoutConfig{
			Enabled:        true,
			MaxFailures:    5,
			LockDuration:   15 * time.Minute,
			CounterMargin:  10 * time.Minute,
			ResetOnSuccess: true,
		},
		SMS: SMSConfig{
			CodeTTL:        5 * time.Minute,
			CodeDigits:     6,
			SendInterval:   time.Minute,
			RequireCaptcha: true,
			PhonePattern:   `^1[3-9]\d{9}$`,
		},
		Captcha: CaptchaConfig{
			TTL:    5 * time.Minute,
			Length: 4,
		},
		Account: AccountConfig{
			RegistrationEnabled: true,
			RegistrationLimit:   5,
			RegistrationWindow:  15 * time.Minute,
			MinUsernameLength:   3,
			MaxUsernameLength:   32,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		OAuth: OAuthConfig{
			StateTTL:        10 * time.Minute,
			ProviderTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			FailureWait: 50 * time.Millisecond,
			SinkTimeout: 2 * time.Second,
		},
	}
}

// Validate reports the first setting that would make the gateway unusable.
// Secret problems are matched by errors.Is(err, ErrConfig) once Build
// constructs the token manager.
func (c *Config) Validate() error {
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "", "hs256", "hs512":
	default:
		return errors.New("JWT SigningMethod must be hs256 or hs512")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	if c.Lockout.Enabled {
		if c.Lockout.MaxFailures <= 0 {
			return errors.New("Lockout MaxFailures must be > 0")
		}
		if c.Lockout.LockDuration <= 0 {
			return errors.New("Lockout LockDuration must be > 0")
		}
		if c.Lockout.CounterMargin < 0 {
			return errors.New("Lockout CounterMargin must be >= 0")
		}
	}

	if c.SMS.CodeTTL <= 0 {
		return errors.New("SMS CodeTTL must be > 0")
	}
	if c.SMS.CodeDigits < 4 || c.SMS.CodeDigits > 10 {
		return errors.New("SMS CodeDigits must be between 4 and 10")
	}
	if c.SMS.SendInterval < 0 {
		return errors.New("SMS SendInterval must be >= 0")
	}
	if c.SMS.PhonePattern != "" {
		if _, err := regexp.Compile(c.SMS.PhonePattern); err != nil {
			return errors.New("SMS PhonePattern is not a valid regular expression")
		}
	}

	if c.Captcha.TTL <= 0 {
		return errors.New("Captcha TTL must be > 0")
	}
	if c.Captcha.Length < 4 || c.Captcha.Length > 8 {
		return errors.New("Captcha Length must be between 4 and 8")
	}

	if c.Account.RegistrationLimit < 0 {
		return errors.New("Account RegistrationLimit must be >= 0")
	}
	if c.Account.RegistrationLimit > 0 && c.Account.RegistrationWindow <= 0 {
		return errors.New("Account RegistrationWindow must be > 0 when RegistrationLimit is set")
	}
	if c.Account.MinUsernameLength < 1 || c.Account.MaxUsernameLength < c.Account.MinUsernameLength {
		return errors.New("Account username length bounds are invalid")
	}

	if c.Password.MinLength < 1 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password length bounds are invalid")
	}
	if c.Password.MaxLength > 1024 {
		return errors.New("Password MaxLength must be <= 1024")
	}

	if c.OAuth.StateTTL <= 0 {
		return errors.New("OAuth StateTTL must be > 0")
	}
	if c.OAuth.ProviderTimeout <= 0 {
		return errors.New("OAuth ProviderTimeout must be > 0")
	}

	if c.Sensitive.MaxTokenAge < 0 {
		return errors.New("Sensitive MaxTokenAge must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.FailureWait < 0 {
		return errors.New("Audit FailureWait must be >= 0")
	}
	return nil
}

func cloneConfig(in Config) Config {
	out := in
	out.JWT.Secret = cloneBytes(in.JWT.Secret)
	if in.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(in.JWT.VerifyKeys))
		for kid, key := range in.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
