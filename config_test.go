package authgate

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Lockout.MaxFailures != 5 || cfg.Lockout.LockDuration != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults %+v", cfg.Lockout)
	}
	if cfg.SMS.CodeDigits != 6 || cfg.SMS.CodeTTL != 5*time.Minute || cfg.SMS.SendInterval != time.Minute {
		t.Fatalf("unexpected sms defaults %+v", cfg.SMS)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero ttl":          func(c *Config) { c.JWT.TTL = 0 },
		"unknown method":    func(c *Config) { c.JWT.SigningMethod = "rs256" },
		"large leeway":      func(c *Config) { c.JWT.Leeway = time.Hour },
		"zero failures":     func(c *Config) { c.Lockout.MaxFailures = 0 },
		"zero lock":         func(c *Config) { c.Lockout.LockDuration = 0 },
		"short code":        func(c *Config) { c.SMS.CodeDigits = 3 },
		"bad phone pattern": func(c *Config) { c.SMS.PhonePattern = "([" },
		"long captcha":      func(c *Config) { c.Captcha.Length = 12 },
		"window missing":    func(c *Config) { c.Account.RegistrationWindow = 0 },
		"username bounds":   func(c *Config) { c.Account.MaxUsernameLength = 1 },
		"password bounds":   func(c *Config) { c.Password.MinLength = 0 },
		"zero state ttl":    func(c *Config) { c.OAuth.StateTTL = 0 },
		"negative age":      func(c *Config) { c.Sensitive.MaxTokenAge = -time.Second },
		"zero audit buffer": func(c *Config) { c.Audit.BufferSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigValidateIgnoresDisabledSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.Enabled = false
	cfg.Lockout.MaxFailures = 0
	cfg.Audit.Enabled = false
	cfg.Audit.BufferSize = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled sections to be skipped, got %v", err)
	}
}

func TestWithConfigCopiesSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("original-secret")
	cfg.JWT.VerifyKeys = map[string][]byte{"v1": []byte("old-key")}

	b := New().WithConfig(cfg)
	cfg.JWT.Secret[0] = 'X'
	cfg.JWT.VerifyKeys["v1"][0] = 'X'
	cfg.JWT.VerifyKeys["v2"] = []byte("new")

	if string(b.config.JWT.Secret) != "original-secret" {
		t.Fatalf("secret aliased: %q", b.config.JWT.Secret)
	}
	if string(b.config.JWT.VerifyKeys["v1"]) != "old-key" || len(b.config.JWT.VerifyKeys) != 1 {
		t.Fatalf("verify keys aliased: %v", b.config.JWT.VerifyKeys)
	}
}
