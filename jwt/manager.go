package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/autherr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the HMAC variant used to sign tokens.
type SigningMethod string

const (
	MethodHS256 SigningMethod = "hs256"
	MethodHS512 SigningMethod = "hs512"
)

// RoleUser is the role claim carried by every issued token.
const RoleUser = "USER"

// Config configures a Manager.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	Issuer        string
	Leeway        time.Duration
	// KeyID is written to the kid header. When VerifyKeys is set the kid
	// selects the verification secret, which allows rotating Secret while
	// tokens signed with the previous one are still live.
	KeyID      string
	VerifyKeys map[string][]byte
	// Now overrides the clock used for issuance and validation.
	Now func() time.Time
}

// Manager issues and verifies signed session tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// Subject is the account data embedded into a token.
type Subject struct {
	UserID   int64
	Username string
	Email    string
}

// Claims is the token payload.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the revocation key of the token: the embedded jti, or the
// subject and issued-at milliseconds for tokens minted without one. Two
// jti-less tokens for the same subject within the same second resolve to
// the same identity.
func (c *Claims) Identity() string {
	if c.ID != "" {
		return c.ID
	}
	var iat int64
	if c.IssuedAt != nil {
		iat = c.IssuedAt.Time.UnixMilli()
	}
	return c.Subject + ":" + strconv.FormatInt(iat, 10)
}

// NewManager validates cfg and returns a Manager. A missing secret is
// reported as autherr.ErrConfig.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%w: token signing secret is empty", autherr.ErrConfig)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case "":
		cfg.SigningMethod = MethodHS512
	case MethodHS256, MethodHS512:
	default:
		return nil, errors.New("unsupported signing method")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) == 0 {
			return nil, fmt.Errorf("verify key for kid %q is empty", kid)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// TTL returns the configured token lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.TTL
}

// Leeway returns the clock skew tolerated past exp.
func (j *Manager) Leeway() time.Duration {
	return j.config.Leeway
}

// AcceptedUntil returns the last instant Parse still accepts claims: exp
// plus the configured leeway.
func (j *Manager) AcceptedUntil(c *Claims) time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.Add(j.config.Leeway)
}

// Issue signs a token for s valid for the configured TTL.
func (j *Manager) Issue(s Subject) (string, error) {
	if j == nil || len(j.config.Secret) == 0 {
		return "", fmt.Errorf("%w: token signing secret is empty", autherr.ErrConfig)
	}

	now := j.now()
	claims := Claims{
		UserID:   s.UserID,
		Username: s.Username,
		Role:     RoleUser,
		Email:    s.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.Username,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TTL)),
		},
	}

	token := jwt.NewWithClaims(j.method(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(j.config.Secret)
}

// Parse verifies the signature and every time-based claim.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, true)
}

// Validate reports whether the token is correctly signed and not yet expired.
func (j *Manager) Validate(tokenStr string) bool {
	_, err := j.Parse(tokenStr)
	return err == nil
}

// UserIDOf returns the userId claim of a correctly signed token, expired or not.
func (j *Manager) UserIDOf(tokenStr string) (int64, error) {
	claims, err := j.inspect(tokenStr)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// ExpiryOf returns the expiry of a correctly signed token.
func (j *Manager) ExpiryOf(tokenStr string) (time.Time, error) {
	claims, err := j.inspect(tokenStr)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", autherr.ErrMalformedToken)
	}
	return claims.ExpiresAt.Time, nil
}

// IdentityOf returns the revocation key of a correctly signed token.
func (j *Manager) IdentityOf(tokenStr string) (string, error) {
	claims, err := j.inspect(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.Identity(), nil
}

func (j *Manager) inspect(tokenStr string) (*Claims, error) {
	claims, err := j.parse(tokenStr, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", autherr.ErrMalformedToken, err)
	}
	return claims, nil
}

func (j *Manager) parse(tokenStr string, validateClaims bool) (*Claims, error) {
	if j == nil {
		return nil, autherr.ErrConfig
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if !validateClaims {
		options = append(options, jwt.WithoutClaimsValidation())
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" && validateClaims {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if validateClaims {
		options = append(options, jwt.WithExpirationRequired())
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return key, nil
		}
		return j.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (j *Manager) method() jwt.SigningMethod {
	if j.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodHS512
}
