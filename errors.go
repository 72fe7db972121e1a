package authgate

import (
	"errors"

	"github.com/MrEthical07/authgate/autherr"
)

// Error kinds shared with the sub-packages.
var (
	ErrAuthentication       = autherr.ErrAuthentication
	ErrUnsupportedLoginType = autherr.ErrUnsupportedLoginType
	ErrUnsupportedPlatform  = autherr.ErrUnsupportedPlatform
	ErrProviderAuth         = autherr.ErrProviderAuth
	ErrMalformedToken       = autherr.ErrMalformedToken
	ErrLockedOut            = autherr.ErrLockedOut
	ErrConfig               = autherr.ErrConfig
)

// Provider error codes assigned when the provider never answered.
const (
	CodeTransport = autherr.CodeTransport
	CodeTimeout   = autherr.CodeTimeout
)

type (
	AuthenticationError = autherr.AuthenticationError
	ProviderAuthError   = autherr.ProviderAuthError
	LockedOutError      = autherr.LockedOutError
)

var (
	// ErrTokenMissing is returned when no bearer token was presented.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenInvalid is returned for tokens that fail signature or expiry checks.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked is returned for tokens that were logged out.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenTooOld is returned by sensitive operations for tokens older than Sensitive.MaxTokenAge.
	ErrTokenTooOld = errors.New("token too old for this operation")

	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrCaptchaMismatch = errors.New("captcha mismatch or expired")
	ErrInvalidState    = errors.New("oauth state invalid or expired")
	ErrPasswordPolicy  = errors.New("password policy violation")

	ErrUsernameTaken = errors.New("username already taken")
	ErrAccountExists = errors.New("account already exists")
	// ErrRegistrationDisabled is returned by Register when Account.RegistrationEnabled is false.
	ErrRegistrationDisabled = errors.New("registration disabled")

	ErrSMSRateLimited          = errors.New("sms code requested too often")
	ErrRegistrationRateLimited = errors.New("registration rate limited")

	// ErrSMSUnavailable is returned when no SMS sender is configured or delivery failed.
	ErrSMSUnavailable = errors.New("sms delivery unavailable")
	// ErrStoreUnavailable wraps ephemeral store failures on paths that fail closed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
