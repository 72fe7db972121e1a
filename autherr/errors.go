package autherr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrAuthentication matches every credential or principal failure.
	ErrAuthentication = errors.New("authentication failed")
	// ErrUnsupportedLoginType is returned when no strategy is registered for a login type.
	ErrUnsupportedLoginType = errors.New("unsupported login type")
	// ErrUnsupportedPlatform is returned for an OAuth platform without a configured provider.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrProviderAuth matches every ProviderAuthError.
	ErrProviderAuth = errors.New("provider authorization failed")
	// ErrMalformedToken is returned when a token cannot be parsed or its signature does not verify.
	ErrMalformedToken = errors.New("malformed token")
	// ErrLockedOut matches every LockedOutError.
	ErrLockedOut = errors.New("account locked")
	// ErrConfig marks configuration that makes the gateway unusable, such as a missing signing secret.
	ErrConfig = errors.New("configuration error")
)

// Provider error codes assigned locally when the provider never answered.
const (
	CodeTransport = "transport"
	CodeTimeout   = "timeout"
)

// AuthenticationError is a user-correctable credential failure.
type AuthenticationError struct {
	Message string
	// RemainingAttempts is set by the engine after the failure has been
	// counted against the principal. It is -1 when lockout is disabled
	// or the count is unknown.
	RemainingAttempts int
}

// Authentication returns an AuthenticationError with an unknown attempt budget.
func Authentication(message string) *AuthenticationError {
	return &AuthenticationError{Message: message, RemainingAttempts: -1}
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return ErrAuthentication.Error()
	}
	return e.Message
}

func (e *AuthenticationError) Unwrap() error {
	return ErrAuthentication
}

// ProviderAuthError reports a failed exchange with an external identity provider.
// Code carries the provider's own error code, or CodeTransport / CodeTimeout
// when the request never produced a provider answer.
type ProviderAuthError struct {
	Platform string
	Code     string
	Message  string
	Err      error
}

// Provider builds a ProviderAuthError from a provider-reported error code.
func Provider(platform, code, message string) *ProviderAuthError {
	return &ProviderAuthError{Platform: platform, Code: code, Message: message}
}

// ProviderTransport wraps a network or decoding failure talking to a provider.
func ProviderTransport(platform string, err error) *ProviderAuthError {
	code := CodeTransport
	if isTimeout(err) {
		code = CodeTimeout
	}
	return &ProviderAuthError{Platform: platform, Code: code, Message: "provider request failed", Err: err}
}

func (e *ProviderAuthError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s: %s", ErrProviderAuth, e.Platform, e.Message)
	}
	return fmt.Sprintf("%s: %s: [%s] %s", ErrProviderAuth, e.Platform, e.Code, e.Message)
}

func (e *ProviderAuthError) Unwrap() error {
	return e.Err
}

func (e *ProviderAuthError) Is(target error) bool {
	return target == ErrProviderAuth
}

// Upstream reports whether the provider itself produced the error code.
func (e *ProviderAuthError) Upstream() bool {
	return e.Code != CodeTransport && e.Code != CodeTimeout
}

// LockedOutError is returned while a principal is locked after too many failures.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("account locked, try again in %s", FormatWait(e.Remaining))
}

func (e *LockedOutError) Unwrap() error {
	return ErrLockedOut
}

// RemainingSeconds rounds the remaining lock time up to whole seconds.
func (e *LockedOutError) RemainingSeconds() int64 {
	return ceilSeconds(e.Remaining)
}

// FormatWait renders a wait as "N minutes M seconds" for user-facing messages.
func FormatWait(d time.Duration) string {
	secs := ceilSeconds(d)
	if secs <= 0 {
		return "a moment"
	}
	minutes, seconds := secs/60, secs%60
	switch {
	case minutes == 0:
		return plural(seconds, "second")
	case seconds == 0:
		return plural(minutes, "minute")
	default:
		return plural(minutes, "minute") + " " + plural(seconds, "second")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
