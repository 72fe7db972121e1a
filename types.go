package authgate

import (
	"context"
	"time"

	"github.com/MrEthical07/authgate/internal/audit"
)

// SMSSender delivers a login code to a phone.
type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LoginEvent is one entry of the login log.
type LoginEvent = audit.Event

// LoginRecorder persists login events. account/sqlstore.Store implements it.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, event LoginEvent) error
}

// LoginRequest selects a strategy by LoginType and carries its input.
type LoginRequest struct {
	LoginType  string
	Principal  string
	Credential string
}

// LoginResult is returned by every operation that issues a token.
type LoginResult struct {
	UserID    int64
	Username  string
	Token     string
	ExpiresAt time.Time
	// Created is set when the account was created by this call.
	Created bool
}

// RegisterRequest is the input of Register. Email or Phone is required.
type RegisterRequest struct {
	Username string
	Password string
	Email    string
	Phone    string
}

// UserInfo is the profile view of the authenticated account.
type UserInfo struct {
	ID          int64
	Username    string
	Email       string
	Phone       string
	WechatBound bool
	AlipayBound bool
	CreatedAt   time.Time
}

// CaptchaChallenge is an issued captcha. Answer is meant for the renderer
// and must never be sent to the client as text.
type CaptchaChallenge struct {
	SessionID string
	Answer    string
	ExpiresIn time.Duration
}

// OAuthAuthorization is the provider URL to redirect to and the state bound
// to it.
type OAuthAuthorization struct {
	URL   string
	State string
}
