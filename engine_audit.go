package authgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/account"
)

func (e *Engine) emitLogin(ctx context.Context, loginType string, u *account.User, principal string, err error) {
	if e.audit == nil {
		return
	}

	event := LoginEvent{
		Timestamp: e.now(),
		LoginType: loginType,
		Username:  principal,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   err == nil,
	}
	if u != nil {
		event.UserID = u.ID
		event.Username = u.Name
	}
	if err != nil {
		event.FailReason = failReason(err)
	}
	e.audit.Emit(ctx, event)
}

// failReason keeps the log free of provider payloads and store errors.
func failReason(err error) string {
	var (
		authErr     *AuthenticationError
		lockedErr   *LockedOutError
		providerErr *ProviderAuthError
	)
	reason := "internal error"
	switch {
	case errors.As(err, &lockedErr):
		reason = "locked"
	case errors.As(err, &authErr):
		reason = authErr.Message
	case errors.As(err, &providerErr):
		reason = "provider " + providerErr.Code
	case errors.Is(err, ErrInvalidState):
		reason = "invalid state"
	}
	return reason
}
