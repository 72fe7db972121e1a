package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

type attemptsData struct {
	RemainingAttempts int `json:"remainingAttempts"`
}

type lockedData struct {
	RetryAfterSeconds int64 `json:"retryAfterSeconds"`
}

// statusFor maps err onto a status and a message that is safe to show.
// ok is false for errors that must be logged and hidden.
func statusFor(err error) (status int, message string, data any, ok bool) {
	var (
		lockedErr   *authgate.LockedOutError
		authErr     *authgate.AuthenticationError
		providerErr *authgate.ProviderAuthError
		invalid     validator.ValidationErrors
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &lockedErr):
		// a locked principal is told when to come back, not how many tries are left
		return http.StatusTooManyRequests, lockedErr.Error(), lockedData{RetryAfterSeconds: lockedErr.RemainingSeconds()}, true
	case errors.As(err, &authErr):
		if authErr.RemainingAttempts >= 0 {
			data = attemptsData{RemainingAttempts: authErr.RemainingAttempts}
		}
		return http.StatusUnauthorized, authErr.Error(), data, true
	case errors.As(err, &providerErr):
		switch providerErr.Code {
		case authgate.CodeTimeout:
			return http.StatusGatewayTimeout, "identity provider timed out", nil, true
		case authgate.CodeTransport:
			return http.StatusBadGateway, "identity provider unavailable", nil, true
		}
		return http.StatusUnauthorized, fmt.Sprintf("%s authorization failed: %s", providerErr.Platform, providerErr.Message), nil, true

	case errors.As(err, &invalid):
		return http.StatusBadRequest, validationMessage(invalid), nil, true
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, errBadBody):
		return http.StatusBadRequest, "invalid request body", nil, true

	case errors.Is(err, authgate.ErrTokenMissing),
		errors.Is(err, authgate.ErrTokenInvalid),
		errors.Is(err, authgate.ErrTokenRevoked),
		errors.Is(err, authgate.ErrTokenTooOld),
		errors.Is(err, authgate.ErrMalformedToken):
		return http.StatusUnauthorized, "unauthorized", nil, true

	case errors.Is(err, authgate.ErrUnsupportedLoginType),
		errors.Is(err, authgate.ErrUnsupportedPlatform),
		errors.Is(err, authgate.ErrInvalidRequest),
		errors.Is(err, authgate.ErrInvalidPhone),
		errors.Is(err, authgate.ErrCaptchaMismatch),
		errors.Is(err, authgate.ErrInvalidState),
		errors.Is(err, authgate.ErrPasswordPolicy):
		return http.StatusBadRequest, err.Error(), nil, true

	case errors.Is(err, authgate.ErrUsernameTaken), errors.Is(err, authgate.ErrAccountExists):
		return http.StatusConflict, err.Error(), nil, true
	case errors.Is(err, authgate.ErrSMSRateLimited), errors.Is(err, authgate.ErrRegistrationRateLimited):
		return http.StatusTooManyRequests, err.Error(), nil, true
	case errors.Is(err, authgate.ErrRegistrationDisabled):
		return http.StatusForbidden, err.Error(), nil, true
	case errors.Is(err, authgate.ErrSMSUnavailable), errors.Is(err, authgate.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable", nil, false
	}
	return http.StatusInternalServerError, "internal error", nil, false
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message, data, ok := statusFor(err)
	if !ok {
		s.logger.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, envelope{Success: false, Message: message, Data: data})
}

// validationMessage names the first offending field by its JSON name.
func validationMessage(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "required_without":
		return name + " or " + lowerFirst(fe.Param()) + " is required"
	case "email":
		return name + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	}
	return name + " is invalid"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
