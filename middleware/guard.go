package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/jwt"
)

type claimsContextKey struct{}
type tokenContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard or RequireVerification.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return claims, ok
}

// TokenFromContext returns the bearer token accepted by Guard or
// RequireVerification.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok
}

// Guard rejects requests without a valid, unrevoked bearer token.
func Guard(engine *authgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeUnauthorized(w, authgate.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w, authgate.ErrTokenMissing)
				return
			}

			claims, err := engine.Validate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, token)))
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	value := r.Header.Get("Authorization")
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func withClaims(ctx context.Context, claims *jwt.Claims, token string) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey{}, claims)
	return context.WithValue(ctx, tokenContextKey{}, token)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	message := "unauthorized"
	switch {
	case errors.Is(err, authgate.ErrTokenRevoked):
		message = "token revoked"
	case errors.Is(err, authgate.ErrTokenTooOld):
		message = "please log in again to continue"
	case errors.Is(err, authgate.ErrTokenMissing):
		message = "authentication required"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: message})
}
