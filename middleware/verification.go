package middleware

import (
	"net/http"

	"github.com/MrEthical07/authgate"
)

// RequireVerification guards an operation that changes credentials. On top
// of Guard it applies Sensitive.MaxTokenAge and logs operation, so the
// handler can rely on a recently issued token.
func RequireVerification(engine *authgate.Engine, operation string) func(http.Handler) http.Handler {
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

			claims, err := engine.ValidateSensitive(r.Context(), token, operation)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, token)))
		})
	}
}
