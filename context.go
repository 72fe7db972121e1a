package authgate

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// as the lockout principal when none is given, for the registration
// throttle, and in the login log.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for the login log.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
