package goAccount

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type authContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The console records it
// on audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAuthContext attaches a resolved [AuthContext] to ctx. A nil auth leaves
// ctx unchanged.
func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	if auth == nil {
		return ctx
	}
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthContextFromContext returns the [AuthContext] attached by the
// authentication middleware, or nil for unauthenticated requests.
func AuthContextFromContext(ctx context.Context) *AuthContext {
	if ctx == nil {
		return nil
	}
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// ClientIPFromContext returns the IP attached by [WithClientIP].
func ClientIPFromContext(ctx context.Context) string {
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
