package branchauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type currentUserContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Engine operations
// record it on audit events when the request itself carries none.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithCurrentUser attaches an authenticated user to ctx.
func WithCurrentUser(ctx context.Context, u *CurrentUser) context.Context {
	return context.WithValue(ctx, currentUserContextKey{}, u)
}

// CurrentUserFromContext returns the user attached by WithCurrentUser.
func CurrentUserFromContext(ctx context.Context) (*CurrentUser, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(currentUserContextKey{}).(*CurrentUser)
	return u, ok && u != nil
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
