package gatekeeper

import "context"

// The session filter annotates the request context with the resolved identity rather
// than mutating the request itself, so downstream services and filters share one
// immutable view of who is calling.

type tokenContextKey struct{}
type sessionContextKey struct{}

func withIdentity(ctx context.Context, token SessionToken, session *Session) context.Context {
	ctx = context.WithValue(ctx, tokenContextKey{}, token)
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// TokenFromContext returns the session token the session filter resolved for this
// request.
func TokenFromContext(ctx context.Context) (SessionToken, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(SessionToken)
	return token, ok
}

// SessionFromContext returns the session the session filter attached to this request.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || session == nil {
		return nil, false
	}
	return session, true
}
