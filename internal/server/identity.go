package server

import (
	"context"
	"net/http"
	"strings"
)

// UserIDHeader carries the calling user on the streamable-http transport.
const UserIDHeader = "X-User-ID"

type userIDKey struct{}

// WithUserID returns a context carrying the transport-level user identity.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the transport-level user identity, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}

// HTTPUserContext copies the X-User-ID header into the request context.
func HTTPUserContext(ctx context.Context, r *http.Request) context.Context {
	if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
		return WithUserID(ctx, userID)
	}
	return ctx
}

// StdioUserContext returns a context function binding every stdio request
// to userID. An empty userID leaves the context untouched.
func StdioUserContext(userID string) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		if userID == "" {
			return ctx
		}
		return WithUserID(ctx, userID)
	}
}
