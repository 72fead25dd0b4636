package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/inboxgate/internal/server"
)

// UserIDParam is the argument every user-scoped tool accepts.
const UserIDParam = "user_id"

var (
	ErrMissingUserID = errors.New("user_id is required")
	ErrUserMismatch  = errors.New("user_id does not match the calling user")
)

// ResolveUserID returns the user a call acts for. The user_id argument wins
// over the transport identity, but when both are present they must agree.
func ResolveUserID(ctx context.Context, args map[string]any) (string, error) {
	var argUser string
	if v, ok := args[UserIDParam]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%s must be a string", UserIDParam)
		}
		argUser = strings.TrimSpace(s)
	}

	ctxUser, hasCtxUser := server.UserIDFromContext(ctx)
	switch {
	case argUser != "" && hasCtxUser && argUser != ctxUser:
		return "", ErrUserMismatch
	case argUser != "":
		return argUser, nil
	case hasCtxUser:
		return ctxUser, nil
	default:
		return "", ErrMissingUserID
	}
}

// WithoutUserID returns a copy of args without the user_id argument.
func WithoutUserID(args map[string]any) map[string]any {
	params := make(map[string]any, len(args))
	for k, v := range args {
		if k == UserIDParam {
			continue
		}
		params[k] = v
	}
	return params
}
