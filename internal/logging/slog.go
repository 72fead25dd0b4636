package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Attribute keys shared by every component.
const (
	KeyUserHash    = "user_hash"
	KeyError       = "error"
	KeyTool        = "tool"
	KeyIntegration = "integration"
	KeyActionID    = "action_id"
	KeyState       = "state"
	KeyCount       = "count"
)

// Integration returns an attribute for the integration name.
func Integration(name string) slog.Attr {
	return slog.String(KeyIntegration, name)
}

// Tool returns an attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// ActionID returns an attribute for a pending action id.
func ActionID(id string) slog.Attr {
	return slog.String(KeyActionID, id)
}

// State returns an attribute for a tool permission state. An empty state,
// meaning no record exists, is logged as "none".
func State(state string) slog.Attr {
	if state == "" {
		state = "none"
	}
	return slog.String(KeyState, state)
}

func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Err returns an attribute for err. A nil err yields an empty group, which
// handlers omit.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// HashUser returns a stable pseudonym for a user id. Ids that differ only
// in case or surrounding space hash the same.
func HashUser(userID string) string {
	normalized := strings.ToLower(strings.TrimSpace(userID))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return "user:" + hex.EncodeToString(sum[:8])
}

// UserHash returns an attribute carrying HashUser(userID). Operational logs
// use it instead of the raw id.
func UserHash(userID string) slog.Attr {
	return slog.String(KeyUserHash, HashUser(userID))
}
