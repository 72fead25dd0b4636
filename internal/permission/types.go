package permission

import (
	"fmt"
	"time"
)

// State is the access level a user has configured for a tool.
type State string

const (
	StateEnabled  State = "enabled"
	StateVerify   State = "verify"
	StateDisabled State = "disabled"

	// StateNone is returned by Authorize when no permission record exists.
	StateNone State = ""
)

// ParseState validates s and returns it as a State.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateEnabled, StateVerify, StateDisabled:
		return st, nil
	default:
		return StateNone, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// Status is the lifecycle status of a pending action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// ParseStatus validates s. An empty string means StatusPending.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusPending, nil
	}
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Decision is the human verdict on a pending action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ConnectionStatus tracks whether a user has an integration connected.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// ToolKey fully qualifies a tool by integration.
type ToolKey struct {
	Integration string
	Tool        string
}

func (k ToolKey) String() string {
	return k.Integration + "." + k.Tool
}

// ToolPermission is the per-user access level for one tool.
type ToolPermission struct {
	UserID      string    `json:"user_id"`
	Integration string    `json:"integration_name"`
	Tool        string    `json:"tool_name"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PendingAction is a deferred tool call awaiting a human decision.
// Result stays nil until an approved action has been executed.
type PendingAction struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Integration string         `json:"integration_name"`
	Tool        string         `json:"tool_name"`
	Params      map[string]any `json:"parameters"`
	Status      Status         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Connection records whether a user connected an integration.
type Connection struct {
	UserID      string           `json:"user_id"`
	Integration string           `json:"integration_name"`
	Status      ConnectionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
