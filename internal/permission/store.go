package permission

import (
	"context"
	"time"
)

// PermissionReader looks up tool permission records and the connection they
// belong to. Both getters return nil, nil when no record exists.
type PermissionReader interface {
	GetToolPermission(ctx context.Context, userID, integration, tool string) (*ToolPermission, error)
	GetConnection(ctx context.Context, userID, integration string) (*Connection, error)
}

// LedgerStore persists pending actions. Transition and result writes are
// conditional: they report false when the guard did not match.
type LedgerStore interface {
	CreatePendingAction(ctx context.Context, action *PendingAction) error
	GetPendingAction(ctx context.Context, id string) (*PendingAction, error)
	ListPendingActions(ctx context.Context, userID string, status Status) ([]PendingAction, error)

	// TransitionPendingAction sets status to `to` only if it currently is `from`.
	TransitionPendingAction(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)

	// SetPendingActionResult writes result only on an approved action without one.
	SetPendingActionResult(ctx context.Context, id string, result map[string]any, at time.Time) (bool, error)

	// ExpirePendingActions moves pending actions created before cutoff to expired.
	ExpirePendingActions(ctx context.Context, cutoff, at time.Time) (int64, error)
}

// ManagerStore backs integration and tool-state management.
type ManagerStore interface {
	PermissionReader

	EnsureUser(ctx context.Context, userID, email string) error

	UpsertConnection(ctx context.Context, userID, integration string, status ConnectionStatus, at time.Time) (*Connection, error)
	ListConnections(ctx context.Context, userID string) ([]Connection, error)

	// ListToolPermissions returns records for userID; an empty integration matches all.
	ListToolPermissions(ctx context.Context, userID, integration string) ([]ToolPermission, error)
	// CreateToolPermission inserts p unless a record for the triple exists.
	CreateToolPermission(ctx context.Context, p ToolPermission) (bool, error)
	UpsertToolPermission(ctx context.Context, p ToolPermission) (*ToolPermission, error)
}

// Recorder receives gate and ledger measurements.
type Recorder interface {
	RecordGateDecision(ctx context.Context, integration, tool, decision string)
	RecordPendingCreated(ctx context.Context, integration, tool string)
	RecordPendingResolved(ctx context.Context, decision, outcome string)
	RecordPendingExpired(ctx context.Context, count int64)
	RecordBackendInvocation(ctx context.Context, integration, tool, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordGateDecision(context.Context, string, string, string) {}
func (nopRecorder) RecordPendingCreated(context.Context, string, string)       {}
func (nopRecorder) RecordPendingResolved(context.Context, string, string)      {}
func (nopRecorder) RecordPendingExpired(context.Context, int64)                {}
func (nopRecorder) RecordBackendInvocation(context.Context, string, string, string, time.Duration) {
}
