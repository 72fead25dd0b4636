package permission

import (
	"context"
	"fmt"

	"github.com/teemow/inboxgate/internal/instrumentation"
	"github.com/teemow/inboxgate/internal/logging"
)

// Outcome describes what Dispatch did with a call.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomePending  Outcome = "pending_user_approval"
)

// DispatchResult is the result of a permitted dispatch. Result is set when
// the tool ran; Action is set when the call was deferred.
type DispatchResult struct {
	Outcome Outcome
	Result  any
	Action  *PendingAction
}

// Gate decides, per user and tool, whether a call runs, waits for approval,
// or is refused.
type Gate struct {
	perms    PermissionReader
	ledger   *Ledger
	registry *Registry
	settings
}

// NewGate creates a gate over the given permission source, ledger and registry.
func NewGate(perms PermissionReader, ledger *Ledger, registry *Registry, opts ...Option) *Gate {
	return &Gate{
		perms:    perms,
		ledger:   ledger,
		registry: registry,
		settings: applyOptions(opts),
	}
}

// Authorize reports whether userID may call the tool right away, along with
// the stored state. Only enabled is allowed; verify returns false with
// StateVerify so callers defer instead of refusing. A missing record, or a
// record whose integration is disconnected, yields (false, StateNone).
func (g *Gate) Authorize(ctx context.Context, userID, integration, tool string) (bool, State, error) {
	perm, err := g.perms.GetToolPermission(ctx, userID, integration, tool)
	if err != nil {
		return false, StateNone, fmt.Errorf("failed to load permission: %w", err)
	}
	if perm == nil {
		return false, StateNone, nil
	}

	// Records outlive a disconnect so a reconnect restores them; they carry
	// no authority meanwhile.
	conn, err := g.perms.GetConnection(ctx, userID, integration)
	if err != nil {
		return false, StateNone, fmt.Errorf("failed to load connection: %w", err)
	}
	if conn != nil && conn.Status == ConnectionDisconnected {
		return false, StateNone, nil
	}
	return perm.State == StateEnabled, perm.State, nil
}

// Dispatch routes a tool call according to the user's permission state.
// Exactly one of three things happens: the tool runs, a pending action is
// created, or ErrNotAuthorized is returned.
func (g *Gate) Dispatch(ctx context.Context, userID, integration, tool string, params map[string]any) (*DispatchResult, error) {
	key := ToolKey{Integration: integration, Tool: tool}
	ctx, span := instrumentation.StartSpan(ctx, "gate.dispatch")
	defer span.End()

	logger := g.logger.With(
		logging.UserHash(userID),
		logging.Integration(integration),
		logging.Tool(tool))

	allowed, state, err := g.Authorize(ctx, userID, integration, tool)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	if !allowed && state == StateVerify {
		action, err := g.ledger.CreatePending(ctx, userID, integration, tool, params)
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return nil, err
		}
		g.recorder.RecordGateDecision(ctx, integration, tool, "deferred")
		return &DispatchResult{Outcome: OutcomePending, Action: action}, nil
	}

	if !allowed {
		decision := "denied"
		if state == StateNone {
			decision = "no_record"
		}
		g.recorder.RecordGateDecision(ctx, integration, tool, decision)
		logger.InfoContext(ctx, "tool call refused", logging.State(string(state)))
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, key)
	}

	fn, ok := g.registry.Lookup(integration, tool)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, key)
	}

	g.recorder.RecordGateDecision(ctx, integration, tool, "executed")
	result, err := g.invoke(ctx, key, fn, userID, params)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.WarnContext(ctx, "tool call failed", logging.Err(err))
		return nil, err
	}
	logger.DebugContext(ctx, "tool call executed")
	return &DispatchResult{Outcome: OutcomeExecuted, Result: result}, nil
}
