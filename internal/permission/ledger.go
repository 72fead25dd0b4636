package permission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxgate/internal/logging"
)

// Ledger records deferred tool calls and executes them once approved.
type Ledger struct {
	store    LedgerStore
	registry *Registry
	ttl      time.Duration
	settings
}

// NewLedger creates a ledger. A positive ttl makes ExpireStale expire
// pending actions older than ttl.
func NewLedger(store LedgerStore, registry *Registry, ttl time.Duration, opts ...Option) *Ledger {
	return &Ledger{
		store:    store,
		registry: registry,
		ttl:      ttl,
		settings: applyOptions(opts),
	}
}

// TTL returns the configured approval window.
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

// CreatePending stores a new pending action and returns it.
func (l *Ledger) CreatePending(ctx context.Context, userID, integration, tool string, params map[string]any) (*PendingAction, error) {
	if params == nil {
		params = map[string]any{}
	}
	now := l.now().UTC()
	action := &PendingAction{
		ID:          "pa_" + uuid.NewString(),
		UserID:      userID,
		Integration: integration,
		Tool:        tool,
		Params:      params,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.CreatePendingAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to create pending action: %w", err)
	}

	l.recorder.RecordPendingCreated(ctx, integration, tool)
	l.logger.InfoContext(ctx, "pending action created",
		logging.ActionID(action.ID),
		logging.UserHash(userID),
		logging.Integration(integration),
		logging.Tool(tool))
	return action, nil
}

// Get returns a pending action by id.
func (l *Ledger) Get(ctx context.Context, id string) (*PendingAction, error) {
	action, err := l.store.GetPendingAction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending action: %w", err)
	}
	if action == nil {
		return nil, fmt.Errorf("%w: pending action %s", ErrNotFound, id)
	}
	return action, nil
}

// ListPending returns the user's actions with the given status in creation order.
// An empty status lists pending actions.
func (l *Ledger) ListPending(ctx context.Context, userID string, status Status) ([]PendingAction, error) {
	if status == "" {
		status = StatusPending
	}
	actions, err := l.store.ListPendingActions(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	if actions == nil {
		actions = []PendingAction{}
	}
	return actions, nil
}

// Resolve applies decision to a pending action. Only one caller can move an
// action out of pending; later callers get ErrAlreadyResolved. Approval runs
// the tool once and stores its outcome in-band, so backend failures never
// surface as errors here.
func (l *Ledger) Resolve(ctx context.Context, id string, decision Decision) (*PendingAction, error) {
	var target Status
	switch decision {
	case DecisionApproved:
		target = StatusApproved
	case DecisionRejected:
		target = StatusRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	action, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, id, action.Status)
	}

	swapped, err := l.store.TransitionPendingAction(ctx, id, StatusPending, target, l.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update pending action: %w", err)
	}
	if !swapped {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}

	// Past the swap the action must reach a stored outcome even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	logger := l.logger.With(
		logging.ActionID(id),
		logging.UserHash(action.UserID),
		logging.Integration(action.Integration),
		logging.Tool(action.Tool))

	if target == StatusRejected {
		l.recorder.RecordPendingResolved(ctx, string(decision), "rejected")
		logger.InfoContext(ctx, "pending action rejected")
		return l.Get(ctx, id)
	}

	result, outcome := l.execute(ctx, action)
	if _, err := l.store.SetPendingActionResult(ctx, id, result, l.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to store action result: %w", err)
	}
	l.recorder.RecordPendingResolved(ctx, string(decision), outcome)
	logger.InfoContext(ctx, "pending action approved", slog.String("outcome", outcome))

	return l.Get(ctx, id)
}

func (l *Ledger) execute(ctx context.Context, action *PendingAction) (map[string]any, string) {
	key := ToolKey{Integration: action.Integration, Tool: action.Tool}
	fn, ok := l.registry.Lookup(action.Integration, action.Tool)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("tool %s not found", key)}, "tool_not_found"
	}

	raw, err := l.invoke(ctx, key, fn, action.UserID, action.Params)
	if err != nil {
		l.logger.WarnContext(ctx, "approved action failed",
			logging.ActionID(action.ID),
			logging.Tool(key.String()),
			logging.Err(err))
		return errorPayload(err), "error"
	}

	result, err := normalizeResult(raw)
	if err != nil {
		return errorPayload(err), "error"
	}
	return result, "executed"
}

// ExpireStale marks pending actions older than the TTL as expired.
// It is a no-op when the TTL is not positive.
func (l *Ledger) ExpireStale(ctx context.Context) (int64, error) {
	if l.ttl <= 0 {
		return 0, nil
	}
	now := l.now().UTC()
	n, err := l.store.ExpirePendingActions(ctx, now.Add(-l.ttl), now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending actions: %w", err)
	}
	if n > 0 {
		l.recorder.RecordPendingExpired(ctx, n)
		l.logger.InfoContext(ctx, "expired pending actions", slog.Int64("count", n))
	}
	return n, nil
}
