package permission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	store    *memStore
	registry *Registry
	ledger   *Ledger
	gate     *Gate
	recorder *countingRecorder
	calls    atomic.Int32
	lastCall Call
}

func newGateFixture(t *testing.T, opts ...Option) *gateFixture {
	t.Helper()
	f := &gateFixture{
		store:    newMemStore(),
		registry: NewRegistry(),
		recorder: newCountingRecorder(),
	}
	require.NoError(t, f.registry.Register("gmail", "search_gmail", func(_ context.Context, call Call) (any, error) {
		f.calls.Add(1)
		f.lastCall = call
		return map[string]any{"results": []any{}}, nil
	}))
	require.NoError(t, f.registry.Register("gmail", "send_gmail", func(_ context.Context, call Call) (any, error) {
		f.calls.Add(1)
		f.lastCall = call
		return map[string]any{"status": "sent", "id": "m1"}, nil
	}))

	opts = append(opts, WithRecorder(f.recorder))
	f.ledger = NewLedger(f.store, f.registry, 0, opts...)
	f.gate = NewGate(f.store, f.ledger, f.registry, opts...)
	return f
}

func TestGate_Authorize(t *testing.T) {
	tests := []struct {
		name        string
		state       State
		seed        bool
		wantAllowed bool
		wantState   State
	}{
		{name: "enabled", state: StateEnabled, seed: true, wantAllowed: true, wantState: StateEnabled},
		{name: "verify", state: StateVerify, seed: true, wantAllowed: false, wantState: StateVerify},
		{name: "disabled", state: StateDisabled, seed: true, wantAllowed: false, wantState: StateDisabled},
		{name: "no record", seed: false, wantAllowed: false, wantState: StateNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)
			if tt.seed {
				f.store.setState("alice", "gmail", "send_gmail", tt.state)
			}

			allowed, state, err := f.gate.Authorize(context.Background(), "alice", "gmail", "send_gmail")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, allowed)
			assert.Equal(t, tt.wantState, state)
		})
	}
}

func TestGate_DisconnectedIntegration(t *testing.T) {
	for _, state := range []State{StateEnabled, StateVerify} {
		t.Run(string(state), func(t *testing.T) {
			ctx := context.Background()
			f := newGateFixture(t)
			f.store.setState("alice", "gmail", "send_gmail", state)
			_, err := f.store.UpsertConnection(ctx, "alice", "gmail", ConnectionDisconnected, time.Now())
			require.NoError(t, err)

			allowed, got, err := f.gate.Authorize(ctx, "alice", "gmail", "send_gmail")
			require.NoError(t, err)
			assert.False(t, allowed)
			assert.Equal(t, StateNone, got)

			res, err := f.gate.Dispatch(ctx, "alice", "gmail", "send_gmail", map[string]any{"to": "bob@example.com"})
			assert.ErrorIs(t, err, ErrNotAuthorized)
			assert.Nil(t, res)
			assert.Equal(t, int32(0), f.calls.Load())

			pending, err := f.ledger.ListPending(ctx, "alice", "")
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestGate_Dispatch_Enabled(t *testing.T) {
	f := newGateFixture(t)
	f.store.setState("alice", "gmail", "search_gmail", StateEnabled)

	params := map[string]any{"query": "from:bob"}
	res, err := f.gate.Dispatch(context.Background(), "alice", "gmail", "search_gmail", params)
	require.NoError(t, err)

	assert.Equal(t, OutcomeExecuted, res.Outcome)
	assert.Nil(t, res.Action)
	assert.Equal(t, map[string]any{"results": []any{}}, res.Result)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, "alice", f.lastCall.UserID)
	assert.Equal(t, "alice", f.lastCall.Params["user_id"])
	assert.Equal(t, "from:bob", f.lastCall.Params["query"])
	_, mutated := params["user_id"]
	assert.False(t, mutated, "caller params must not be modified")

	pending, err := f.ledger.ListPending(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGate_Dispatch_Verify(t *testing.T) {
	f := newGateFixture(t)
	f.store.setState("alice", "gmail", "send_gmail", StateVerify)

	params := map[string]any{"to": "bob@example.com", "subject": "hi", "body": "yo"}
	res, err := f.gate.Dispatch(context.Background(), "alice", "gmail", "send_gmail", params)
	require.NoError(t, err)

	assert.Equal(t, OutcomePending, res.Outcome)
	require.NotNil(t, res.Action)
	assert.Equal(t, StatusPending, res.Action.Status)
	assert.Equal(t, "gmail", res.Action.Integration)
	assert.Equal(t, "send_gmail", res.Action.Tool)
	assert.Equal(t, params, res.Action.Params)
	assert.Nil(t, res.Action.Result)
	assert.Equal(t, int32(0), f.calls.Load(), "verify must not invoke the backend")

	pending, err := f.ledger.ListPending(context.Background(), "alice", StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Action.ID, pending[0].ID)
}

func TestGate_Dispatch_Refused(t *testing.T) {
	tests := []struct {
		name     string
		seed     bool
		decision string
	}{
		{name: "disabled", seed: true, decision: "denied"},
		{name: "no record", seed: false, decision: "no_record"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)
			if tt.seed {
				f.store.setState("alice", "gmail", "send_gmail", StateDisabled)
			}

			res, err := f.gate.Dispatch(context.Background(), "alice", "gmail", "send_gmail", nil)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrNotAuthorized)
			assert.Equal(t, int32(0), f.calls.Load())
			assert.Equal(t, 1, f.recorder.decisions[tt.decision])

			pending, err := f.ledger.ListPending(context.Background(), "alice", "")
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestGate_Dispatch_EnabledButUnregistered(t *testing.T) {
	f := newGateFixture(t)
	f.store.setState("alice", "gmail", "delete_everything", StateEnabled)

	_, err := f.gate.Dispatch(context.Background(), "alice", "gmail", "delete_everything", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestGate_Dispatch_BackendError(t *testing.T) {
	f := newGateFixture(t)
	boom := errors.New("quota exceeded")
	require.NoError(t, f.registry.Register("calendar", "list_events", func(context.Context, Call) (any, error) {
		return nil, boom
	}))
	f.store.setState("alice", "calendar", "list_events", StateEnabled)

	_, err := f.gate.Dispatch(context.Background(), "alice", "calendar", "list_events", nil)
	require.Error(t, err)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ToolKey{Integration: "calendar", Tool: "list_events"}, be.Key)
	assert.ErrorIs(t, err, boom)
}

func TestGate_Dispatch_BackendPanic(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.registry.Register("calendar", "list_events", func(context.Context, Call) (any, error) {
		panic("nil map")
	}))
	f.store.setState("alice", "calendar", "list_events", StateEnabled)

	_, err := f.gate.Dispatch(context.Background(), "alice", "calendar", "list_events", nil)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Error(), "panic: nil map")
}

func TestGate_Dispatch_Timeout(t *testing.T) {
	f := newGateFixture(t, WithTimeout(20*time.Millisecond))
	require.NoError(t, f.registry.Register("calendar", "list_events", func(ctx context.Context, _ Call) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	f.store.setState("alice", "calendar", "list_events", StateEnabled)

	_, err := f.gate.Dispatch(context.Background(), "alice", "calendar", "list_events", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_Dispatch_PerUserIsolation(t *testing.T) {
	f := newGateFixture(t)
	f.store.setState("alice", "gmail", "send_gmail", StateEnabled)
	f.store.setState("bob", "gmail", "send_gmail", StateDisabled)

	_, err := f.gate.Dispatch(context.Background(), "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)

	_, err = f.gate.Dispatch(context.Background(), "bob", "gmail", "send_gmail", nil)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}
