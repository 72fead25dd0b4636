package permission

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLedger_CreatePending(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, NewRegistry(), 0)

	a, err := ledger.CreatePending(context.Background(), "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.ID, "pa_"))
	assert.Equal(t, StatusPending, a.Status)
	assert.NotNil(t, a.Params)
	assert.Nil(t, a.Result)

	b, err := ledger.CreatePending(context.Background(), "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestLedger_ListPending(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, NewRegistry(), 0)
	ctx := context.Background()

	first, err := ledger.CreatePending(ctx, "alice", "gmail", "send_gmail", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = ledger.CreatePending(ctx, "bob", "gmail", "send_gmail", nil)
	require.NoError(t, err)
	second, err := ledger.CreatePending(ctx, "alice", "calendar", "create_event", map[string]any{"n": 2})
	require.NoError(t, err)

	pending, err := ledger.ListPending(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	_, err = ledger.Resolve(ctx, first.ID, DecisionRejected)
	require.NoError(t, err)

	pending, err = ledger.ListPending(ctx, "alice", StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	rejected, err := ledger.ListPending(ctx, "alice", StatusRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, first.ID, rejected[0].ID)

	none, err := ledger.ListPending(ctx, "carol", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLedger_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		tool       string
		fn         ToolFunc
		decision   Decision
		wantStatus Status
		wantResult map[string]any
		wantCalls  int32
	}{
		{
			name: "approve map result",
			tool: "send_gmail",
			fn: func(_ context.Context, call Call) (any, error) {
				return map[string]any{"status": "sent", "to": call.Params["to"], "user": call.Params["user_id"]}, nil
			},
			decision:   DecisionApproved,
			wantStatus: StatusApproved,
			wantResult: map[string]any{"status": "sent", "to": "bob@example.com", "user": "alice"},
			wantCalls:  1,
		},
		{
			name: "approve scalar result is wrapped",
			tool: "send_gmail",
			fn: func(context.Context, Call) (any, error) {
				return "ok", nil
			},
			decision:   DecisionApproved,
			wantStatus: StatusApproved,
			wantResult: map[string]any{"result": "ok"},
			wantCalls:  1,
		},
		{
			name: "approve list result is wrapped",
			tool: "send_gmail",
			fn: func(context.Context, Call) (any, error) {
				return []string{"a", "b"}, nil
			},
			decision:   DecisionApproved,
			wantStatus: StatusApproved,
			wantResult: map[string]any{"result": []any{"a", "b"}},
			wantCalls:  1,
		},
		{
			name: "approve backend error is stored in-band",
			tool: "send_gmail",
			fn: func(context.Context, Call) (any, error) {
				return nil, errors.New("smtp down")
			},
			decision:   DecisionApproved,
			wantStatus: StatusApproved,
			wantResult: map[string]any{"error": "smtp down"},
			wantCalls:  1,
		},
		{
			name:       "approve unknown tool",
			tool:       "gone",
			decision:   DecisionApproved,
			wantStatus: StatusApproved,
			wantResult: map[string]any{"error": "tool gmail.gone not found"},
		},
		{
			name: "reject leaves result unset",
			tool: "send_gmail",
			fn: func(context.Context, Call) (any, error) {
				return "should not run", nil
			},
			decision:   DecisionRejected,
			wantStatus: StatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			registry := NewRegistry()
			var calls atomic.Int32
			if tt.fn != nil {
				fn := tt.fn
				require.NoError(t, registry.Register("gmail", "send_gmail", func(ctx context.Context, call Call) (any, error) {
					calls.Add(1)
					return fn(ctx, call)
				}))
			}
			ledger := NewLedger(newMemStore(), registry, 0)

			a, err := ledger.CreatePending(ctx, "alice", "gmail", tt.tool, map[string]any{"to": "bob@example.com"})
			require.NoError(t, err)

			got, err := ledger.Resolve(ctx, a.ID, tt.decision)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantResult, got.Result)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestLedger_Resolve_Errors(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(newMemStore(), NewRegistry(), 0)

	_, err := ledger.Resolve(ctx, "pa_missing", DecisionApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := ledger.CreatePending(ctx, "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)

	_, err = ledger.Resolve(ctx, a.ID, Decision("maybe"))
	assert.ErrorIs(t, err, ErrInvalidDecision)

	_, err = ledger.Resolve(ctx, a.ID, DecisionRejected)
	require.NoError(t, err)

	_, err = ledger.Resolve(ctx, a.ID, DecisionApproved)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = ledger.Resolve(ctx, a.ID, DecisionRejected)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestLedger_Resolve_ConcurrentApproveRunsOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	registry := NewRegistry()

	var calls atomic.Int32
	require.NoError(t, registry.Register("gmail", "send_gmail", func(context.Context, Call) (any, error) {
		calls.Add(1)
		return map[string]any{"status": "sent"}, nil
	}))
	ledger := NewLedger(store, registry, 0)

	a, err := ledger.CreatePending(ctx, "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)

	// Hold every resolver at the swap until all have passed the status read.
	const resolvers = 8
	var arrived sync.WaitGroup
	arrived.Add(resolvers)
	release := make(chan struct{})
	store.transitionHook = func() {
		arrived.Done()
		<-release
	}

	var wg sync.WaitGroup
	errs := make([]error, resolvers)
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Resolve(ctx, a.ID, DecisionApproved)
		}(i)
	}
	arrived.Wait()
	close(release)
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyResolved):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, resolvers-1, already)
	assert.Equal(t, int32(1), calls.Load())

	got, err := ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, map[string]any{"status": "sent"}, got.Result)
}

func TestLedger_Resolve_CallerCancelledDuringExecution(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newMemStore()
	registry := NewRegistry()

	var backendCtxErr error
	require.NoError(t, registry.Register("gmail", "send_gmail", func(callCtx context.Context, _ Call) (any, error) {
		// The client hangs up after the mail went out.
		cancel()
		backendCtxErr = callCtx.Err()
		return map[string]any{"status": "sent"}, nil
	}))
	ledger := NewLedger(store, registry, 0)

	a, err := ledger.CreatePending(ctx, "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)

	resolved, err := ledger.Resolve(ctx, a.ID, DecisionApproved)
	require.NoError(t, err)
	assert.NoError(t, backendCtxErr)
	assert.Equal(t, StatusApproved, resolved.Status)
	assert.Equal(t, map[string]any{"status": "sent"}, resolved.Result)

	got, err := ledger.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "sent"}, got.Result)

	_, err = ledger.Resolve(context.Background(), a.ID, DecisionApproved)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestLedger_ExpireStale(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	store := newMemStore()
	recorder := newCountingRecorder()
	ledger := NewLedger(store, NewRegistry(), time.Hour, WithClock(clock.Now), WithRecorder(recorder))

	old, err := ledger.CreatePending(ctx, "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)
	clock.Advance(45 * time.Minute)
	fresh, err := ledger.CreatePending(ctx, "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)

	n, err := ledger.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), recorder.expired)

	got, err := ledger.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	got, err = ledger.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	_, err = ledger.Resolve(ctx, old.ID, DecisionApproved)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestLedger_ExpireStale_Disabled(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	ledger := NewLedger(newMemStore(), NewRegistry(), 0, WithClock(clock.Now))

	a, err := ledger.CreatePending(ctx, "alice", "gmail", "send_gmail", nil)
	require.NoError(t, err)
	clock.Advance(365 * 24 * time.Hour)

	n, err := ledger.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := ledger.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestNormalizeResult(t *testing.T) {
	type email struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
	}

	tests := []struct {
		name string
		in   any
		want map[string]any
	}{
		{"nil", nil, map[string]any{"result": nil}},
		{"map", map[string]any{"a": 1}, map[string]any{"a": 1}},
		{"struct", email{ID: "1", Subject: "hi"}, map[string]any{"id": "1", "subject": "hi"}},
		{"number", 3, map[string]any{"result": float64(3)}},
		{"bool", true, map[string]any{"result": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeResult(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := normalizeResult(make(chan int))
	assert.Error(t, err)
}
