package permission

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory store used by the package tests.
type memStore struct {
	mu      sync.Mutex
	users   map[string]bool
	perms   map[[3]string]ToolPermission
	conns   map[[2]string]Connection
	actions map[string]*PendingAction
	order   []string

	// transitionHook runs inside TransitionPendingAction before the guard check.
	transitionHook func()
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]bool),
		perms:   make(map[[3]string]ToolPermission),
		conns:   make(map[[2]string]Connection),
		actions: make(map[string]*PendingAction),
	}
}

func (m *memStore) setState(userID, integration, tool string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[[3]string{userID, integration, tool}] = ToolPermission{
		UserID: userID, Integration: integration, Tool: tool, State: state,
	}
}

func (m *memStore) GetToolPermission(_ context.Context, userID, integration, tool string) (*ToolPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[[3]string{userID, integration, tool}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) CreatePendingAction(_ context.Context, a *PendingAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.actions[a.ID] = &cp
	m.order = append(m.order, a.ID)
	return nil
}

func (m *memStore) GetPendingAction(_ context.Context, id string) (*PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListPendingActions(_ context.Context, userID string, status Status) ([]PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingAction
	for _, id := range m.order {
		a := m.actions[id]
		if a.UserID == userID && a.Status == status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) TransitionPendingAction(_ context.Context, id string, from, to Status, at time.Time) (bool, error) {
	if m.transitionHook != nil {
		m.transitionHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = at
	return true, nil
}

func (m *memStore) SetPendingActionResult(ctx context.Context, id string, result map[string]any, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok || a.Status != StatusApproved || a.Result != nil {
		return false, nil
	}
	a.Result = result
	a.UpdatedAt = at
	return true, nil
}

func (m *memStore) ExpirePendingActions(_ context.Context, cutoff, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.actions {
		if a.Status == StatusPending && a.CreatedAt.Before(cutoff) {
			a.Status = StatusExpired
			a.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (m *memStore) EnsureUser(_ context.Context, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = true
	return nil
}

func (m *memStore) UpsertConnection(_ context.Context, userID, integration string, status ConnectionStatus, at time.Time) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{userID, integration}
	c, ok := m.conns[key]
	if !ok {
		c = Connection{UserID: userID, Integration: integration, CreatedAt: at}
	}
	c.Status = status
	c.UpdatedAt = at
	m.conns[key] = c
	return &c, nil
}

func (m *memStore) GetConnection(_ context.Context, userID, integration string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[[2]string{userID, integration}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) ListConnections(_ context.Context, userID string) ([]Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Connection
	for _, c := range m.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Integration < out[j].Integration })
	return out, nil
}

func (m *memStore) ListToolPermissions(_ context.Context, userID, integration string) ([]ToolPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ToolPermission
	for _, p := range m.perms {
		if p.UserID == userID && (integration == "" || p.Integration == integration) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Integration != out[j].Integration {
			return out[i].Integration < out[j].Integration
		}
		return out[i].Tool < out[j].Tool
	})
	return out, nil
}

func (m *memStore) CreateToolPermission(_ context.Context, p ToolPermission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [3]string{p.UserID, p.Integration, p.Tool}
	if _, ok := m.perms[key]; ok {
		return false, nil
	}
	m.perms[key] = p
	return true, nil
}

func (m *memStore) UpsertToolPermission(_ context.Context, p ToolPermission) (*ToolPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [3]string{p.UserID, p.Integration, p.Tool}
	if existing, ok := m.perms[key]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	m.perms[key] = p
	return &p, nil
}

// countingRecorder tallies gate decisions for assertions.
type countingRecorder struct {
	nopRecorder
	mu        sync.Mutex
	decisions map[string]int
	expired   int64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{decisions: make(map[string]int)}
}

func (r *countingRecorder) RecordGateDecision(_ context.Context, _, _, decision string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[decision]++
}

func (r *countingRecorder) RecordPendingExpired(_ context.Context, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired += n
}
