package permission

import (
	"context"
	"fmt"

	"github.com/teemow/inboxgate/internal/logging"
)

// Defaults supplies the initial state for tools seeded on connect.
type Defaults interface {
	StateFor(integration, tool string) State
}

// Manager maintains a user's integration connections and tool states.
type Manager struct {
	store    ManagerStore
	registry *Registry
	defaults Defaults
	settings
}

// NewManager creates a manager. defaults may be nil, in which case seeded
// tools start disabled.
func NewManager(store ManagerStore, registry *Registry, defaults Defaults, opts ...Option) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		defaults: defaults,
		settings: applyOptions(opts),
	}
}

func (m *Manager) defaultState(integration, tool string) State {
	if m.defaults == nil {
		return StateDisabled
	}
	st := m.defaults.StateFor(integration, tool)
	if _, err := ParseState(string(st)); err != nil {
		return StateDisabled
	}
	return st
}

// Connect marks integration connected for userID and seeds a permission
// record for every registered tool that does not have one yet. Existing
// states are left untouched.
func (m *Manager) Connect(ctx context.Context, userID, integration string) (*Connection, error) {
	tools := m.registry.Tools(integration)
	if len(tools) == 0 {
		return nil, fmt.Errorf("%w: integration %q has no tools", ErrToolNotFound, integration)
	}

	if err := m.store.EnsureUser(ctx, userID, ""); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	now := m.now().UTC()
	conn, err := m.store.UpsertConnection(ctx, userID, integration, ConnectionConnected, now)
	if err != nil {
		return nil, fmt.Errorf("failed to connect integration: %w", err)
	}

	seeded := 0
	for _, tool := range tools {
		created, err := m.store.CreateToolPermission(ctx, ToolPermission{
			UserID:      userID,
			Integration: integration,
			Tool:        tool,
			State:       m.defaultState(integration, tool),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed %s.%s: %w", integration, tool, err)
		}
		if created {
			seeded++
		}
	}

	m.logger.InfoContext(ctx, "integration connected",
		logging.UserHash(userID),
		logging.Integration(integration),
		logging.Count(seeded))
	return conn, nil
}

// Disconnect marks integration disconnected. Tool states are kept so a later
// Connect restores them.
func (m *Manager) Disconnect(ctx context.Context, userID, integration string) (*Connection, error) {
	existing, err := m.store.GetConnection(ctx, userID, integration)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: integration %q is not connected", ErrNotFound, integration)
	}

	conn, err := m.store.UpsertConnection(ctx, userID, integration, ConnectionDisconnected, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to disconnect integration: %w", err)
	}
	m.logger.InfoContext(ctx, "integration disconnected",
		logging.UserHash(userID),
		logging.Integration(integration))
	return conn, nil
}

// Connections lists the user's integration connections.
func (m *Manager) Connections(ctx context.Context, userID string) ([]Connection, error) {
	conns, err := m.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	if conns == nil {
		conns = []Connection{}
	}
	return conns, nil
}

// ToolStates lists permission records for userID. An empty integration lists all.
func (m *Manager) ToolStates(ctx context.Context, userID, integration string) ([]ToolPermission, error) {
	perms, err := m.store.ListToolPermissions(ctx, userID, integration)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool states: %w", err)
	}
	if perms == nil {
		perms = []ToolPermission{}
	}
	return perms, nil
}

// ToolState returns the permission record for one tool.
func (m *Manager) ToolState(ctx context.Context, userID, integration, tool string) (*ToolPermission, error) {
	perm, err := m.store.GetToolPermission(ctx, userID, integration, tool)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool state: %w", err)
	}
	if perm == nil {
		return nil, fmt.Errorf("%w: no state for %s.%s", ErrNotFound, integration, tool)
	}
	return perm, nil
}

// SetToolState sets the state of a registered tool, creating the record if needed.
func (m *Manager) SetToolState(ctx context.Context, userID, integration, tool string, state State) (*ToolPermission, error) {
	if _, err := ParseState(string(state)); err != nil {
		return nil, err
	}
	if !m.registry.Has(integration, tool) {
		return nil, fmt.Errorf("%w: %s.%s", ErrToolNotFound, integration, tool)
	}
	if err := m.store.EnsureUser(ctx, userID, ""); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	now := m.now().UTC()
	perm, err := m.store.UpsertToolPermission(ctx, ToolPermission{
		UserID:      userID,
		Integration: integration,
		Tool:        tool,
		State:       state,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set tool state: %w", err)
	}

	m.logger.InfoContext(ctx, "tool state changed",
		logging.UserHash(userID),
		logging.Integration(integration),
		logging.Tool(tool),
		logging.State(string(state)))
	return perm, nil
}
