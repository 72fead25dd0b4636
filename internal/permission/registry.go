package permission

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Call carries the owning user and the parameters of one tool invocation.
// Params always contains "user_id" when the call reaches a ToolFunc.
type Call struct {
	UserID string
	Params map[string]any
}

// ToolFunc performs the remote operation behind a tool.
type ToolFunc func(ctx context.Context, call Call) (any, error)

// Registry maps fully qualified (integration, tool) keys to callables.
// There is no lookup by bare tool name.
type Registry struct {
	mu    sync.RWMutex
	funcs map[ToolKey]ToolFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[ToolKey]ToolFunc),
	}
}

// Register adds fn under (integration, tool). Registering the same key twice fails.
func (r *Registry) Register(integration, tool string, fn ToolFunc) error {
	if integration == "" || tool == "" {
		return fmt.Errorf("integration and tool name are required")
	}
	if fn == nil {
		return fmt.Errorf("tool function is required for %s.%s", integration, tool)
	}

	key := ToolKey{Integration: integration, Tool: tool}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[key]; exists {
		return fmt.Errorf("tool %s already registered", key)
	}
	r.funcs[key] = fn
	return nil
}

// Lookup returns the callable registered for (integration, tool).
func (r *Registry) Lookup(integration, tool string) (ToolFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[ToolKey{Integration: integration, Tool: tool}]
	return fn, ok
}

// Has reports whether (integration, tool) is registered.
func (r *Registry) Has(integration, tool string) bool {
	_, ok := r.Lookup(integration, tool)
	return ok
}

// Tools returns the sorted tool names registered for integration.
func (r *Registry) Tools(integration string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for key := range r.funcs {
		if key.Integration == integration {
			names = append(names, key.Tool)
		}
	}
	sort.Strings(names)
	return names
}

// Integrations returns the sorted names of all integrations with at least one tool.
func (r *Registry) Integrations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range r.funcs {
		seen[key.Integration] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
