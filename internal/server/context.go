package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxgate/internal/google"
	"github.com/teemow/inboxgate/internal/instrumentation"
	"github.com/teemow/inboxgate/internal/logging"
	"github.com/teemow/inboxgate/internal/permission"
)

// Store is the persistence the server needs.
type Store interface {
	permission.ManagerStore
	permission.LedgerStore
	Ping(ctx context.Context) error
}

// Options configures a ServerContext.
type Options struct {
	Store       Store
	Registry    *permission.Registry
	Defaults    permission.Defaults
	Credentials *google.CredentialProvider

	ToolTimeout time.Duration
	ApprovalTTL time.Duration
	DefaultUser string

	Logger      *slog.Logger
	Metrics     *instrumentation.Metrics
	AuditLogger *instrumentation.AuditLogger
}

// ServerContext holds the shared services behind the MCP and REST surfaces.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	store       Store
	registry    *permission.Registry
	gate        *permission.Gate
	ledger      *permission.Ledger
	manager     *permission.Manager
	credentials *google.CredentialProvider
	defaultUser string

	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu         sync.RWMutex
	gatedTools map[string]permission.ToolKey
	shutdown   bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Registry == nil {
		opts.Registry = permission.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	shared := []permission.Option{
		permission.WithLogger(opts.Logger),
		permission.WithRecorder(opts.Metrics),
		permission.WithTimeout(opts.ToolTimeout),
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	ledger := permission.NewLedger(opts.Store, opts.Registry, opts.ApprovalTTL, shared...)

	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		store:       opts.Store,
		registry:    opts.Registry,
		ledger:      ledger,
		gate:        permission.NewGate(opts.Store, ledger, opts.Registry, shared...),
		manager:     permission.NewManager(opts.Store, opts.Registry, opts.Defaults, shared...),
		credentials: opts.Credentials,
		defaultUser: opts.DefaultUser,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		auditLogger: opts.AuditLogger,
		gatedTools:  make(map[string]permission.ToolKey),
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

func (sc *ServerContext) Registry() *permission.Registry { return sc.registry }
func (sc *ServerContext) Gate() *permission.Gate         { return sc.gate }
func (sc *ServerContext) Ledger() *permission.Ledger     { return sc.ledger }
func (sc *ServerContext) Manager() *permission.Manager   { return sc.manager }
func (sc *ServerContext) Logger() *slog.Logger           { return sc.logger }
func (sc *ServerContext) DefaultUser() string            { return sc.defaultUser }

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil when audit logging is off.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Credentials returns the Google credential provider, or nil if Google is not configured.
func (sc *ServerContext) Credentials() *google.CredentialProvider {
	return sc.credentials
}

// HTTPClient returns an authenticated Google HTTP client for userID.
func (sc *ServerContext) HTTPClient(ctx context.Context, userID string) (*http.Client, error) {
	if sc.credentials == nil {
		return nil, fmt.Errorf("%w: Google OAuth is not configured", google.ErrNoValidCredentials)
	}
	return sc.credentials.HTTPClient(ctx, userID)
}

// Ping checks the backing store.
func (sc *ServerContext) Ping(ctx context.Context) error {
	return sc.store.Ping(ctx)
}

// RegisterGatedTool records that the MCP tool name dispatches to key
// through the gate, so tool listings can be filtered per user.
func (sc *ServerContext) RegisterGatedTool(name string, key permission.ToolKey) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gatedTools[name] = key
}

// GatedTool returns the registry key behind an MCP tool name.
func (sc *ServerContext) GatedTool(name string) (permission.ToolKey, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	key, ok := sc.gatedTools[name]
	return key, ok
}

// FilterTools drops gated tools the user in ctx cannot use. Gated tools are
// listed when their state is enabled or verify and their integration is not
// disconnected; ungated tools are always listed.
func (sc *ServerContext) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	userID, _ := UserIDFromContext(ctx)

	filtered := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		key, gated := sc.GatedTool(tool.Name)
		if !gated {
			filtered = append(filtered, tool)
			continue
		}
		if userID == "" {
			continue
		}
		_, state, err := sc.gate.Authorize(ctx, userID, key.Integration, key.Tool)
		if err != nil {
			sc.logger.WarnContext(ctx, "failed to load tool state for listing",
				logging.UserHash(userID),
				logging.Tool(key.String()),
				logging.Err(err))
			continue
		}
		if state == permission.StateEnabled || state == permission.StateVerify {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}

// Resolve approves or rejects a pending action and writes the audit record.
func (sc *ServerContext) Resolve(ctx context.Context, id string, decision permission.Decision) (*permission.PendingAction, error) {
	ctx, span := instrumentation.StartSpan(ctx, "ledger.resolve",
		instrumentation.NewSpanAttributeBuilder().
			WithActionID(id).
			WithDecision(string(decision)).
			Build()...)
	defer span.End()

	action, err := sc.ledger.Resolve(ctx, id, decision)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	res := instrumentation.Resolution{
		ActionID:    action.ID,
		User:        action.UserID,
		Integration: action.Integration,
		Tool:        action.Tool,
		Decision:    string(decision),
		Status:      string(action.Status),
	}
	if msg, ok := action.Result["error"].(string); ok {
		res.Error = msg
	}
	sc.auditLogger.LogResolution(ctx, res)
	return action, nil
}

// StartSweeper expires stale pending actions in the background until Shutdown.
func (sc *ServerContext) StartSweeper(interval time.Duration) {
	go sc.ledger.RunSweeper(sc.ctx, interval)
}

// IsShutdown returns true if the server context has been shut down
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown gracefully shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
