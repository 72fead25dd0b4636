package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxgate/internal/config"
	"github.com/teemow/inboxgate/internal/google"
	"github.com/teemow/inboxgate/internal/instrumentation"
	"github.com/teemow/inboxgate/internal/logging"
	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/policy"
	"github.com/teemow/inboxgate/internal/server"
	"github.com/teemow/inboxgate/internal/store"
	"github.com/teemow/inboxgate/internal/tools/calendar_tools"
	"github.com/teemow/inboxgate/internal/tools/gmail_tools"
	"github.com/teemow/inboxgate/internal/tools/ledger_tools"
)

// runtime owns everything a command needs: store, token cache and the
// server context with all backends registered.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.SQLiteStore
	tokens *memory.Store
	oauth  *google.CredentialProvider
	sc     *server.ServerContext
}

type runtimeOptions struct {
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
}

// newLogger builds the process logger. Logs always go to stderr so stdio
// transport output stays clean.
func newLogger(cfg *config.Config, debug bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.New(os.Stderr, level, cfg.LogFormat), nil
}

func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	logger := opts.logger
	if logger == nil {
		var err error
		if logger, err = newLogger(cfg, false); err != nil {
			return nil, err
		}
	}

	pol, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		store:  st,
		tokens: memory.New(),
	}

	if cfg.GoogleConfigured() {
		conf := google.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		var recorder google.RefreshRecorder
		if opts.metrics != nil {
			recorder = opts.metrics
		}
		rt.oauth = google.NewCredentialProvider(conf, google.NewCachedTokenProvider(rt.tokens, st), recorder, logger)
	} else {
		logger.Warn("Google OAuth client not configured; tool backends will fail until INBOXGATE_GOOGLE_CLIENT_ID and INBOXGATE_GOOGLE_CLIENT_SECRET are set")
	}

	reg := permission.NewRegistry()
	sc, err := server.NewServerContext(ctx, server.Options{
		Store:       st,
		Registry:    reg,
		Defaults:    pol,
		Credentials: rt.oauth,
		ToolTimeout: cfg.ToolTimeout,
		ApprovalTTL: cfg.ApprovalTTL,
		DefaultUser: cfg.DefaultUser,
		Logger:      logger,
		Metrics:     opts.metrics,
		AuditLogger: opts.audit,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.sc = sc

	if err := registerBackends(reg, sc, opts.metrics); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// registerBackends fills the tool registry with every capability backend.
func registerBackends(reg *permission.Registry, sc *server.ServerContext, metrics *instrumentation.Metrics) error {
	if err := gmail_tools.RegisterBackends(reg, gmail_tools.NewMailboxFactory(sc), metrics); err != nil {
		return fmt.Errorf("failed to register Gmail backends: %w", err)
	}
	if err := calendar_tools.RegisterBackends(reg, calendar_tools.NewSchedulerFactory(sc), metrics); err != nil {
		return fmt.Errorf("failed to register Calendar backends: %w", err)
	}
	return nil
}

func (rt *runtime) close() error {
	var errs []error
	if rt.sc != nil {
		errs = append(errs, rt.sc.Shutdown())
	}
	if rt.tokens != nil {
		rt.tokens.Stop()
	}
	errs = append(errs, rt.store.Close())
	return errors.Join(errs...)
}

// newMCPServer creates the MCP server with every tool registered. The tool
// list each user sees is filtered by their tool states.
func newMCPServer(sc *server.ServerContext) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("inboxgate", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithToolFilter(sc.FilterTools),
	)
	if err := registerAllTools(mcpSrv, sc); err != nil {
		return nil, err
	}
	return mcpSrv, nil
}

// registerAllTools registers all MCP tools.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Gmail",
			register: func() error {
				return gmail_tools.RegisterGmailTools(mcpSrv, sc)
			},
		},
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc)
			},
		},
		{
			name: "Pending actions",
			register: func() error {
				return ledger_tools.RegisterLedgerTools(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}
