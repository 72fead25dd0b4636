package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxgate/internal/config"
	"github.com/teemow/inboxgate/internal/instrumentation"
	"github.com/teemow/inboxgate/internal/logging"
	"github.com/teemow/inboxgate/internal/server"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"

	metricsStartTimeout = 5 * time.Second
	shutdownTimeout     = 30 * time.Second
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	transport        string
	debug            bool
	httpAddr         string
	disableStreaming bool
	metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that exposes the gated
Gmail and Calendar tools to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default). Calls act for INBOXGATE_DEFAULT_USER
    unless they pass user_id.
  - streamable-http: Streamable HTTP transport on /mcp. The calling user is
    taken from the X-User-ID header or the user_id argument. The management
    API is served under /v1 on the same address.

Configuration is read from INBOXGATE_* environment variables; the flags
below override them when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, &opts)
			return runServe(cfg, opts)
		},
	}

	bindServeFlags(cmd, &opts)

	return cmd
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	cmd.Flags().StringVar(&opts.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Answer streamable-http requests with plain JSON instead of SSE")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", true, "Serve Prometheus metrics on a separate port (streamable-http only)")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", ":9090", "Metrics server address")
}

// applyServeFlags merges config and flags. Flags win only when they were
// set explicitly; otherwise the environment value is kept.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts *serveOptions) {
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr = opts.httpAddr
	}
	if cmd.Flags().Changed("metrics-enabled") {
		cfg.MetricsEnabled = opts.metrics.Enabled
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metrics.Addr
	}
	opts.httpAddr = cfg.HTTPAddr
	opts.metrics = MetricsConfig{Enabled: cfg.MetricsEnabled, Addr: cfg.MetricsAddr}
	opts.transport = strings.ToLower(strings.TrimSpace(opts.transport))
}

func runServe(cfg *config.Config, opts serveOptions) error {
	switch opts.transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport %q (use %s or %s)", opts.transport, transportStdio, transportStreamableHTTP)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts.debug)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	instrConfig, err := instrumentation.LoadConfig()
	if err != nil {
		return err
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	rt, err := newRuntime(shutdownCtx, cfg, runtimeOptions{
		logger:  logger,
		metrics: provider.Metrics(),
		audit:   instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.close(); err != nil {
			logger.Warn("error during shutdown", logging.Err(err))
		}
	}()

	mcpSrv, err := newMCPServer(rt.sc)
	if err != nil {
		return err
	}

	rt.sc.StartSweeper(cfg.SweepInterval)

	if opts.transport == transportStdio {
		logger.Info("serving MCP over stdio", slog.Bool("default_user_set", cfg.DefaultUser != ""))
		return runStdioServer(shutdownCtx, mcpSrv, cfg.DefaultUser)
	}

	// Metrics only make sense for long-running HTTP deployments.
	if opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err := startMetricsServer(opts.metrics, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error shutting down metrics server", logging.Err(err))
			}
		}()
	}

	httpSrv := server.NewHTTPServer(mcpSrv, rt.sc, server.HTTPConfig{
		Addr:             opts.httpAddr,
		APIToken:         cfg.APIToken,
		DisableStreaming: opts.disableStreaming,
	})
	if cfg.APIToken == "" {
		logger.Warn("INBOXGATE_API_TOKEN is not set; /v1 and /mcp accept unauthenticated requests")
	}
	return runStreamableHTTPServer(shutdownCtx, httpSrv, logger)
}

func startMetricsServer(metricsConfig MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    metricsConfig.Addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(metricsStartTimeout):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, defaultUser string) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv,
			mcpserver.WithStdioContextFunc(server.StdioUserContext(defaultUser)),
		); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

func runStreamableHTTPServer(ctx context.Context, httpSrv *server.HTTPServer, logger *slog.Logger) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()
	logger.Info("serving MCP and management API", slog.String("addr", httpSrv.Addr()))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
