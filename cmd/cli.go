package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxgate/internal/config"
	"github.com/teemow/inboxgate/internal/instrumentation"
)

// runWithRuntime loads configuration, opens the runtime for the duration of
// fn and closes it afterwards.
func runWithRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	instrConfig, err := instrumentation.LoadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, runtimeOptions{
		logger: logger,
		audit:  instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
	})
	if err != nil {
		return err
	}
	runErr := fn(ctx, rt)
	if err := rt.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// addUserFlag registers --user. An empty value falls back to
// INBOXGATE_DEFAULT_USER.
func addUserFlag(cmd *cobra.Command, user *string) {
	cmd.Flags().StringVarP(user, "user", "u", "", "User to act for (default: INBOXGATE_DEFAULT_USER)")
}

func (rt *runtime) user(flag string) (string, error) {
	if u := strings.TrimSpace(flag); u != "" {
		return u, nil
	}
	if rt.cfg.DefaultUser != "" {
		return rt.cfg.DefaultUser, nil
	}
	return "", fmt.Errorf("--user is required when INBOXGATE_DEFAULT_USER is not set")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes rows under a header, aligned in columns.
func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
