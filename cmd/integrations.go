package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxgate/internal/permission"
)

func newIntegrationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrations",
		Short: "Manage a user's connected integrations",
	}
	cmd.AddCommand(newIntegrationsListCmd())
	cmd.AddCommand(newIntegrationsConnectCmd())
	cmd.AddCommand(newIntegrationsDisconnectCmd())
	return cmd
}

func newIntegrationsListCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available integrations and the user's connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				conns, err := rt.sc.Manager().Connections(ctx, userID)
				if err != nil {
					return err
				}

				status := make(map[string]permission.Connection, len(conns))
				for _, c := range conns {
					status[c.Integration] = c
				}

				var rows [][]string
				for _, name := range rt.sc.Registry().Integrations() {
					row := []string{name, "not connected", "-"}
					if c, ok := status[name]; ok {
						row = []string{name, string(c.Status), formatTime(c.UpdatedAt)}
					}
					rows = append(rows, row)
				}
				return printTable(cmd.OutOrStdout(), []string{"INTEGRATION", "STATUS", "UPDATED"}, rows)
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}

func newIntegrationsConnectCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "connect INTEGRATION",
		Short: "Connect an integration and seed its tool states from the policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				if _, err := rt.sc.Manager().Connect(ctx, userID, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected %s for %s\n", args[0], userID)
				return printToolStates(ctx, cmd, rt, userID, args[0])
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}

func newIntegrationsDisconnectCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "disconnect INTEGRATION",
		Short: "Disconnect an integration; tool states are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				if _, err := rt.sc.Manager().Disconnect(ctx, userID, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s for %s\n", args[0], userID)
				return nil
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}
