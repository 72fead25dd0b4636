package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxgate/internal/permission"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show and change a user's tool states",
		Long: `Show and change a user's tool states.

States:
  enabled   calls run immediately
  verify    calls wait for the user's approval
  disabled  calls are refused`,
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsGetCmd())
	cmd.AddCommand(newToolsSetCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list [INTEGRATION]",
		Short: "List tool states, optionally for one integration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			integration := ""
			if len(args) == 1 {
				integration = args[0]
			}
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				return printToolStates(ctx, cmd, rt, userID, integration)
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}

func newToolsGetCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "get INTEGRATION TOOL",
		Short: "Show the state of one tool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				perm, err := rt.sc.Manager().ToolState(ctx, userID, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), perm.State)
				return nil
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}

func newToolsSetCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "set INTEGRATION TOOL[,TOOL...] STATE",
		Short: "Set the state of one or more tools",
		Example: `  inboxgate tools set --user alice@example.com gmail send_gmail verify
  inboxgate tools set --user alice@example.com calendar list_events,create_event disabled`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := permission.ParseState(args[2])
			if err != nil {
				return err
			}
			tools := parseCommaSeparatedList(args[1])
			if len(tools) == 0 {
				return fmt.Errorf("at least one tool is required")
			}
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				for _, tool := range tools {
					if _, err := rt.sc.Manager().SetToolState(ctx, userID, args[0], tool, state); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %s\n", args[0], tool, state)
				}
				return nil
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}

func printToolStates(ctx context.Context, cmd *cobra.Command, rt *runtime, userID, integration string) error {
	perms, err := rt.sc.Manager().ToolStates(ctx, userID, integration)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(perms))
	for _, p := range perms {
		rows = append(rows, []string{p.Integration, p.Tool, string(p.State)})
	}
	return printTable(cmd.OutOrStdout(), []string{"INTEGRATION", "TOOL", "STATE"}, rows)
}
