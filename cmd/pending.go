package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxgate/internal/permission"
)

func newPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List and resolve actions waiting for approval",
	}
	cmd.AddCommand(newPendingListCmd())
	cmd.AddCommand(newPendingShowCmd())
	cmd.AddCommand(newPendingResolveCmd("approve", "Approve and execute a pending action", permission.DecisionApproved))
	cmd.AddCommand(newPendingResolveCmd("reject", "Reject a pending action", permission.DecisionRejected))
	return cmd
}

func newPendingListCmd() *cobra.Command {
	var (
		user   string
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's pending actions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := permission.ParseStatus(status)
			if err != nil {
				return err
			}
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				actions, err := rt.sc.Ledger().ListPending(ctx, userID, st)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(actions))
				for _, a := range actions {
					rows = append(rows, []string{a.ID, a.Integration, a.Tool, string(a.Status), formatTime(a.CreatedAt)})
				}
				return printTable(cmd.OutOrStdout(), []string{"ID", "INTEGRATION", "TOOL", "STATUS", "CREATED"}, rows)
			})
		},
	}
	addUserFlag(cmd, &user)
	cmd.Flags().StringVar(&status, "status", string(permission.StatusPending), "Filter by status: pending, approved, rejected or expired")
	return cmd
}

func newPendingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a pending action with its parameters and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				action, err := rt.sc.Ledger().Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), action)
			})
		},
	}
}

// newPendingResolveCmd builds approve and reject. An approval runs the tool
// and prints the stored result.
func newPendingResolveCmd(use, short string, decision permission.Decision) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				action, err := rt.sc.Resolve(ctx, args[0], decision)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), action)
			})
		},
	}
}
