package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var errGoogleNotConfigured = errors.New("google OAuth is not configured: set INBOXGATE_GOOGLE_CLIENT_ID and INBOXGATE_GOOGLE_CLIENT_SECRET")

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Link a user's Google account",
		Long: `Link a user's Google account so the Gmail and Calendar backends can act
for them.

  1. inboxgate auth url --user alice@example.com
  2. Open the URL, grant access, and copy the code from the redirect
  3. inboxgate auth exchange --user alice@example.com --code <code>`,
	}
	cmd.AddCommand(newAuthURLCmd())
	cmd.AddCommand(newAuthExchangeCmd())
	cmd.AddCommand(newAuthRevokeCmd())
	return cmd
}

func newAuthURLCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the Google consent URL for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if rt.oauth == nil {
					return errGoogleNotConfigured
				}
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rt.oauth.AuthCodeURL(userID))
				return nil
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}

func newAuthExchangeCmd() *cobra.Command {
	var user, code string
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code and store the user's token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("--code is required")
			}
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if rt.oauth == nil {
					return errGoogleNotConfigured
				}
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				if _, err := rt.oauth.Exchange(ctx, userID, code); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Google account linked for %s\n", userID)
				return nil
			})
		},
	}
	addUserFlag(cmd, &user)
	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the consent redirect")
	return cmd
}

func newAuthRevokeCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Forget the stored Google token of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				userID, err := rt.user(user)
				if err != nil {
					return err
				}
				if err := rt.store.DeleteGoogleToken(ctx, userID); err != nil {
					return fmt.Errorf("failed to delete token: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Google token removed for %s\n", userID)
				return nil
			})
		},
	}
	addUserFlag(cmd, &user)
	return cmd
}
