package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxgate application
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inboxgate",
		Short: "Per-user permission gate for Gmail and Calendar tools",
		Long: `inboxgate exposes Gmail and Google Calendar operations to AI assistants
and decides, per user and tool, whether each call runs right away, waits for
the user's approval, or is refused.

It can run as:
  - An MCP (Model Context Protocol) server over stdio or streamable HTTP
  - A CLI for managing integrations, tool states and pending actions`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIntegrationsCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newPendingCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newGenerateDocsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxgate version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
