// Package cmd implements the command-line interface for inboxgate.
//
// This package provides the following commands:
//   - serve: Start the MCP server and the management API
//   - integrations: Connect, disconnect and list a user's integrations
//   - tools: Show and change per-user tool states
//   - pending: List, approve and reject pending actions
//   - auth: Link a user's Google account
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// Every command reads its configuration from INBOXGATE_* environment
// variables (and .env); flags override individual values.
package cmd
