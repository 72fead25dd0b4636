package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/policy"
	"github.com/teemow/inboxgate/internal/server"
	"github.com/teemow/inboxgate/internal/store"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate a markdown reference of every MCP tool, built from the registered
tool definitions. Gated tools list the state a newly connected integration
starts with under the built-in policy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				return writeToolDocs(cmd.Context(), cmd.OutOrStdout())
			}
			if err := runGenerateDocs(outputFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func runGenerateDocs(outputFile string) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeToolDocs(context.Background(), f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeToolDocs(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tools, categories, err := collectTools(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, generateToolsMarkdown(tools, categories))
	return err
}

// documentedTool is one tool as it appears in the reference.
type documentedTool struct {
	mcp.Tool
	Category string
	// DefaultState is empty for ungated tools.
	DefaultState permission.State
}

// collectTools registers every tool on a throwaway server backed by an
// in-memory store. The map gives each tool its gated key, absent for tools
// outside the gate.
func collectTools(ctx context.Context) ([]mcp.Tool, map[string]permission.ToolKey, error) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	reg := permission.NewRegistry()
	sc, err := server.NewServerContext(ctx, server.Options{Store: st, Registry: reg})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	if err := registerBackends(reg, sc, nil); err != nil {
		return nil, nil, err
	}

	// No tool filter: the reference lists every tool regardless of state.
	mcpSrv := mcpserver.NewMCPServer("inboxgate", version, mcpserver.WithToolCapabilities(true))
	if err := registerAllTools(mcpSrv, sc); err != nil {
		return nil, nil, err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	gated := make(map[string]permission.ToolKey, len(serverTools))
	for _, srvTool := range serverTools {
		tools = append(tools, srvTool.Tool)
		if key, ok := sc.GatedTool(srvTool.Tool.Name); ok {
			gated[srvTool.Tool.Name] = key
		}
	}
	return tools, gated, nil
}

// documentTools attaches categories and default states and orders the
// result by category, then name.
func documentTools(tools []mcp.Tool, gated map[string]permission.ToolKey) []documentedTool {
	defaults := policy.Default()
	docs := make([]documentedTool, 0, len(tools))
	for _, tool := range tools {
		d := documentedTool{Tool: tool, Category: categoryForIntegration("")}
		if key, ok := gated[tool.Name]; ok {
			d.Category = categoryForIntegration(key.Integration)
			d.DefaultState = defaults.StateFor(key.Integration, key.Tool)
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Category != docs[j].Category {
			return docs[i].Category < docs[j].Category
		}
		return docs[i].Name < docs[j].Name
	})
	return docs
}

func generateToolsMarkdown(tools []mcp.Tool, gated map[string]permission.ToolKey) string {
	docs := documentTools(tools, gated)

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Every tool inboxgate exposes over MCP. This file is generated by `inboxgate generate-docs`.\n\n")

	sb.WriteString("## Table of Contents\n\n")
	var categories []string
	for _, d := range docs {
		if !slices.Contains(categories, d.Category) {
			categories = append(categories, d.Category)
			anchor := strings.ToLower(strings.ReplaceAll(d.Category, " ", "-"))
			fmt.Fprintf(&sb, "- [%s](#%s)\n", d.Category, anchor)
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Permissions\n\n")
	sb.WriteString("Gmail and Calendar tools are gated by the calling user's tool state:\n\n")
	sb.WriteString("- **enabled:** the call runs and returns its result\n")
	sb.WriteString("- **verify:** the call is stored and returns `{\"status\": \"pending_user_approval\", \"action_id\": ...}`; it runs once the user approves it\n")
	sb.WriteString("- **disabled:** the call is refused, and the tool is hidden from the user's tool list\n\n")
	sb.WriteString("All tools accept an optional `user_id` argument. It is required when the transport does not identify the user.\n\n")

	current := ""
	for _, d := range docs {
		if d.Category != current {
			current = d.Category
			fmt.Fprintf(&sb, "## %s\n\n", current)
		}
		writeToolMarkdown(&sb, d)
		sb.WriteString("\n")
	}
	return sb.String()
}

func categoryForIntegration(integration string) string {
	switch integration {
	case "gmail":
		return "Gmail Tools"
	case "calendar":
		return "Google Calendar Tools"
	case "":
		return "Pending Action Tools"
	default:
		return strings.ToUpper(integration[:1]) + integration[1:] + " Tools"
	}
}

func writeToolMarkdown(sb *strings.Builder, d documentedTool) {
	fmt.Fprintf(sb, "### %s\n\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", d.Description)
	}
	if d.DefaultState != permission.StateNone {
		fmt.Fprintf(sb, "**Default state:** `%s`\n\n", d.DefaultState)
	}

	props := d.InputSchema.Properties
	if len(props) == 0 {
		return
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("**Arguments:**\n")
	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		required := "optional"
		if slices.Contains(d.InputSchema.Required, name) {
			required = "required"
		}
		desc, _ := prop["description"].(string)
		if desc == "" {
			desc = propertyType(prop) + " parameter"
		}
		fmt.Fprintf(sb, "- `%s` (%s): %s\n", name, required, desc)
	}
	sb.WriteString("\n")
}

func propertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
