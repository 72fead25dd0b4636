package gmail_tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/server"
	"github.com/teemow/inboxgate/internal/tools/common"
)

func userIDOption() mcp.ToolOption {
	return mcp.WithString(common.UserIDParam,
		mcp.Description("User the call acts for. Optional when the transport identifies the user."),
	)
}

// Tools returns the MCP definitions of the Gmail tools.
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolSearch,
			mcp.WithDescription("Search Gmail messages with a Gmail query"),
			userIDOption(),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Gmail search query (e.g., 'in:inbox', 'from:user@example.com is:unread')"),
			),
			mcp.WithNumber("max_results",
				mcp.Description("Maximum number of messages to return (default: 10, max: 100)"),
			),
		),
		mcp.NewTool(ToolLastEmail,
			mcp.WithDescription("Get the most recent message in the Gmail inbox"),
			userIDOption(),
		),
		mcp.NewTool(ToolSend,
			mcp.WithDescription("Send an email through Gmail. With thread_id the message is sent as a reply in that thread."),
			userIDOption(),
			mcp.WithString("to",
				mcp.Required(),
				mcp.Description("Recipient email address(es), comma-separated for multiple recipients"),
			),
			mcp.WithString("subject",
				mcp.Description("Email subject. Required unless thread_id is set."),
			),
			mcp.WithString("body",
				mcp.Required(),
				mcp.Description("Plain text email body"),
			),
			mcp.WithString("thread_id",
				mcp.Description("Thread to reply in"),
			),
		),
	}
}

// RegisterGmailTools adds the Gmail tools to s. Every call is routed
// through the permission gate.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	for _, tool := range Tools() {
		key := permission.ToolKey{Integration: Integration, Tool: tool.Name}
		sc.RegisterGatedTool(tool.Name, key)
		s.AddTool(tool, common.GatedToolHandler(sc, tool.Name, key))
	}
	return nil
}
