package calendar_tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/server"
	"github.com/teemow/inboxgate/internal/tools/common"
)

// Tools returns the MCP definitions of the Calendar tools.
func Tools() []mcp.Tool {
	userID := mcp.WithString(common.UserIDParam,
		mcp.Description("User the call acts for. Optional when the transport identifies the user."),
	)

	return []mcp.Tool{
		mcp.NewTool(ToolListEvents,
			mcp.WithDescription("List upcoming events on the primary Google Calendar"),
			userID,
			mcp.WithNumber("days",
				mcp.Description("How many days ahead to look (default: 7)"),
			),
		),
		mcp.NewTool(ToolCreateEvent,
			mcp.WithDescription("Create an event on the primary Google Calendar"),
			userID,
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Event title"),
			),
			mcp.WithString("start",
				mcp.Required(),
				mcp.Description("Start time in RFC 3339 format (e.g., 2025-01-15T14:00:00Z); no offset means UTC"),
			),
			mcp.WithString("end",
				mcp.Required(),
				mcp.Description("End time in RFC 3339 format; must be after start"),
			),
			mcp.WithString("description",
				mcp.Description("Event description"),
			),
			mcp.WithString("location",
				mcp.Description("Event location"),
			),
			mcp.WithString("attendees",
				mcp.Description("Attendee email address(es), comma-separated"),
			),
		),
	}
}

// RegisterCalendarTools adds the Calendar tools to s. Every call is routed
// through the permission gate.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	for _, tool := range Tools() {
		key := permission.ToolKey{Integration: Integration, Tool: tool.Name}
		sc.RegisterGatedTool(tool.Name, key)
		s.AddTool(tool, common.GatedToolHandler(sc, tool.Name, key))
	}
	return nil
}
