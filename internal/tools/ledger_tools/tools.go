package ledger_tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/server"
	"github.com/teemow/inboxgate/internal/tools/common"
)

// ToolPendingActionStatus reports the state of a pending action.
const ToolPendingActionStatus = "pending_action_status"

type statusResponse struct {
	ActionID    string            `json:"action_id"`
	Integration string            `json:"integration_name"`
	Tool        string            `json:"tool_name"`
	Status      permission.Status `json:"status"`
	Result      map[string]any    `json:"result,omitempty"`
}

// Tools returns the MCP definitions of the ledger tools.
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolPendingActionStatus,
			mcp.WithDescription("Check whether a call awaiting approval was approved, rejected or expired, and see its result"),
			mcp.WithString(common.UserIDParam,
				mcp.Description("User the call acts for. Optional when the transport identifies the user."),
			),
			mcp.WithString("action_id",
				mcp.Required(),
				mcp.Description("The action_id returned with pending_user_approval"),
			),
		),
	}
}

// RegisterLedgerTools adds the ledger tools to s. They are not gated.
func RegisterLedgerTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	s.AddTool(Tools()[0], common.InstrumentedToolHandler(ToolPendingActionStatus, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handlePendingActionStatus(ctx, request, sc)
		}))
	return nil
}

func handlePendingActionStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID, err := common.ResolveUserID(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := common.Params(args).RequiredString("action_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	action, err := sc.Ledger().Get(ctx, id)
	switch {
	case errors.Is(err, permission.ErrNotFound):
		return mcp.NewToolResultError("pending action " + id + " not found"), nil
	case err != nil:
		return nil, err
	}
	// Other users' actions are reported as missing.
	if action.UserID != userID {
		return mcp.NewToolResultError("pending action " + id + " not found"), nil
	}

	return common.JSONResult(statusResponse{
		ActionID:    action.ID,
		Integration: action.Integration,
		Tool:        action.Tool,
		Status:      action.Status,
		Result:      action.Result,
	})
}
