package common

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// JSONResult renders v as the text content of a tool result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// PendingResult is returned to the agent when a call awaits approval.
func PendingResult(actionID string) *mcp.CallToolResult {
	result, _ := JSONResult(map[string]string{
		"status":    "pending_user_approval",
		"action_id": actionID,
	})
	return result
}
