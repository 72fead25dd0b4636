package ledger_tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/server"
	"github.com/teemow/inboxgate/internal/store"
)

func newServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	reg := permission.NewRegistry()
	require.NoError(t, reg.Register("gmail", "send_gmail", func(context.Context, permission.Call) (any, error) {
		return map[string]any{"status": "sent", "id": "m1"}, nil
	}))

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sc, err := server.NewServerContext(context.Background(), server.Options{
		Store:       st,
		Registry:    reg,
		ToolTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func createPending(t *testing.T, sc *server.ServerContext, userID string) string {
	t.Helper()
	ctx := context.Background()
	_, err := sc.Manager().SetToolState(ctx, userID, "gmail", "send_gmail", permission.StateVerify)
	require.NoError(t, err)
	res, err := sc.Gate().Dispatch(ctx, userID, "gmail", "send_gmail", map[string]any{"to": "bob@example.com"})
	require.NoError(t, err)
	return res.Action.ID
}

func status(t *testing.T, sc *server.ServerContext, ctx context.Context, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = ToolPendingActionStatus
	req.Params.Arguments = args
	result, err := handlePendingActionStatus(ctx, req, sc)
	require.NoError(t, err)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	c, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return c.Text
}

func TestPendingActionStatus(t *testing.T) {
	sc := newServerContext(t)
	id := createPending(t, sc, "alice@example.com")

	result := status(t, sc, context.Background(), map[string]any{"user_id": "alice@example.com", "action_id": id})
	require.False(t, result.IsError, text(t, result))

	var resp statusResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &resp))
	assert.Equal(t, id, resp.ActionID)
	assert.Equal(t, permission.StatusPending, resp.Status)
	assert.Nil(t, resp.Result)

	_, err := sc.Resolve(context.Background(), id, permission.DecisionApproved)
	require.NoError(t, err)

	ctx := server.WithUserID(context.Background(), "alice@example.com")
	result = status(t, sc, ctx, map[string]any{"action_id": id})
	require.False(t, result.IsError)
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &resp))
	assert.Equal(t, permission.StatusApproved, resp.Status)
	assert.Equal(t, map[string]any{"status": "sent", "id": "m1"}, resp.Result)
}

func TestPendingActionStatus_Errors(t *testing.T) {
	sc := newServerContext(t)
	id := createPending(t, sc, "alice@example.com")

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"other user", map[string]any{"user_id": "mallory@example.com", "action_id": id}, "pending action " + id + " not found"},
		{"unknown id", map[string]any{"user_id": "alice@example.com", "action_id": "pa_missing"}, "pending action pa_missing not found"},
		{"missing id", map[string]any{"user_id": "alice@example.com"}, "action_id is required"},
		{"missing user", map[string]any{"action_id": id}, "user_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := status(t, sc, context.Background(), tt.args)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.want, text(t, result))
		})
	}
}
