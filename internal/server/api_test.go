package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxgate/internal/logging"
	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/store"
)

type testEnv struct {
	sc      *ServerContext
	store   *store.SQLiteStore
	handler http.Handler
	sent    int
}

func newTestEnv(t *testing.T, cfg HTTPConfig) *testEnv {
	t.Helper()

	env := &testEnv{}
	reg := permission.NewRegistry()
	require.NoError(t, reg.Register("gmail", "send_gmail", func(_ context.Context, call permission.Call) (any, error) {
		env.sent++
		return map[string]any{"status": "sent", "to": call.Params["to"]}, nil
	}))
	require.NoError(t, reg.Register("gmail", "search_gmail", func(context.Context, permission.Call) (any, error) {
		return map[string]any{"results": []any{}}, nil
	}))
	require.NoError(t, reg.Register("calendar", "create_event", func(context.Context, permission.Call) (any, error) {
		return nil, errors.New("calendar unavailable")
	}))

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sc, err := NewServerContext(context.Background(), Options{
		Store:       st,
		Registry:    reg,
		ToolTimeout: time.Second,
		ApprovalTTL: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	env.sc = sc
	env.store = st
	env.handler = NewHTTPServer(nil, sc, cfg).Handler()
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func (env *testEnv) pending(t *testing.T, userID, integration, tool string, params map[string]any) string {
	t.Helper()
	ctx := context.Background()
	_, err := env.sc.Manager().SetToolState(ctx, userID, integration, tool, permission.StateVerify)
	require.NoError(t, err)
	res, err := env.sc.Gate().Dispatch(ctx, userID, integration, tool, params)
	require.NoError(t, err)
	require.Equal(t, permission.OutcomePending, res.Outcome)
	return res.Action.ID
}

func TestAPI_ConnectAndListTools(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})

	rec, resp := env.do(t, http.MethodPost, "/v1/users/u1/integrations/gmail", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "connected", resp["status"])
	assert.Equal(t, "gmail", resp["integration_name"])

	rec, resp = env.do(t, http.MethodGet, "/v1/users/u1/integrations/gmail/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tools, ok := resp["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 2)
	for _, tool := range tools {
		assert.Equal(t, "disabled", tool.(map[string]any)["state"])
	}

	rec, resp = env.do(t, http.MethodGet, "/v1/users/u1/integrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["connections"], 1)
	assert.ElementsMatch(t, []any{"calendar", "gmail"}, resp["available"])
}

func TestAPI_IntegrationErrors(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"connect unknown integration", http.MethodPost, "/v1/users/u1/integrations/slack", http.StatusNotFound},
		{"disconnect never connected", http.MethodDelete, "/v1/users/u1/integrations/gmail", http.StatusNotFound},
		{"tools of unknown integration", http.MethodGet, "/v1/users/u1/integrations/slack/tools", http.StatusNotFound},
		{"unseeded tool", http.MethodGet, "/v1/users/u1/integrations/gmail/tools/send_gmail", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestAPI_Disconnect(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})

	rec, _ := env.do(t, http.MethodPost, "/v1/users/u1/integrations/gmail", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := env.do(t, http.MethodDelete, "/v1/users/u1/integrations/gmail", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disconnected", resp["status"])
}

func TestAPI_SetTool(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})

	tests := []struct {
		name  string
		path  string
		body  any
		want  int
		state string
	}{
		{"verify", "/v1/users/u1/integrations/gmail/tools/send_gmail", SetToolStateRequest{State: "verify"}, http.StatusOK, "verify"},
		{"enabled", "/v1/users/u1/integrations/gmail/tools/send_gmail", SetToolStateRequest{State: "enabled"}, http.StatusOK, "enabled"},
		{"invalid state", "/v1/users/u1/integrations/gmail/tools/send_gmail", SetToolStateRequest{State: "sometimes"}, http.StatusBadRequest, ""},
		{"empty state", "/v1/users/u1/integrations/gmail/tools/send_gmail", SetToolStateRequest{}, http.StatusBadRequest, ""},
		{"unknown tool", "/v1/users/u1/integrations/gmail/tools/archive", SetToolStateRequest{State: "enabled"}, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPut, tt.path, tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.state != "" {
				assert.Equal(t, tt.state, resp["state"])
			}
		})
	}

	rec, resp := env.do(t, http.MethodGet, "/v1/users/u1/integrations/gmail/tools/send_gmail", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "enabled", resp["state"])
}

func TestAPI_ApprovePendingAction(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})
	id := env.pending(t, "u1", "gmail", "send_gmail", map[string]any{"to": "a@example.com"})
	assert.Equal(t, 0, env.sent)

	rec, resp := env.do(t, http.MethodGet, "/v1/users/u1/pending-actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	actions := resp["pending_actions"].([]any)
	require.Len(t, actions, 1)
	assert.Equal(t, id, actions[0].(map[string]any)["id"])

	rec, resp = env.do(t, http.MethodPost, "/v1/pending-actions/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", resp["status"])
	assert.Equal(t, map[string]any{"status": "sent", "to": "a@example.com"}, resp["result"])
	assert.Equal(t, 1, env.sent)

	rec, _ = env.do(t, http.MethodPost, "/v1/pending-actions/"+id+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = env.do(t, http.MethodPost, "/v1/pending-actions/"+id+"/reject", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, env.sent)

	rec, resp = env.do(t, http.MethodGet, "/v1/users/u1/pending-actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp["pending_actions"])

	rec, resp = env.do(t, http.MethodGet, "/v1/users/u1/pending-actions?status=approved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["pending_actions"], 1)
}

func TestAPI_RejectPendingAction(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})
	id := env.pending(t, "u1", "gmail", "send_gmail", map[string]any{"to": "a@example.com"})

	rec, resp := env.do(t, http.MethodPost, "/v1/pending-actions/"+id+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", resp["status"])
	assert.Nil(t, resp["result"])
	assert.Equal(t, 0, env.sent)

	rec, resp = env.do(t, http.MethodGet, "/v1/pending-actions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", resp["status"])
}

func TestAPI_ApproveBackendFailure(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})
	id := env.pending(t, "u1", "calendar", "create_event", map[string]any{"title": "standup"})

	rec, resp := env.do(t, http.MethodPost, "/v1/pending-actions/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", resp["status"])
	assert.Equal(t, map[string]any{"error": "calendar unavailable"}, resp["result"])
}

func TestAPI_PendingErrors(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})

	rec, _ := env.do(t, http.MethodGet, "/v1/pending-actions/pa_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/v1/pending-actions/pa_missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/v1/users/u1/pending-actions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ListPendingActions_Direct(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{})
	first := env.pending(t, "u1", "gmail", "send_gmail", nil)
	second := env.pending(t, "u1", "gmail", "send_gmail", nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/pending-actions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/users/:user_id/pending-actions")
	c.SetParamNames("user_id")
	c.SetParamValues("u1")

	require.NoError(t, NewAPI(env.sc).ListPendingActions(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pendingActionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.PendingActions, 2)
	assert.Equal(t, first, resp.PendingActions[0].ID)
	assert.Equal(t, second, resp.PendingActions[1].ID)
}

func TestAPI_BearerToken(t *testing.T) {
	env := newTestEnv(t, HTTPConfig{APIToken: "s3cret"})

	rec, _ := env.do(t, http.MethodGet, "/v1/users/u1/integrations", nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/v1/users/u1/integrations", nil,
		echo.HeaderAuthorization, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/v1/users/u1/integrations", nil,
		echo.HeaderAuthorization, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_InternalErrorLogged(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	var logs bytes.Buffer
	sc, err := NewServerContext(context.Background(), Options{
		Store:    st,
		Registry: permission.NewRegistry(),
		Logger:   slog.New(slog.NewJSONHandler(&logs, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	require.NoError(t, st.Close())

	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/integrations", nil)
	rec := httptest.NewRecorder()
	NewHTTPServer(nil, sc, HTTPConfig{}).Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "closed")

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		if e["msg"] == "management request failed" {
			entry = e
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, "/v1/users/:user_id/integrations", entry["path"])
	assert.Contains(t, entry[logging.KeyError], "closed")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", permission.ErrNotAuthorized), http.StatusForbidden},
		{fmt.Errorf("wrap: %w", permission.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", permission.ErrToolNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", permission.ErrAlreadyResolved), http.StatusConflict},
		{fmt.Errorf("wrap: %w", permission.ErrInvalidState), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", permission.ErrInvalidStatus), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", permission.ErrInvalidDecision), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}
