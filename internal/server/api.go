package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/teemow/inboxgate/internal/logging"
	"github.com/teemow/inboxgate/internal/permission"
)

// API serves the REST management surface for connections, tool states and
// pending actions.
type API struct {
	sc *ServerContext
}

// NewAPI creates the management API over sc.
func NewAPI(sc *ServerContext) *API {
	return &API{sc: sc}
}

// RegisterRoutes registers the management routes on g.
func (a *API) RegisterRoutes(g *echo.Group) {
	g.GET("/users/:user_id/integrations", a.ListIntegrations)
	g.POST("/users/:user_id/integrations/:integration", a.ConnectIntegration)
	g.DELETE("/users/:user_id/integrations/:integration", a.DisconnectIntegration)

	g.GET("/users/:user_id/integrations/:integration/tools", a.ListTools)
	g.GET("/users/:user_id/integrations/:integration/tools/:tool", a.GetTool)
	g.PUT("/users/:user_id/integrations/:integration/tools/:tool", a.SetTool)

	g.GET("/users/:user_id/pending-actions", a.ListPendingActions)
	g.GET("/pending-actions/:action_id", a.GetPendingAction)
	g.POST("/pending-actions/:action_id/approve", a.ApprovePendingAction)
	g.POST("/pending-actions/:action_id/reject", a.RejectPendingAction)
}

// SetToolStateRequest is the body of a tool state update.
type SetToolStateRequest struct {
	State string `json:"state"`
}

type integrationsResponse struct {
	Connections []permission.Connection `json:"connections"`
	Available   []string                `json:"available"`
}

type toolsResponse struct {
	Tools []permission.ToolPermission `json:"tools"`
}

type pendingActionsResponse struct {
	PendingActions []permission.PendingAction `json:"pending_actions"`
}

// ListIntegrations returns the user's connections and every registered integration.
func (a *API) ListIntegrations(c echo.Context) error {
	conns, err := a.sc.Manager().Connections(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, integrationsResponse{
		Connections: conns,
		Available:   a.sc.Registry().Integrations(),
	})
}

// ConnectIntegration connects an integration and seeds its tool states.
func (a *API) ConnectIntegration(c echo.Context) error {
	conn, err := a.sc.Manager().Connect(c.Request().Context(), c.Param("user_id"), c.Param("integration"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, conn)
}

// DisconnectIntegration marks an integration disconnected.
func (a *API) DisconnectIntegration(c echo.Context) error {
	conn, err := a.sc.Manager().Disconnect(c.Request().Context(), c.Param("user_id"), c.Param("integration"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, conn)
}

// ListTools returns the user's tool states for one integration.
func (a *API) ListTools(c echo.Context) error {
	integration := c.Param("integration")
	if len(a.sc.Registry().Tools(integration)) == 0 {
		return errorJSON(c, http.StatusNotFound, "unknown integration: "+integration)
	}
	perms, err := a.sc.Manager().ToolStates(c.Request().Context(), c.Param("user_id"), integration)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, toolsResponse{Tools: perms})
}

// GetTool returns the user's state for one tool.
func (a *API) GetTool(c echo.Context) error {
	perm, err := a.sc.Manager().ToolState(c.Request().Context(),
		c.Param("user_id"), c.Param("integration"), c.Param("tool"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, perm)
}

// SetTool updates the user's state for one tool.
func (a *API) SetTool(c echo.Context) error {
	var req SetToolStateRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	state, err := permission.ParseState(strings.TrimSpace(req.State))
	if err != nil {
		return a.fail(c, err)
	}

	perm, err := a.sc.Manager().SetToolState(c.Request().Context(),
		c.Param("user_id"), c.Param("integration"), c.Param("tool"), state)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, perm)
}

// ListPendingActions lists the user's actions, filtered by the status query
// parameter (pending when absent).
func (a *API) ListPendingActions(c echo.Context) error {
	status, err := permission.ParseStatus(c.QueryParam("status"))
	if err != nil {
		return a.fail(c, err)
	}
	actions, err := a.sc.Ledger().ListPending(c.Request().Context(), c.Param("user_id"), status)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, pendingActionsResponse{PendingActions: actions})
}

// GetPendingAction returns one pending action.
func (a *API) GetPendingAction(c echo.Context) error {
	action, err := a.sc.Ledger().Get(c.Request().Context(), c.Param("action_id"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, action)
}

// ApprovePendingAction approves and executes a pending action. Backend
// failures are reported in the action's result, not as an HTTP error.
func (a *API) ApprovePendingAction(c echo.Context) error {
	return a.resolve(c, permission.DecisionApproved)
}

// RejectPendingAction rejects a pending action without executing it.
func (a *API) RejectPendingAction(c echo.Context) error {
	return a.resolve(c, permission.DecisionRejected)
}

func (a *API) resolve(c echo.Context, decision permission.Decision) error {
	action, err := a.sc.Resolve(c.Request().Context(), c.Param("action_id"), decision)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, action)
}

func (a *API) fail(c echo.Context, err error) error {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		a.sc.Logger().ErrorContext(c.Request().Context(), "management request failed",
			slog.String("path", c.Path()),
			logging.Err(err))
		return errorJSON(c, status, "internal error")
	}
	return errorJSON(c, status, err.Error())
}

// StatusForError maps gate and ledger errors onto HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, permission.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, permission.ErrNotFound), errors.Is(err, permission.ErrToolNotFound):
		return http.StatusNotFound
	case errors.Is(err, permission.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, permission.ErrInvalidState),
		errors.Is(err, permission.ErrInvalidStatus),
		errors.Is(err, permission.ErrInvalidDecision):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
