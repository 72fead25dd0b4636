package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxgate/internal/instrumentation"
	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/server"
)

// GatedToolHandler returns an MCP handler that routes every call for key
// through the permission gate. The agent sees one of three answers: the
// tool's result, a pending_user_approval notice, or an error result.
func GatedToolHandler(sc *server.ServerContext, toolName string, key permission.ToolKey) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		userID, err := ResolveUserID(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().
				WithIntegration(key.Integration).
				Build()...)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithUser(userID).
			WithIntegration(key.Integration).
			WithSpanContext(ctx)

		res, err := sc.Gate().Dispatch(ctx, userID, key.Integration, key.Tool, WithoutUserID(args))

		var result *mcp.CallToolResult
		switch {
		case err != nil:
			invocation.WithDecision(decisionFor(err), "").CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
			result = mcp.NewToolResultError(err.Error())
		case res.Outcome == permission.OutcomePending:
			invocation.WithDecision("deferred", res.Action.ID).CompleteSuccess()
			result = PendingResult(res.Action.ID)
		default:
			invocation.WithDecision("executed", "").CompleteSuccess()
			result, err = JSONResult(res.Result)
			if err != nil {
				invocation.CompleteWithError(err)
				result = mcp.NewToolResultError(err.Error())
			}
		}

		sc.Metrics().RecordToolInvocationWithUser(ctx, toolName, invocation.Status(), userID, time.Since(start))
		sc.AuditLogger().LogToolInvocation(invocation)
		return result, nil
	}
}

func decisionFor(err error) string {
	var be *permission.BackendError
	switch {
	case errors.Is(err, permission.ErrNotAuthorized):
		return "denied"
	case errors.Is(err, permission.ErrToolNotFound):
		return "tool_not_found"
	case errors.As(err, &be):
		return "executed"
	default:
		return "error"
	}
}

// InstrumentedToolHandler wraps an ungated tool handler with metrics and
// audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).WithSpanContext(ctx)
		if userID, err := ResolveUserID(ctx, request.GetArguments()); err == nil {
			invocation.WithUser(userID)
		}

		result, err := handler(ctx, request)

		switch {
		case err != nil:
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			invocation.Complete(false, nil)
		default:
			invocation.CompleteSuccess()
		}

		sc.Metrics().RecordToolInvocationWithUser(ctx, toolName, invocation.Status(), invocation.User, time.Since(start))
		sc.AuditLogger().LogToolInvocation(invocation)
		return result, err
	}
}

// TrackGoogleAPI runs fn inside a Google API span and records the
// operation's outcome and latency.
func TrackGoogleAPI(ctx context.Context, metrics *instrumentation.Metrics, service, operation string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, service, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	metrics.RecordGoogleAPIOperation(ctx, service, operation, status, time.Since(start))
	return err
}
