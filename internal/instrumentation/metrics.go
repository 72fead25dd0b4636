package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod      = "method"
	attrPath        = "path"
	attrStatus      = "status"
	attrOperation   = "operation"
	attrService     = "service"
	attrResult      = "result"
	attrTool        = "tool"
	attrIntegration = "integration"
	attrDecision    = "decision"
	attrOutcome     = "outcome"
	attrUserDomain  = "user_domain"
)

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// Metrics records gate, ledger, backend, tool, HTTP and OAuth measurements.
// A zero Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Gate and ledger metrics
	gateDecisionsTotal     metric.Int64Counter
	pendingCreatedTotal    metric.Int64Counter
	pendingResolvedTotal   metric.Int64Counter
	pendingExpiredTotal    metric.Int64Counter
	backendInvocationTotal metric.Int64Counter
	backendDuration        metric.Float64Histogram

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels adds the user's email domain to tool metrics.
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.gateDecisionsTotal, "gate_decisions_total", "Total number of access gate decisions", "{decision}"},
		{&m.pendingCreatedTotal, "pending_actions_created_total", "Total number of pending actions created", "{action}"},
		{&m.pendingResolvedTotal, "pending_actions_resolved_total", "Total number of pending actions resolved", "{action}"},
		{&m.pendingExpiredTotal, "pending_actions_expired_total", "Total number of pending actions expired", "{action}"},
		{&m.backendInvocationTotal, "backend_invocations_total", "Total number of capability backend invocations", "{invocation}"},
		{&m.googleAPIOperationsTotal, "google_api_operations_total", "Total number of Google API operations", "{operation}"},
		{&m.oauthAuthTotal, "oauth_auth_total", "Total number of OAuth authorization code exchanges", "{attempt}"},
		{&m.oauthTokenRefreshTotal, "oauth_token_refresh_total", "Total number of OAuth token refresh attempts", "{attempt}"},
		{&m.toolInvocationsTotal, "mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.backendDuration, err = meter.Float64Histogram(
		"backend_invocation_duration_seconds",
		metric.WithDescription("Capability backend invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend_invocation_duration_seconds histogram: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGateDecision records what the access gate did with a call.
// Decision is one of "executed", "deferred", "denied" or "no_record".
func (m *Metrics) RecordGateDecision(ctx context.Context, integration, tool, decision string) {
	if m == nil || m.gateDecisionsTotal == nil {
		return
	}
	m.gateDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrIntegration, integration),
		attribute.String(attrTool, tool),
		attribute.String(attrDecision, decision),
	))
}

// RecordPendingCreated records a deferred call entering the ledger.
func (m *Metrics) RecordPendingCreated(ctx context.Context, integration, tool string) {
	if m == nil || m.pendingCreatedTotal == nil {
		return
	}
	m.pendingCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrIntegration, integration),
		attribute.String(attrTool, tool),
	))
}

// RecordPendingResolved records a human decision and what approval produced.
func (m *Metrics) RecordPendingResolved(ctx context.Context, decision, outcome string) {
	if m == nil || m.pendingResolvedTotal == nil {
		return
	}
	m.pendingResolvedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrDecision, decision),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordPendingExpired records count actions moved to expired by the sweeper.
func (m *Metrics) RecordPendingExpired(ctx context.Context, count int64) {
	if m == nil || m.pendingExpiredTotal == nil || count <= 0 {
		return
	}
	m.pendingExpiredTotal.Add(ctx, count)
}

// RecordBackendInvocation records one capability backend call.
func (m *Metrics) RecordBackendInvocation(ctx context.Context, integration, tool, status string, duration time.Duration) {
	if m == nil || m.backendInvocationTotal == nil || m.backendDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrIntegration, integration),
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.backendInvocationTotal.Add(ctx, 1, attrs)
	m.backendDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records a Google API operation.
//
// Parameters:
//   - service: Google service name (gmail, calendar)
//   - operation: Operation type (list, search, send, create)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthAuth records an authorization code exchange.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithUser(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithUser is RecordToolInvocation with the calling user.
// The user's email domain is only attached when detailed labels are enabled.
func (m *Metrics) RecordToolInvocationWithUser(ctx context.Context, toolName, status, user string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && user != "" {
		attrs = append(attrs, attribute.String(attrUserDomain, ExtractUserDomain(user)))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
