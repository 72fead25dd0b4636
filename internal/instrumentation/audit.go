package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ToolInvocation captures one gated tool call for audit logging.
//
// # Privacy Considerations
//
// User holds the caller's user id, which is usually an email address. Only
// LogAuditAttrs includes it verbatim; LogAttrs reduces it to the domain.
type ToolInvocation struct {
	Tool        string
	Integration string
	User        string

	// Gate outcome: executed, deferred, denied, tool_not_found or error
	Decision string
	ActionID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// UserDomain returns the domain portion of the user id for lower-cardinality logging.
func (ti *ToolInvocation) UserDomain() string {
	return ExtractUserDomain(ti.User)
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// WithUser sets the calling user.
func (ti *ToolInvocation) WithUser(user string) *ToolInvocation {
	ti.User = user
	return ti
}

// WithIntegration sets the integration the tool belongs to.
func (ti *ToolInvocation) WithIntegration(integration string) *ToolInvocation {
	ti.Integration = integration
	return ti
}

// WithDecision records what the gate did with the call.
func (ti *ToolInvocation) WithDecision(decision, actionID string) *ToolInvocation {
	ti.Decision = decision
	ti.ActionID = actionID
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// LogAttrs returns slog attributes with the user reduced to its domain.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	return ti.attrs(slog.String("user_domain", ti.UserDomain()))
}

// LogAuditAttrs returns slog attributes including the full user id.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := ti.attrs(slog.String("user", ti.User))
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	return attrs
}

func (ti *ToolInvocation) attrs(user slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		user,
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Integration != "" {
		attrs = append(attrs, slog.String("integration", ti.Integration))
	}
	if ti.Decision != "" {
		attrs = append(attrs, slog.String("decision", ti.Decision))
	}
	if ti.ActionID != "" {
		attrs = append(attrs, slog.String("action_id", ti.ActionID))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// Resolution captures a human decision on a pending action.
type Resolution struct {
	ActionID    string
	User        string
	Integration string
	Tool        string
	Decision    string
	Status      string
	Error       string
}

func (r Resolution) attrs(includePII bool) []slog.Attr {
	user := slog.String("user_domain", ExtractUserDomain(r.User))
	if includePII {
		user = slog.String("user", r.User)
	}
	attrs := []slog.Attr{
		slog.String("action_id", r.ActionID),
		user,
		slog.String("integration", r.Integration),
		slog.String("tool", r.Tool),
		slog.String("decision", r.Decision),
		slog.String("status", r.Status),
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}
	return attrs
}

// AuditLogger writes audit records for gated tool calls and resolutions.
// A nil AuditLogger discards everything.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that omits PII.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:  logger,
		enabled: true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	al := NewAuditLogger(logger)
	al.includePII = config.IncludePII
	al.enabled = config.Enabled
	return al
}

// SetIncludePII sets whether to include full user ids in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogToolInvocation logs a gated tool call.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}

	attrs := ti.LogAttrs()
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	}

	level := slog.LevelInfo
	msg := "tool_executed"
	if !ti.Success {
		level = slog.LevelWarn
		msg = "tool_failed"
	}
	al.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogResolution logs the approval or rejection of a pending action.
func (al *AuditLogger) LogResolution(ctx context.Context, r Resolution) {
	if al == nil || !al.enabled {
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "pending_action_resolved", r.attrs(al.includePII)...)
}
