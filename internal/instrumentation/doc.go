// Package instrumentation wires OpenTelemetry metrics, tracing and audit
// logging for inboxgate.
//
// # Metrics
//
// Access gate and ledger:
//   - gate_decisions_total: gate decisions by integration, tool and decision
//   - pending_actions_created_total, pending_actions_resolved_total,
//     pending_actions_expired_total: pending action lifecycle
//   - backend_invocations_total, backend_invocation_duration_seconds:
//     capability backend calls by integration, tool and status
//
// Server/HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Google API and OAuth:
//   - google_api_operations_total, google_api_operation_duration_seconds
//   - oauth_auth_total, oauth_token_refresh_total
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for gate dispatch (gate.dispatch), pending action
// resolution (ledger.resolve), MCP tool invocations (tool.<name>) and Google
// API calls (google.<service>.<operation>).
//
// # Configuration
//
// LoadConfig reads the environment:
//   - INSTRUMENTATION_ENABLED (default true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default 0.1)
//   - OTEL_SERVICE_NAME (default inboxgate)
//   - METRICS_DETAILED_LABELS, AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// The prometheus exporter writes to a registry owned by the Provider;
// Provider.MetricsHandler serves it.
//
// # Example Usage
//
//	cfg, err := instrumentation.LoadConfig()
//	if err != nil {
//		return err
//	}
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	gate := permission.NewGate(store, ledger, registry,
//		permission.WithRecorder(provider.Metrics()))
package instrumentation
