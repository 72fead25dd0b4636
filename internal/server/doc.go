// Package server wires the permission gate, pending action ledger and
// Google credentials into the surfaces inboxgate exposes.
//
// ServerContext owns the shared services. MCP tool handlers reach the gate
// through it, and FilterTools hides gated tools a user has disabled.
//
// HTTPServer serves three things on one listener:
//   - /mcp: the streamable-http MCP endpoint, with the caller identified by
//     the X-User-ID header
//   - /v1: the REST management API for connections, tool states and
//     pending action approval
//   - /healthz, /readyz, /healthz/detailed: Kubernetes probes
//
// MetricsServer exposes Prometheus metrics on a separate port.
package server
