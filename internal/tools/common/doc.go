// Package common holds what the MCP tool packages share: resolving the
// calling user, decoding parameters, and routing calls through the
// permission gate with metrics and audit logging attached.
package common
