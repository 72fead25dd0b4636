// Package permission implements the per-user permission gate that sits in
// front of every outbound tool call.
//
// Each (user, integration, tool) triple has one of three states:
//
//   - enabled: the call runs immediately
//   - verify: the call is recorded as a pending action and runs only after a
//     human approves it through the Ledger
//   - disabled: the call is refused with ErrNotAuthorized
//
// A triple with no record is treated like disabled. Tools are resolved
// through a Registry keyed by the fully qualified (integration, tool) pair.
//
// Pending actions move from pending to exactly one of approved, rejected or
// expired. The transition is a compare-and-swap in the store, so concurrent
// approvals execute the underlying tool at most once. Backend failures during
// approval are stored on the action as {"error": ...} rather than returned.
package permission
