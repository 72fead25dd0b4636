// Package ledger_tools lets an agent observe the pending actions its gated
// calls created. It cannot approve or reject them; that stays with the user.
package ledger_tools
