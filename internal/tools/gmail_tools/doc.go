// Package gmail_tools exposes Gmail as the "gmail" integration.
//
// Tools:
//   - search_gmail: search messages with a Gmail query
//   - get_last_email: the most recent message in the inbox
//   - send_gmail: send a message, optionally as a reply in a thread
//
// RegisterBackends puts the callables in the permission registry; every call
// receives the owning user and builds a Gmail client from that user's
// credentials. RegisterGmailTools exposes the same tools over MCP, where each
// call goes through the permission gate first.
//
// Example calls:
//
//	search_gmail(user_id: "alice@example.com", query: "from:bob is:unread", max_results: 5)
//	send_gmail(user_id: "alice@example.com", to: "bob@example.com", subject: "Hi", body: "...")
//	send_gmail(user_id: "alice@example.com", thread_id: "18c2...", to: "bob@example.com", body: "Thanks!")
package gmail_tools
