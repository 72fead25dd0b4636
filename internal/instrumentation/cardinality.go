package instrumentation

import "strings"

// Google API operations used as metric and span labels.
const (
	OperationList   = "list"
	OperationGet    = "get"
	OperationCreate = "create"
	OperationSend   = "send"
	OperationSearch = "search"
)

// unknownDomain labels user ids that are not email addresses.
const unknownDomain = "unknown"

// ExtractUserDomain reduces a user id to the lower-cased domain of its email
// address so metrics and redacted audit lines never carry the full id.
func ExtractUserDomain(userID string) string {
	at := strings.LastIndexByte(userID, '@')
	if at < 0 {
		return unknownDomain
	}
	domain := strings.ToLower(strings.TrimSpace(userID[at+1:]))
	if domain == "" {
		return unknownDomain
	}
	return domain
}
