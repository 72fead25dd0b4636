package google

import (
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are the scopes requested when a user connects Google.
//
// The scopes provide access to:
//   - Gmail: read and send
//   - Google Calendar: full access
var DefaultOAuthScopes = []string{
	// OpenID Connect scopes (required for user info)
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",

	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,

	calendar.CalendarScope,
}
