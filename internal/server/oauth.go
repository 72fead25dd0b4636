package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/teemow/inboxgate/internal/logging"
)

const (
	// OAuthCallbackPath must match the redirect URL registered with Google.
	OAuthCallbackPath = "/oauth/callback"

	linkStateTTL    = 10 * time.Minute
	linkStateLength = 32
)

type linkState struct {
	userID    string
	expiresAt time.Time
}

// linkFlows tracks consent flows in progress. A state can be redeemed once.
type linkFlows struct {
	mu     sync.Mutex
	states map[string]linkState
	ttl    time.Duration
	now    func() time.Time
}

func newLinkFlows(ttl time.Duration) *linkFlows {
	return &linkFlows{
		states: make(map[string]linkState),
		ttl:    ttl,
		now:    time.Now,
	}
}

// start issues a state token bound to userID.
func (f *linkFlows) start(userID string) (string, error) {
	b := make([]byte, linkStateLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for s, ls := range f.states {
		if now.After(ls.expiresAt) {
			delete(f.states, s)
		}
	}
	f.states[state] = linkState{userID: userID, expiresAt: now.Add(f.ttl)}
	return state, nil
}

// redeem consumes state and returns the user it was issued for.
func (f *linkFlows) redeem(state string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls, ok := f.states[state]
	if !ok {
		return "", false
	}
	delete(f.states, state)
	if f.now().After(ls.expiresAt) {
		return "", false
	}
	return ls.userID, true
}

// GoogleLink runs the browser consent flow that links a user's Google
// account. The authorize endpoint belongs behind the management token; the
// callback is public and trusts only states the authorize endpoint issued.
type GoogleLink struct {
	sc    *ServerContext
	flows *linkFlows
}

// NewGoogleLink creates the consent flow handlers.
func NewGoogleLink(sc *ServerContext) *GoogleLink {
	return &GoogleLink{sc: sc, flows: newLinkFlows(linkStateTTL)}
}

type authorizeResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authorize returns the Google consent URL for the user in the path.
func (l *GoogleLink) Authorize(c echo.Context) error {
	creds := l.sc.Credentials()
	if creds == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Google OAuth is not configured")
	}
	state, err := l.flows.start(c.Param("user_id"))
	if err != nil {
		l.sc.Logger().ErrorContext(c.Request().Context(), "failed to create oauth state", logging.Err(err))
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, authorizeResponse{
		URL:       creds.AuthCodeURLWithState(state),
		ExpiresAt: time.Now().Add(l.flows.ttl).UTC(),
	})
}

// Callback receives Google's redirect, exchanges the code and stores the
// token for the user the state was issued to.
func (l *GoogleLink) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	creds := l.sc.Credentials()
	if creds == nil {
		return c.String(http.StatusServiceUnavailable, "Google OAuth is not configured")
	}

	if errParam := c.QueryParam("error"); errParam != "" {
		l.sc.Logger().WarnContext(ctx, "google consent failed", "error", errParam)
		return c.String(http.StatusBadRequest, "Google OAuth error: "+errParam)
	}

	userID, ok := l.flows.redeem(c.QueryParam("state"))
	if !ok {
		return c.String(http.StatusBadRequest, "Invalid or expired state")
	}
	code := c.QueryParam("code")
	if code == "" {
		return c.String(http.StatusBadRequest, "Missing authorization code")
	}

	if _, err := creds.Exchange(ctx, userID, code); err != nil {
		l.sc.Logger().ErrorContext(ctx, "failed to exchange authorization code",
			logging.UserHash(userID),
			logging.Err(err))
		return c.String(http.StatusBadGateway, "Failed to exchange authorization code")
	}
	return c.String(http.StatusOK, "Google account linked. You can close this window.")
}
