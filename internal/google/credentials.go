package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxgate/internal/logging"
)

// RefreshRecorder receives token refresh outcomes.
type RefreshRecorder interface {
	RecordOAuthTokenRefresh(ctx context.Context, result string)
}

// CredentialProvider hands out authenticated HTTP clients per user.
// Clients are cached until the user's grant changes.
type CredentialProvider struct {
	conf     *oauth2.Config
	tokens   TokenProvider
	recorder RefreshRecorder
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewCredentialProvider creates a credential provider. recorder may be nil.
func NewCredentialProvider(conf *oauth2.Config, tokens TokenProvider, recorder RefreshRecorder, logger *slog.Logger) *CredentialProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialProvider{
		conf:     conf,
		tokens:   tokens,
		recorder: recorder,
		logger:   logger,
		clients:  make(map[string]*http.Client),
	}
}

// AuthCodeURL returns the consent URL for userID. The user id travels in
// the state parameter; use it only where the code is exchanged out of band.
func (p *CredentialProvider) AuthCodeURL(userID string) string {
	return p.AuthCodeURLWithState(userID)
}

// AuthCodeURLWithState returns the consent URL carrying an opaque state.
func (p *CredentialProvider) AuthCodeURLWithState(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and stores them for userID.
func (p *CredentialProvider) Exchange(ctx context.Context, userID, code string) (*oauth2.Token, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := p.tokens.SaveToken(ctx, userID, tok); err != nil {
		return nil, err
	}

	p.mu.Lock()
	delete(p.clients, userID)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "google account linked", logging.UserHash(userID))
	return tok, nil
}

// HTTPClient returns an authenticated client for userID or an error wrapping
// ErrNoValidCredentials.
func (p *CredentialProvider) HTTPClient(ctx context.Context, userID string) (*http.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[userID]; ok {
		return c, nil
	}

	tok, err := p.tokens.GetToken(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoValidCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoValidCredentials, err)
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token expired and cannot be refreshed", ErrNoValidCredentials)
	}

	// Refreshes outlive the request that created the client.
	base := context.WithoutCancel(ctx)
	src := &persistingTokenSource{
		userID:   userID,
		base:     oauth2.ReuseTokenSource(tok, p.conf.TokenSource(base, tok)),
		last:     tok.AccessToken,
		provider: p,
	}

	// Force HTTP/1.1 by disabling HTTP/2
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: src,
			Base: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
			},
		},
	}
	p.clients[userID] = client
	return client, nil
}

// persistingTokenSource stores every newly minted access token.
type persistingTokenSource struct {
	userID   string
	base     oauth2.TokenSource
	provider *CredentialProvider

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	ctx := context.Background()
	tok, err := s.base.Token()
	if err != nil {
		s.provider.recordRefresh(ctx, "error")
		s.provider.logger.Warn("google token refresh failed",
			logging.UserHash(s.userID), logging.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrNoValidCredentials, err)
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if changed {
		s.provider.recordRefresh(ctx, "success")
		if err := s.provider.tokens.SaveToken(ctx, s.userID, tok); err != nil {
			s.provider.logger.Warn("failed to persist refreshed token",
				logging.UserHash(s.userID), logging.Err(err))
		}
	}
	return tok, nil
}

func (p *CredentialProvider) recordRefresh(ctx context.Context, result string) {
	if p.recorder != nil {
		p.recorder.RecordOAuthTokenRefresh(ctx, result)
	}
}
