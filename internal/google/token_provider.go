package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-oauth/storage"
	"golang.org/x/oauth2"
)

// ErrNoValidCredentials is returned when a user has no usable Google token.
var ErrNoValidCredentials = errors.New("no valid Google credentials")

// TokenProvider returns and stores Google OAuth tokens per user.
type TokenProvider interface {
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userID string, token *oauth2.Token) error
}

// TokenPersister is the durable token store.
// GetGoogleToken returns nil, nil when the user has no token.
type TokenPersister interface {
	GetGoogleToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveGoogleToken(ctx context.Context, userID string, token *oauth2.Token) error
}

// CachedTokenProvider reads tokens through an in-memory mcp-oauth store
// and falls back to the persister on a miss.
type CachedTokenProvider struct {
	cache   storage.TokenStore
	persist TokenPersister
}

// NewCachedTokenProvider creates a token provider over cache and persist.
func NewCachedTokenProvider(cache storage.TokenStore, persist TokenPersister) *CachedTokenProvider {
	return &CachedTokenProvider{
		cache:   cache,
		persist: persist,
	}
}

// GetToken returns the user's token or ErrNoValidCredentials.
func (p *CachedTokenProvider) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	if tok, err := p.cache.GetToken(ctx, userID); err == nil && tok != nil {
		return tok, nil
	}

	tok, err := p.persist.GetGoogleToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if tok == nil {
		return nil, fmt.Errorf("%w for user", ErrNoValidCredentials)
	}

	// The cache is best effort; the persisted token is authoritative.
	_ = p.cache.SaveToken(ctx, userID, tok)
	return tok, nil
}

// SaveToken persists the token and refreshes the cache.
func (p *CachedTokenProvider) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("token is required")
	}
	if err := p.persist.SaveGoogleToken(ctx, userID, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	// Reload so the cache sees a refresh token kept from an earlier grant.
	stored, err := p.persist.GetGoogleToken(ctx, userID)
	if err != nil || stored == nil {
		stored = token
	}
	if err := p.cache.SaveToken(ctx, userID, stored); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}
