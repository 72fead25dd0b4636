package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// GetGoogleToken returns the stored Google token for userID, or nil when none exists.
func (s *SQLiteStore) GetGoogleToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var tok oauth2.Token
	var refresh, tokenType sql.NullString
	var expiry sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, expiry FROM google_tokens WHERE user_id = ?`,
		userID).Scan(&tok.AccessToken, &refresh, &tokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok.RefreshToken = refresh.String
	tok.TokenType = tokenType.String
	if expiry.Valid {
		tok.Expiry = fromMillis(expiry.Int64)
	}
	return &tok, nil
}

// SaveGoogleToken stores tok for userID, creating the user if needed. A token
// without a refresh token keeps the previously stored one, since Google only
// returns it on the first consent.
func (s *SQLiteStore) SaveGoogleToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	if err := s.EnsureUser(ctx, userID, ""); err != nil {
		return err
	}
	var expiry sql.NullInt64
	if !tok.Expiry.IsZero() {
		expiry = sql.NullInt64{Int64: toMillis(tok.Expiry), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO google_tokens (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = COALESCE(excluded.refresh_token, google_tokens.refresh_token),
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at`,
		userID, tok.AccessToken, nullString(tok.RefreshToken), nullString(tok.TokenType), expiry, toMillis(time.Now()))
	return err
}

// DeleteGoogleToken removes the stored token for userID.
func (s *SQLiteStore) DeleteGoogleToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM google_tokens WHERE user_id = ?`, userID)
	return err
}
