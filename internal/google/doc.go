// Package google provides OAuth2 configuration and per-user credentials for
// Google APIs.
//
// Tokens are persisted in the database and cached in-process through an
// mcp-oauth TokenStore. CredentialProvider turns a user id into an
// authenticated *http.Client whose refreshed tokens are written back.
package google
