// Package gmail provides the Gmail capability backend: searching messages,
// fetching the most recent inbox message and sending mail, optionally as a
// reply within an existing thread.
//
// A Client is bound to one user's authenticated *http.Client obtained from
// the google package's CredentialProvider.
package gmail
