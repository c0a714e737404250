package tokens

import "errors"

var (
	// ErrNoCredential is returned when no usable credential exists.
	// Callers must not retry; they should start an auth flow instead.
	ErrNoCredential = errors.New("no credential available")

	// ErrTokenExpired is returned when the access token is still
	// rejected after one refresh attempt.
	ErrTokenExpired = errors.New("access token expired after refresh")

	// ErrTokenReset is returned after the credential was dropped
	// because the provider revoked access permanently.
	ErrTokenReset = errors.New("credential reset")

	// ErrInvalidAppCredentials reports an app-level misconfiguration
	// of OAuth client id or secret.
	ErrInvalidAppCredentials = errors.New("invalid app client credentials")
)
