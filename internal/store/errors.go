package store

import "errors"

var (
	// ErrNotFound wraps GORM's not found error for consistency
	ErrNotFound = errors.New("record not found")

	// ErrMissingRefreshToken is returned when a credential is created
	// without a refresh token. Updates may omit it, inserts may not.
	ErrMissingRefreshToken = errors.New("refresh token is missing for newly created credential")
)
