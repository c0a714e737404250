// Package tokens executes remote calls authenticated with short-lived
// access tokens, refreshing transparently on expiry and classifying
// terminal failures.
package tokens

import (
	"context"
	"errors"
	"fmt"
)

// Credential is a decrypted token pair held in memory for the duration
// of one task.
type Credential struct {
	AccessToken      string
	RefreshToken     string
	PermissionScopes string
}

// RefreshResult carries the provider's answer to a refresh call. An
// empty RefreshToken means the provider did not rotate it; empty
// PermissionScopes keep the previous ones.
type RefreshResult struct {
	AccessToken      string
	RefreshToken     string
	PermissionScopes string
}

// Strategy supplies the storage and provider operations the manager
// needs. All callbacks are required.
type Strategy struct {
	// Load re-reads the credential from storage. Returns nil when no
	// usable credential exists.
	Load func(ctx context.Context) (*Credential, error)

	// Persist saves a refreshed token pair before it is used.
	Persist func(ctx context.Context, cred *Credential) error

	// Refresh exchanges the refresh token for a new pair.
	Refresh func(ctx context.Context, refreshToken string) (*RefreshResult, error)

	// OnInvalidRefreshToken removes or disables the credential after
	// the provider rejected the refresh token for good.
	OnInvalidRefreshToken func(ctx context.Context) error

	// OnInvalidAppCredentials signals an app-wide misconfiguration of
	// client id or secret. Per-user records must stay untouched.
	OnInvalidAppCredentials func(ctx context.Context) error

	// Reset removes the credential after the provider revoked access
	// permanently.
	Reset func(ctx context.Context) error
}

// PlatformError is implemented by client errors that carry a provider
// error code such as "token_expired" or "invalid_refresh_token".
type PlatformError interface {
	error
	PlatformCode() string
}

// CodeError is the standard PlatformError implementation.
type CodeError struct {
	Op   string
	Code string
}

func (e *CodeError) Error() string {
	if e.Op == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *CodeError) PlatformCode() string {
	return e.Code
}

// Code extracts the provider error code from err, or "" when err does
// not originate from the provider.
func Code(err error) string {
	var pe PlatformError
	if errors.As(err, &pe) {
		return pe.PlatformCode()
	}
	return ""
}

// softExpiryCodes ask for a refresh and a single retry.
var softExpiryCodes = map[string]bool{
	"token_expired":    true,
	"invalid_auth":     true,
	"cannot_auth_user": true,
}

// resetCodes mean access is gone for good and the stored credential
// must be dropped.
var resetCodes = map[string]bool{
	"invalid_auth":           true,
	"account_inactive":       true,
	"no_permission":          true,
	"missing_scope":          true,
	"not_allowed_token_type": true,
	"cannot_find_service":    true,
}

func isSoftExpiry(code string) bool {
	return softExpiryCodes[code]
}

func shouldResetToken(code string) bool {
	return resetCodes[code]
}
