package space

import (
	"errors"
	"fmt"
)

// ErrRemoteUnavailable marks transport-level failures: the call never
// produced an API response and may be retried later.
var ErrRemoteUnavailable = errors.New("space api unavailable")

// APIError is a non-2xx response from the Space HTTP API.
type APIError struct {
	Op          string
	Status      int
	ErrorCode   string
	Description string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("space %s: status %d: %s (%s)", e.Op, e.Status, e.ErrorCode, e.Description)
	}
	return fmt.Sprintf("space %s: status %d", e.Op, e.Status)
}

// PlatformCode translates the response into the token lifecycle
// vocabulary. OAuth error codes take precedence over the HTTP status.
func (e *APIError) PlatformCode() string {
	switch e.ErrorCode {
	case "invalid_grant":
		return "invalid_refresh_token"
	case "invalid_client":
		return "invalid_client_id"
	}
	switch e.Status {
	case 401:
		return "token_expired"
	case 403:
		return "no_permission"
	}
	return ""
}

// IsAuthError reports whether the error is a hard credential failure
// for which retrying with the same token is pointless.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == 401 || apiErr.Status == 403 || apiErr.ErrorCode == "invalid_grant"
}
