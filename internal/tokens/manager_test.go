package tokens

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// strategyRecorder counts callback invocations and lets tests script
// the refresh behavior.
type strategyRecorder struct {
	refreshCalls    int
	persistCalls    int
	loadCalls       int
	invalidRefresh  int
	invalidAppCreds int
	resets          int

	refreshResult *RefreshResult
	refreshErr    error
	loaded        *Credential
	persisted     []*Credential
	persistErr    error
}

func (r *strategyRecorder) strategy() Strategy {
	return Strategy{
		Load: func(ctx context.Context) (*Credential, error) {
			r.loadCalls++
			return r.loaded, nil
		},
		Persist: func(ctx context.Context, cred *Credential) error {
			r.persistCalls++
			if r.persistErr != nil {
				return r.persistErr
			}
			r.persisted = append(r.persisted, cred)
			return nil
		},
		Refresh: func(ctx context.Context, refreshToken string) (*RefreshResult, error) {
			r.refreshCalls++
			if r.refreshErr != nil {
				return nil, r.refreshErr
			}
			return r.refreshResult, nil
		},
		OnInvalidRefreshToken: func(ctx context.Context) error {
			r.invalidRefresh++
			return nil
		},
		OnInvalidAppCredentials: func(ctx context.Context) error {
			r.invalidAppCreds++
			return nil
		},
		Reset: func(ctx context.Context) error {
			r.resets++
			return nil
		},
	}
}

func testCredential() *Credential {
	return &Credential{
		AccessToken:      "access-old",
		RefreshToken:     "refresh-old",
		PermissionScopes: "links:read",
	}
}

func TestExecuteNoCredential(t *testing.T) {
	rec := &strategyRecorder{}
	m := New(nil, rec.strategy())

	called := false
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrNoCredential)
	assert.False(t, called, "call must not run without a credential")
	assert.Zero(t, rec.refreshCalls)
}

func TestExecuteSuccessFirstTry(t *testing.T) {
	rec := &strategyRecorder{}
	m := New(testCredential(), rec.strategy())

	var seen string
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		seen = accessToken
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "access-old", seen)
	assert.Zero(t, rec.refreshCalls)
}

func TestExecuteRefreshesOnceOnSoftExpiry(t *testing.T) {
	rec := &strategyRecorder{
		refreshResult: &RefreshResult{AccessToken: "access-new"},
	}
	m := New(testCredential(), rec.strategy())

	var calls []string
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		calls = append(calls, accessToken)
		if accessToken == "access-old" {
			return &CodeError{Op: "chat.unfurl", Code: "token_expired"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"access-old", "access-new"}, calls)
	assert.Equal(t, 1, rec.refreshCalls)

	// the pair must be persisted before the retried call ran
	require.Len(t, rec.persisted, 1)
	assert.Equal(t, "access-new", rec.persisted[0].AccessToken)
	// no rotation, the old refresh token survives
	assert.Equal(t, "refresh-old", rec.persisted[0].RefreshToken)
	assert.Equal(t, "links:read", rec.persisted[0].PermissionScopes)
}

func TestExecuteSecondSoftExpiryIsFinal(t *testing.T) {
	rec := &strategyRecorder{
		refreshResult: &RefreshResult{AccessToken: "access-new"},
	}
	m := New(testCredential(), rec.strategy())

	callCount := 0
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		callCount++
		return &CodeError{Code: "token_expired"}
	})

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, 2, callCount, "exactly one retry after refresh")
	assert.Equal(t, 1, rec.refreshCalls, "exactly one refresh per invocation")
}

func TestExecuteInvalidAuthAfterRefreshResets(t *testing.T) {
	rec := &strategyRecorder{
		refreshResult: &RefreshResult{AccessToken: "access-new"},
	}
	m := New(testCredential(), rec.strategy())

	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		return &CodeError{Code: "invalid_auth"}
	})

	assert.ErrorIs(t, err, ErrTokenReset)
	assert.Equal(t, 1, rec.refreshCalls)
	assert.Equal(t, 1, rec.resets)
	assert.Nil(t, m.Credential())
}

func TestExecuteResetCodeDropsCredential(t *testing.T) {
	for _, code := range []string{"account_inactive", "no_permission", "missing_scope", "not_allowed_token_type", "cannot_find_service"} {
		t.Run(code, func(t *testing.T) {
			rec := &strategyRecorder{}
			m := New(testCredential(), rec.strategy())

			err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
				return &CodeError{Code: code}
			})

			assert.ErrorIs(t, err, ErrTokenReset)
			assert.Equal(t, 1, rec.resets)
			assert.Zero(t, rec.refreshCalls, "reset codes must not trigger a refresh")
			assert.Nil(t, m.Credential())
		})
	}
}

func TestExecuteUnknownErrorPassesThrough(t *testing.T) {
	rec := &strategyRecorder{}
	m := New(testCredential(), rec.strategy())

	platformErr := &CodeError{Op: "conversations.history", Code: "channel_not_found"}
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		return platformErr
	})

	assert.Equal(t, platformErr, err)
	assert.Zero(t, rec.refreshCalls)
	assert.Zero(t, rec.resets)
	assert.NotNil(t, m.Credential(), "credential stays for unrelated errors")
}

func TestExecuteNonPlatformErrorPassesThrough(t *testing.T) {
	rec := &strategyRecorder{}
	m := New(testCredential(), rec.strategy())

	netErr := errors.New("connection refused")
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		return netErr
	})

	assert.ErrorIs(t, err, netErr)
	assert.Zero(t, rec.refreshCalls)
}

func TestRefreshRotatesTokenPair(t *testing.T) {
	rec := &strategyRecorder{
		refreshResult: &RefreshResult{
			AccessToken:      "access-new",
			RefreshToken:     "refresh-new",
			PermissionScopes: "links:read links:write",
		},
	}
	m := New(testCredential(), rec.strategy())

	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		if accessToken == "access-old" {
			return &CodeError{Code: "invalid_auth"}
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, rec.persisted, 1)
	assert.Equal(t, "refresh-new", rec.persisted[0].RefreshToken)
	assert.Equal(t, "links:read links:write", rec.persisted[0].PermissionScopes)
}

func TestInvalidRefreshTokenConcurrentRotation(t *testing.T) {
	// another instance already refreshed: storage holds a different
	// pair, which must be picked up instead of a terminal callback
	rec := &strategyRecorder{
		refreshErr: &CodeError{Code: "invalid_refresh_token"},
		loaded: &Credential{
			AccessToken:  "access-concurrent",
			RefreshToken: "refresh-concurrent",
		},
	}
	m := New(testCredential(), rec.strategy())

	var calls []string
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		calls = append(calls, accessToken)
		if accessToken == "access-old" {
			return &CodeError{Code: "token_expired"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"access-old", "access-concurrent"}, calls)
	assert.Equal(t, 1, rec.loadCalls)
	assert.Zero(t, rec.invalidRefresh)
}

func TestInvalidRefreshTokenTerminal(t *testing.T) {
	// storage holds the same refresh token that was just rejected, so
	// the credential is gone for good
	rec := &strategyRecorder{
		refreshErr: &CodeError{Code: "invalid_refresh_token"},
		loaded:     testCredential(),
	}
	m := New(testCredential(), rec.strategy())

	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		return &CodeError{Code: "token_expired"}
	})

	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, 1, rec.invalidRefresh)
	assert.Nil(t, m.Credential())
}

func TestInvalidRefreshTokenCredentialDeleted(t *testing.T) {
	rec := &strategyRecorder{
		refreshErr: &CodeError{Code: "invalid_refresh_token"},
		loaded:     nil,
	}
	m := New(testCredential(), rec.strategy())

	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		return &CodeError{Code: "token_expired"}
	})

	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, 1, rec.invalidRefresh)
}

func TestInvalidAppCredentials(t *testing.T) {
	for _, code := range []string{"invalid_client_id", "bad_client_secret"} {
		t.Run(code, func(t *testing.T) {
			rec := &strategyRecorder{
				refreshErr: &CodeError{Code: code},
			}
			m := New(testCredential(), rec.strategy())

			err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
				return &CodeError{Code: "token_expired"}
			})

			assert.ErrorIs(t, err, ErrInvalidAppCredentials)
			assert.Equal(t, 1, rec.invalidAppCreds)
			assert.Zero(t, rec.invalidRefresh, "app-level failure must not touch the user record")
		})
	}
}

func TestPersistFailureFailsInvocation(t *testing.T) {
	rec := &strategyRecorder{
		refreshResult: &RefreshResult{AccessToken: "access-new"},
		persistErr:    errors.New("database gone"),
	}
	m := New(testCredential(), rec.strategy())

	callCount := 0
	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		callCount++
		return &CodeError{Code: "token_expired"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, callCount, "must not retry with tokens held only in memory")
	assert.Nil(t, m.Credential())
}

func TestRefreshResponseWithoutAccessToken(t *testing.T) {
	rec := &strategyRecorder{
		refreshResult: &RefreshResult{},
	}
	m := New(testCredential(), rec.strategy())

	err := m.Execute(context.Background(), func(ctx context.Context, accessToken string) error {
		return &CodeError{Code: "token_expired"}
	})

	require.Error(t, err)
	assert.Zero(t, rec.persistCalls)
}

func TestCodeExtraction(t *testing.T) {
	assert.Equal(t, "token_expired", Code(&CodeError{Code: "token_expired"}))

	wrapped := errors.Join(errors.New("outer"), &CodeError{Code: "missing_scope"})
	assert.Equal(t, "missing_scope", Code(wrapped))

	assert.Empty(t, Code(errors.New("plain")))
	assert.Empty(t, Code(nil))
}
