package tokens

import (
	"context"
	"fmt"
	"log"
)

// Manager wraps one credential and runs authenticated calls against
// it. Not safe for concurrent use; create one per task. Concurrent
// refreshes across managers are reconciled through the reload-compare
// path instead of a lock.
type Manager struct {
	cred     *Credential
	strategy Strategy
}

func New(cred *Credential, st Strategy) *Manager {
	return &Manager{cred: cred, strategy: st}
}

// Credential returns the current in-memory credential, nil after a
// terminal failure.
func (m *Manager) Credential() *Credential {
	return m.cred
}

// Execute runs call with the current access token. On a soft-expiry
// error it refreshes once and retries exactly once; a second
// soft-expiry error is final. Errors carrying codes from the reset set
// drop the credential. All other errors pass through untouched.
func (m *Manager) Execute(ctx context.Context, call func(ctx context.Context, accessToken string) error) error {
	if m.cred == nil {
		return ErrNoCredential
	}

	err := call(ctx, m.cred.AccessToken)
	if err == nil {
		return nil
	}

	code := Code(err)
	if code == "" {
		return err
	}

	if isSoftExpiry(code) {
		if refreshErr := m.refreshCredential(ctx); refreshErr != nil {
			return refreshErr
		}
		if m.cred == nil {
			return ErrNoCredential
		}

		err = call(ctx, m.cred.AccessToken)
		if err == nil {
			return nil
		}
		code = Code(err)
		if code == "" {
			return err
		}
		if shouldResetToken(code) {
			return m.reset(ctx, code)
		}
		if isSoftExpiry(code) {
			// no recursion, one refresh per invocation
			log.Printf("token still rejected after refresh: %s", code)
			return fmt.Errorf("%w: %s", ErrTokenExpired, code)
		}
		return err
	}

	if shouldResetToken(code) {
		return m.reset(ctx, code)
	}

	return err
}

func (m *Manager) reset(ctx context.Context, code string) error {
	log.Printf("dropping credential on provider error: %s", code)
	m.cred = nil
	if err := m.strategy.Reset(ctx); err != nil {
		return fmt.Errorf("reset credential: %w", err)
	}
	return fmt.Errorf("%w: %s", ErrTokenReset, code)
}

// refreshCredential exchanges the refresh token for a new pair and
// persists it before it is used. The in-memory credential is cleared
// first so a failed refresh can never reuse the stale token.
func (m *Manager) refreshCredential(ctx context.Context) error {
	refreshToken := m.cred.RefreshToken
	prevScopes := m.cred.PermissionScopes
	m.cred = nil

	res, err := m.strategy.Refresh(ctx, refreshToken)
	if err != nil {
		switch Code(err) {
		case "invalid_refresh_token":
			// another instance may have rotated the pair already
			loaded, loadErr := m.strategy.Load(ctx)
			if loadErr != nil {
				return fmt.Errorf("reload credential: %w", loadErr)
			}
			if loaded != nil && loaded.RefreshToken != refreshToken {
				log.Printf("refresh token was rotated concurrently, using reloaded credential")
				m.cred = loaded
				return nil
			}
			if cbErr := m.strategy.OnInvalidRefreshToken(ctx); cbErr != nil {
				return fmt.Errorf("handle invalid refresh token: %w", cbErr)
			}
			return ErrNoCredential
		case "invalid_client_id", "bad_client_secret":
			if cbErr := m.strategy.OnInvalidAppCredentials(ctx); cbErr != nil {
				return fmt.Errorf("handle invalid app credentials: %w", cbErr)
			}
			return ErrInvalidAppCredentials
		default:
			return fmt.Errorf("refresh token: %w", err)
		}
	}

	if res.AccessToken == "" {
		return fmt.Errorf("refresh token: provider returned no access token")
	}

	newRefreshToken := refreshToken
	if res.RefreshToken != "" && res.RefreshToken != refreshToken {
		newRefreshToken = res.RefreshToken
	}
	newScopes := prevScopes
	if res.PermissionScopes != "" {
		newScopes = res.PermissionScopes
	}

	cred := &Credential{
		AccessToken:      res.AccessToken,
		RefreshToken:     newRefreshToken,
		PermissionScopes: newScopes,
	}
	if err := m.strategy.Persist(ctx, cred); err != nil {
		return fmt.Errorf("persist refreshed tokens: %w", err)
	}
	m.cred = cred
	return nil
}
