package store

// CredentialState distinguishes a live credential from one the user
// explicitly disabled. A missing credential is represented by a nil
// *UserCredential, so call sites handle all three cases explicitly.
type CredentialState int

const (
	CredentialReady CredentialState = iota
	CredentialDisabled
)

// UserCredential is a decrypted user token pair loaded from storage.
type UserCredential struct {
	AccessToken      string
	RefreshToken     string
	PermissionScopes string
	Disabled         bool
}

func (c *UserCredential) State() CredentialState {
	if c.Disabled {
		return CredentialDisabled
	}
	return CredentialReady
}
