package provider

import "context"

// CredentialMethod identifies the shape of a Credentials bundle.
type CredentialMethod int

const (
	// CredentialsNone means the account needs no credentials (local storage).
	CredentialsNone CredentialMethod = iota
	CredentialsOAuth2
	CredentialsPassword
)

// Credentials is the bundle a CredentialBroker hands out for one account.
type Credentials struct {
	Method CredentialMethod

	// AccessToken is set for CredentialsOAuth2.
	AccessToken string

	// Username, Password and Host are set for CredentialsPassword.
	Username string
	Password string
	Host     string
}

// AuthContext describes who issued a request. It is built once per request,
// after both the credential check and the peer identity check succeeded, and
// is never modified afterwards.
type AuthContext struct {
	Context context.Context

	// UID and PID identify the calling process.
	UID uint32
	PID uint32

	// SecurityLabel is the caller's LSM label (for example an AppArmor
	// profile), empty when the system has none.
	SecurityLabel string

	Credentials Credentials
}

// Ctx returns the request context, or context.Background if none was set.
func (a *AuthContext) Ctx() context.Context {
	if a == nil || a.Context == nil {
		return context.Background()
	}
	return a.Context
}
