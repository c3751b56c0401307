package auth

import "errors"

// Domain-specific errors for the SmartSet login.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthentication wraps every login failure returned by Authenticator.Token.
	ErrAuthentication = errors.New("auth: authentication failed")

	// ErrVerificationTokenMissing is returned when the login page carries no form input value.
	ErrVerificationTokenMissing = errors.New("auth: verification token not found in login page")

	// ErrCodeMissing is returned when the login redirect chain ends without an authorization code.
	// Wrong credentials end up here: the portal re-renders the login page instead of redirecting.
	ErrCodeMissing = errors.New("auth: authorization code not found")

	// ErrInvalidVerifier is returned by ValidateVerifier.
	ErrInvalidVerifier = errors.New("auth: invalid PKCE code verifier")
)
