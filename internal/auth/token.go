package auth

import "time"

// Token is a SmartSet bearer token.
//
// The portal issues opaque access tokens without a refresh token; the
// expiry is derived from expires_in at the time the token was received.
type Token struct {
	AccessToken string
	ExpireAt    time.Time
}

// NewToken builds a Token that expires expiresIn after issuedAt.
func NewToken(accessToken string, expiresIn time.Duration, issuedAt time.Time) Token {
	return Token{
		AccessToken: accessToken,
		ExpireAt:    issuedAt.Add(expiresIn),
	}
}

// Valid reports whether the token is usable at now.
// A token is usable strictly before its expiry instant.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpireAt)
}
