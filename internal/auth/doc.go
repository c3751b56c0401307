// Package auth logs in to the Wolf SmartSet portal and caches the result.
//
// The portal has no API login. Authenticator reproduces the web app's
// OIDC Authorization Code + PKCE sign-in:
//
//  1. GET the login page for an authorize request bound to a fresh PKCE
//     challenge and state
//  2. scrape the anti-forgery token from the login form
//  3. POST the credentials with the session cookie, following redirects
//     until the callback URL carries the authorization code
//  4. exchange code and verifier at the token endpoint
//
// Tokens are cached per username in a JSON file (FileTokenCache) so that
// repeated runs reuse a token until it expires.
//
// Errors from Authenticator.Token wrap ErrAuthentication. Neither the
// password nor token values are ever logged.
package auth
