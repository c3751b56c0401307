package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Authenticator exchanges a username and password for a SmartSet token.
//
// Token first consults the in-memory token, then the TokenCache, and only
// then runs the LoginFlow. Logins are serialised; concurrent callers wait
// for the running login and share its result.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Authenticator struct {
	username string
	password string
	flow     LoginFlow
	cache    TokenCache
	logger   Logger
	now      func() time.Time

	mu       sync.Mutex
	current  Token
	rejected string // access token the API refused; never reused from cache
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(a *Authenticator) {
		a.logger = l
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// NewAuthenticator creates an Authenticator. A nil cache keeps tokens in
// memory only.
func NewAuthenticator(username, password string, flow LoginFlow, cache TokenCache, opts ...Option) (*Authenticator, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrAuthentication)
	}
	if flow == nil {
		return nil, errors.New("auth: login flow is required")
	}
	if cache == nil {
		cache = NewMemoryTokenCache()
	}

	a := &Authenticator{
		username: username,
		password: password,
		flow:     flow,
		cache:    cache,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Username returns the account the authenticator logs in as.
func (a *Authenticator) Username() string {
	return a.username
}

// Token returns a usable token, logging in when neither memory nor the
// cache holds one. Every login failure wraps ErrAuthentication. A cache
// write failure is logged and does not fail the login.
func (a *Authenticator) Token(ctx context.Context) (Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.current.Valid(now) {
		return a.current, nil
	}

	if cached, ok := a.cache.Load(a.username); ok {
		switch {
		case cached.AccessToken == a.rejected:
			logInfo(a.logger, "cached token was rejected by the API, logging in again", "username", a.username)
		case cached.Valid(now):
			logInfo(a.logger, "using cached token", "username", a.username, "expire_at", cached.ExpireAt)
			a.current = cached
			return cached, nil
		default:
			logInfo(a.logger, "cached token expired, logging in again", "username", a.username, "expire_at", cached.ExpireAt)
		}
	}

	tok, err := a.login(ctx)
	if err != nil {
		logError(a.logger, "authentication failed", "username", a.username, "error", err)
		return Token{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	logInfo(a.logger, "authenticated", "username", a.username, "expire_at", tok.ExpireAt)
	a.current = tok
	a.rejected = ""

	if err := a.cache.Save(a.username, tok); err != nil {
		logWarn(a.logger, "token not cached", "username", a.username, "error", err)
	}

	return tok, nil
}

// AccessToken returns the bearer string of a usable token.
func (a *Authenticator) AccessToken(ctx context.Context) (string, error) {
	tok, err := a.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate drops the current token after the API rejected it. The next
// Token call logs in again even if the cache still holds the same token.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current.AccessToken != "" {
		a.rejected = a.current.AccessToken
	}
	a.current = Token{}
}

func (a *Authenticator) login(ctx context.Context) (Token, error) {
	p, err := GeneratePKCE()
	if err != nil {
		return Token{}, err
	}

	page, err := a.flow.FetchLoginPage(ctx, p)
	if err != nil {
		return Token{}, err
	}

	verificationToken, err := a.flow.ExtractVerificationToken(page)
	if err != nil {
		return Token{}, err
	}

	final, err := a.flow.SubmitCredentials(ctx, p, a.username, a.password, verificationToken)
	if err != nil {
		return Token{}, err
	}

	code, err := a.flow.ExtractCode(final, p)
	if err != nil {
		return Token{}, err
	}

	return a.flow.ExchangeCode(ctx, code, p)
}
