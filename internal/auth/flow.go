package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

const (
	// maxPageSize bounds how much of the login page is read.
	maxPageSize = 2 << 20

	// maxRedirects matches net/http's default redirect limit.
	maxRedirects = 10

	loginScopes   = "openid profile api role"
	loginLanguage = "de-DE"

	// Form field names of the portal's login form.
	fieldUsername          = "Input.Username"
	fieldPassword          = "Input.Password"
	fieldVerificationToken = "__RequestVerificationToken"
)

// browserHeaders are sent with the token request. The identity provider
// expects the request to look like it came from the portal's web app.
var browserHeaders = map[string]string{
	"Cache-Control":   "no-cache",
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:108.0) Gecko/20100101 Firefox/108.0",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "de-DE,de;q=0.8,en-US;q=0.5,en;q=0.3",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "same-origin",
}

// LoginFlow is the browser login broken into steps.
//
// BrowserFlow talks to the real portal; tests substitute fakes to drive the
// Authenticator without HTML or HTTP.
type LoginFlow interface {
	// FetchLoginPage loads the login form for an authorization request
	// bound to p's challenge and state.
	FetchLoginPage(ctx context.Context, p PKCEPair) ([]byte, error)

	// ExtractVerificationToken returns the anti-forgery token from the page.
	ExtractVerificationToken(page []byte) (string, error)

	// SubmitCredentials posts the login form and returns the URL the
	// redirect chain ended on.
	SubmitCredentials(ctx context.Context, p PKCEPair, username, password, verificationToken string) (*url.URL, error)

	// ExtractCode reads the authorization code from the final URL.
	ExtractCode(final *url.URL, p PKCEPair) (string, error)

	// ExchangeCode trades the code and verifier for a token.
	ExchangeCode(ctx context.Context, code string, p PKCEPair) (Token, error)
}

// Endpoints locates the portal and its identity provider.
type Endpoints struct {
	// BaseURL is the portal origin, e.g. https://www.wolf-smartset.com.
	BaseURL string
	// AuthBaseURL is the identity provider root, e.g. https://www.wolf-smartset.com/idsrv.
	AuthBaseURL string
	// ClientID is the public OIDC client of the web app.
	ClientID string
}

// RedirectURI is where the identity provider sends the authorization code.
func (e Endpoints) RedirectURI() string {
	return strings.TrimRight(e.BaseURL, "/") + "/signin-callback.html"
}

func (e Endpoints) loginURL() string {
	return strings.TrimRight(e.AuthBaseURL, "/") + "/Account/Login"
}

func (e Endpoints) tokenURL() string {
	return strings.TrimRight(e.AuthBaseURL, "/") + "/connect/token"
}

// returnURL is the local authorize-callback URL the login form redirects to
// after a successful sign-in.
func (e Endpoints) returnURL(p PKCEPair) (string, error) {
	auth, err := url.Parse(e.AuthBaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing auth base url: %w", err)
	}

	q := url.Values{}
	q.Set("client_id", e.ClientID)
	q.Set("redirect_uri", e.RedirectURI())
	q.Set("response_type", "code")
	q.Set("scope", loginScopes)
	q.Set("state", p.State)
	q.Set("code_challenge", p.Challenge)
	q.Set("code_challenge_method", p.Method)
	q.Set("response_mode", "query")
	q.Set("lang", loginLanguage)

	return strings.TrimRight(auth.Path, "/") + "/connect/authorize/callback?" + q.Encode(), nil
}

func (e Endpoints) loginURLWithReturn(p PKCEPair) (string, error) {
	ret, err := e.returnURL(p)
	if err != nil {
		return "", err
	}
	return e.loginURL() + "?" + url.Values{"ReturnUrl": {ret}}.Encode(), nil
}

// BrowserFlow reproduces the portal's web login over HTTP.
//
// It keeps one cookie jar for its lifetime so the session cookie set by the
// login page travels with the credential post. Calls must not overlap; the
// Authenticator serialises logins.
type BrowserFlow struct {
	endpoints   Endpoints
	client      *http.Client
	tokenClient *http.Client
	oauth       *oauth2.Config
	redirect    *url.URL
	logger      Logger
}

// FlowOption configures a BrowserFlow.
type FlowOption func(*BrowserFlow)

// WithHTTPClient sets the transport and timeout used for all login requests.
// The client's cookie jar and redirect policy are replaced.
func WithHTTPClient(c *http.Client) FlowOption {
	return func(f *BrowserFlow) {
		f.client.Transport = c.Transport
		f.client.Timeout = c.Timeout
	}
}

// WithFlowLogger sets the logger for step-level debug output.
func WithFlowLogger(l Logger) FlowOption {
	return func(f *BrowserFlow) {
		f.logger = l
	}
}

// NewBrowserFlow creates a login flow against endpoints.
func NewBrowserFlow(endpoints Endpoints, opts ...FlowOption) (*BrowserFlow, error) {
	if endpoints.BaseURL == "" || endpoints.AuthBaseURL == "" || endpoints.ClientID == "" {
		return nil, errors.New("auth: base url, auth base url and client id are required")
	}

	redirect, err := url.Parse(endpoints.RedirectURI())
	if err != nil {
		return nil, fmt.Errorf("auth: parsing redirect uri: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("auth: creating cookie jar: %w", err)
	}

	f := &BrowserFlow{
		endpoints: endpoints,
		client:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
		redirect:  redirect,
		oauth: &oauth2.Config{
			ClientID:    endpoints.ClientID,
			RedirectURL: endpoints.RedirectURI(),
			Scopes:      strings.Fields(loginScopes),
			Endpoint: oauth2.Endpoint{
				TokenURL:  endpoints.tokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	base := f.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	headers := make(http.Header, len(browserHeaders)+1)
	for k, v := range browserHeaders {
		headers.Set(k, v)
	}
	headers.Set("Referer", strings.TrimRight(endpoints.BaseURL, "/")+"/")
	f.tokenClient = &http.Client{
		Transport: &headerTransport{base: base, headers: headers},
		Timeout:   f.client.Timeout,
	}

	return f, nil
}

// FetchLoginPage implements LoginFlow.
func (f *BrowserFlow) FetchLoginPage(ctx context.Context, p PKCEPair) ([]byte, error) {
	target, err := f.endpoints.loginURLWithReturn(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building login page request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching login page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching login page: unexpected status %d", resp.StatusCode)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("reading login page: %w", err)
	}

	logDebug(f.logger, "fetched login page", "bytes", len(page))
	return page, nil
}

// ExtractVerificationToken implements LoginFlow.
//
// The token is the value attribute of the first input that is a direct
// child of a form, in document order.
func (f *BrowserFlow) ExtractVerificationToken(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parsing login page: %w", err)
	}

	if value, ok := firstFormInputValue(doc); ok {
		return value, nil
	}
	return "", ErrVerificationTokenMissing
}

func firstFormInputValue(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "form" {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.Data != "input" {
				continue
			}
			if value, ok := attr(c, "value"); ok {
				return value, true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if value, ok := firstFormInputValue(c); ok {
			return value, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SubmitCredentials implements LoginFlow.
//
// Redirects are followed until the chain reaches the redirect URI; that
// URL is returned without being requested.
func (f *BrowserFlow) SubmitCredentials(ctx context.Context, p PKCEPair, username, password, verificationToken string) (*url.URL, error) {
	target, err := f.endpoints.loginURLWithReturn(p)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set(fieldUsername, username)
	form.Set(fieldPassword, password)
	form.Set(fieldVerificationToken, verificationToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	var callback *url.URL
	client := *f.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if f.isRedirectURI(next.URL) {
			callback = next.URL
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submitting credentials: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
	resp.Body.Close()

	if callback != nil {
		logDebug(f.logger, "login redirected to callback")
		return callback, nil
	}

	logDebug(f.logger, "login finished without callback redirect", "status", resp.StatusCode)
	return resp.Request.URL, nil
}

func (f *BrowserFlow) isRedirectURI(u *url.URL) bool {
	return strings.EqualFold(u.Host, f.redirect.Host) && u.Path == f.redirect.Path
}

// ExtractCode implements LoginFlow.
//
// A state parameter that does not match p.State is rejected.
func (f *BrowserFlow) ExtractCode(final *url.URL, p PKCEPair) (string, error) {
	if final == nil {
		return "", ErrCodeMissing
	}

	q := final.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%w: provider returned %s", ErrCodeMissing, e)
	}

	code := q.Get("code")
	if code == "" {
		return "", ErrCodeMissing
	}

	if state := q.Get("state"); state != "" && state != p.State {
		return "", fmt.Errorf("%w: state mismatch", ErrCodeMissing)
	}

	return code, nil
}

// ExchangeCode implements LoginFlow.
//
// A token response carrying an "error" field fails even with HTTP 200.
func (f *BrowserFlow) ExchangeCode(ctx context.Context, code string, p PKCEPair) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.tokenClient)

	tok, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(p.Verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			return Token{}, fmt.Errorf("token endpoint returned %s", re.ErrorCode)
		}
		return Token{}, fmt.Errorf("exchanging code: %w", err)
	}

	if tok.Expiry.IsZero() {
		return Token{}, errors.New("token response has no expires_in")
	}

	return Token{AccessToken: tok.AccessToken, ExpireAt: tok.Expiry}, nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header[k] = v
		}
	}
	return t.base.RoundTrip(r)
}
