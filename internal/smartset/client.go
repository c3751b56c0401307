package smartset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/wolf-bridge/internal/device"
)

// DefaultBaseURL is the SmartSet portal.
const DefaultBaseURL = "https://www.wolf-smartset.com"

const (
	apiPrefix = "/portal/api/portal"

	pathSystemList     = apiPrefix + "/GetSystemList"
	pathGUIDescription = apiPrefix + "/GetGuiDescriptionForGateway"
	pathGetValues      = apiPrefix + "/GetParameterValues"
	pathWriteValues    = apiPrefix + "/WriteParameterValues"

	// DefaultBundleID is the bundle used to read values.
	DefaultBundleID = 1000

	defaultTimeout = 30 * time.Second

	maxErrorBody = 512
)

// TokenSource supplies bearer tokens. Invalidate is called when the portal
// rejects a token so that the next AccessToken logs in again.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// API is the device API used by the bridge.
type API interface {
	device.Discoverer
	FetchValues(ctx context.Context, gatewayID, systemID int64, parameters []device.Parameter) ([]device.Value, error)
	WriteValue(ctx context.Context, gatewayID, systemID, bundleID int64, write ValueWrite) error
}

// ValueWrite is one parameter write.
type ValueWrite struct {
	ValueID int64  `json:"ValueId"`
	State   string `json:"State"`
}

// Client talks to the SmartSet portal REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for baseURL authenticated by tokens.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("smartset: token source is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// systemDTO is one entry of GetSystemList.
type systemDTO struct {
	ID        int64  `json:"Id"`
	GatewayID int64  `json:"GatewayId"`
	Name      string `json:"Name"`
}

// FetchSystemList implements device.Discoverer.
func (c *Client) FetchSystemList(ctx context.Context) ([]device.System, error) {
	var resp []systemDTO
	if err := c.doJSON(ctx, http.MethodGet, pathSystemList, nil, &resp); err != nil {
		return nil, err
	}

	systems := make([]device.System, 0, len(resp))
	for _, s := range resp {
		systems = append(systems, device.System{ID: s.ID, Gateway: s.GatewayID, Name: s.Name})
	}
	logDebug(c.logger, "fetched system list", "count", len(systems))
	return systems, nil
}

// FetchParameters implements device.Discoverer.
func (c *Client) FetchParameters(ctx context.Context, gatewayID, systemID int64) ([]device.Parameter, error) {
	path := fmt.Sprintf("%s?GatewayId=%d&SystemId=%d", pathGUIDescription, gatewayID, systemID)

	var desc guiDescription
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &desc); err != nil {
		return nil, err
	}

	parameters := desc.flatten()
	logDebug(c.logger, "fetched parameter catalog", "gateway_id", gatewayID, "system_id", systemID, "count", len(parameters))
	return parameters, nil
}

type valuesRequest struct {
	BundleID     int64   `json:"BundleId"`
	IsSubBundle  bool    `json:"IsSubBundle"`
	ValueIDList  []int64 `json:"ValueIdList"`
	GatewayID    int64   `json:"GatewayId"`
	SystemID     int64   `json:"SystemId"`
	LastAccess   *string `json:"LastAccess"`
	GUIIDChanged bool    `json:"GuiIdChanged"`
}

type valueDTO struct {
	ValueID int64 `json:"ValueId"`
	Value   any   `json:"Value"`
	State   any   `json:"State"`
}

type valuesResponse struct {
	Values []valueDTO `json:"Values"`
}

// FetchValues reads the current value of every parameter in the list.
func (c *Client) FetchValues(ctx context.Context, gatewayID, systemID int64, parameters []device.Parameter) ([]device.Value, error) {
	ids := make([]int64, 0, len(parameters))
	seen := make(map[int64]bool, len(parameters))
	for _, p := range parameters {
		if !seen[p.ValueID] {
			seen[p.ValueID] = true
			ids = append(ids, p.ValueID)
		}
	}

	req := valuesRequest{
		BundleID:    DefaultBundleID,
		ValueIDList: ids,
		GatewayID:   gatewayID,
		SystemID:    systemID,
	}

	var resp valuesResponse
	if err := c.doJSON(ctx, http.MethodPost, pathGetValues, req, &resp); err != nil {
		return nil, err
	}

	values := make([]device.Value, 0, len(resp.Values))
	for _, v := range resp.Values {
		values = append(values, device.Value{ValueID: v.ValueID, Value: v.Value, State: v.State})
	}
	logDebug(c.logger, "fetched values", "requested", len(ids), "received", len(values))
	return values, nil
}

type writeRequest struct {
	WriteParameterValues []ValueWrite `json:"WriteParameterValues"`
	SystemID             int64        `json:"SystemId"`
	GatewayID            int64        `json:"GatewayId"`
	BundleID             int64        `json:"BundleId"`
	GUIIDChanged         bool         `json:"GuiIdChanged"`
}

// WriteValue writes one parameter value.
func (c *Client) WriteValue(ctx context.Context, gatewayID, systemID, bundleID int64, write ValueWrite) error {
	req := writeRequest{
		WriteParameterValues: []ValueWrite{write},
		SystemID:             systemID,
		GatewayID:            gatewayID,
		BundleID:             bundleID,
	}
	if err := c.doJSON(ctx, http.MethodPost, pathWriteValues, req, nil); err != nil {
		return err
	}
	logInfo(c.logger, "wrote parameter value", "value_id", write.ValueID, "bundle_id", bundleID)
	return nil
}

// doJSON performs one API call. A 401 invalidates the token and the call is
// retried once with a fresh one.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%w: encoding request: %w", ErrRequestFailed, err)
		}
	}

	for attempt := 1; ; attempt++ {
		err := c.do(ctx, method, path, body, out)
		if attempt == 1 && isUnauthorized(err) {
			logDebug(c.logger, "access token rejected, logging in again", "path", path)
			c.tokens.Invalidate()
			continue
		}
		return err
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrRequestFailed, path, err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}
