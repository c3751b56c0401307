package smartset

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wolf-bridge/internal/device"
)

// stubTokens hands out numbered tokens; Invalidate advances to the next one.
type stubTokens struct {
	mu          sync.Mutex
	tokens      []string
	current     int
	invalidated int
	err         error
}

func (s *stubTokens) AccessToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.tokens[s.current], nil
}

func (s *stubTokens) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
	if s.current < len(s.tokens)-1 {
		s.current++
	}
}

// fakePortal serves the portal API. Requests carrying a token other than
// validToken get 401.
type fakePortal struct {
	server     *httptest.Server
	validToken string

	mu       sync.Mutex
	requests []*http.Request
	bodies   []map[string]any
}

const guiFixture = `{
  "MenuItems": [{
    "Name": "Expert",
    "TabViews": [{
      "TabName": "Heating",
      "BundleId": 1000,
      "ParameterDescriptors": [
        {"Name": "Flow temperature", "ParameterId": 100, "ValueId": 1, "IsReadOnly": true},
        {"Name": "Mode", "ParameterId": 101, "ValueId": 2, "BundleId": 1100,
         "ChildParameterDescriptors": [{"Name": "Eco level", "ParameterId": 102, "ValueId": 3}]}
      ]
    }],
    "SubMenuEntries": [{
      "Name": "Boiler",
      "TabViews": [{
        "TabName": "Boiler",
        "BundleId": 2000,
        "ParameterDescriptors": [
          {"Name": "Pressure", "ParameterId": 200, "ValueId": 4, "IsReadOnly": true},
          {"Name": "Flow temperature copy", "ParameterId": 201, "ValueId": 1}
        ]
      }]
    }]
  }]
}`

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{validToken: "good"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+pathSystemList, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"Id": 11, "GatewayId": 22, "Name": "Home", "Extra": true}]`))
	})
	mux.HandleFunc("GET "+pathGUIDescription, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("GatewayId") != "22" || r.URL.Query().Get("SystemId") != "11" {
			http.Error(w, "unknown system", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(guiFixture))
	})
	mux.HandleFunc("POST "+pathGetValues, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Values": [{"ValueId": 1, "Value": "45.5", "State": 1}, {"ValueId": 4, "Value": 1.8}], "LastAccess": "x"}`))
	})
	mux.HandleFunc("POST "+pathWriteValues, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		p.mu.Lock()
		p.requests = append(p.requests, r)
		p.bodies = append(p.bodies, body)
		p.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+p.validToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *fakePortal) lastBody() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodies[len(p.bodies)-1]
}

func newTestClient(t *testing.T, p *fakePortal, tokens TokenSource) *Client {
	t.Helper()
	c, err := NewClient(p.server.URL+"/", tokens, WithHTTPClient(p.server.Client()))
	require.NoError(t, err)
	return c
}

func TestClient_FetchSystemList(t *testing.T) {
	p := newFakePortal(t)
	c := newTestClient(t, p, &stubTokens{tokens: []string{"good"}})

	systems, err := c.FetchSystemList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []device.System{{ID: 11, Gateway: 22, Name: "Home"}}, systems)
}

func TestClient_FetchParameters(t *testing.T) {
	p := newFakePortal(t)
	c := newTestClient(t, p, &stubTokens{tokens: []string{"good"}})

	params, err := c.FetchParameters(context.Background(), 22, 11)
	require.NoError(t, err)

	assert.Equal(t, []device.Parameter{
		{Name: "Flow temperature", ParameterID: 100, ValueID: 1, BundleID: 1000, ReadOnly: true, Parent: "Heating"},
		{Name: "Mode", ParameterID: 101, ValueID: 2, BundleID: 1100, Parent: "Heating"},
		{Name: "Eco level", ParameterID: 102, ValueID: 3, BundleID: 1000, Parent: "Heating"},
		{Name: "Pressure", ParameterID: 200, ValueID: 4, BundleID: 2000, ReadOnly: true, Parent: "Boiler"},
	}, params)
}

func TestClient_FetchValues(t *testing.T) {
	p := newFakePortal(t)
	c := newTestClient(t, p, &stubTokens{tokens: []string{"good"}})

	params := []device.Parameter{{ValueID: 1}, {ValueID: 4}, {ValueID: 1}}
	values, err := c.FetchValues(context.Background(), 22, 11, params)
	require.NoError(t, err)

	require.Len(t, values, 2)
	assert.Equal(t, device.Value{ValueID: 1, Value: "45.5", State: float64(1)}, values[0])
	assert.Equal(t, 1.8, values[1].Value)

	body := p.lastBody()
	assert.Equal(t, []any{float64(1), float64(4)}, body["ValueIdList"])
	assert.Equal(t, float64(22), body["GatewayId"])
	assert.Equal(t, float64(11), body["SystemId"])
	assert.Equal(t, float64(DefaultBundleID), body["BundleId"])
}

func TestClient_WriteValue(t *testing.T) {
	p := newFakePortal(t)
	c := newTestClient(t, p, &stubTokens{tokens: []string{"good"}})

	err := c.WriteValue(context.Background(), 22, 11, 1100, ValueWrite{ValueID: 2, State: "3"})
	require.NoError(t, err)

	body := p.lastBody()
	assert.Equal(t, float64(1100), body["BundleId"])
	assert.Equal(t, []any{map[string]any{"ValueId": float64(2), "State": "3"}}, body["WriteParameterValues"])
}

func TestClient_RetriesOnceAfter401(t *testing.T) {
	p := newFakePortal(t)
	tokens := &stubTokens{tokens: []string{"stale", "good"}}
	c := newTestClient(t, p, tokens)

	_, err := c.FetchSystemList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tokens.invalidated)
	assert.Equal(t, 2, p.requestCount())
}

func TestClient_GivesUpAfterSecond401(t *testing.T) {
	p := newFakePortal(t)
	tokens := &stubTokens{tokens: []string{"stale", "also-stale"}}
	c := newTestClient(t, p, tokens)

	_, err := c.FetchSystemList(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, 1, tokens.invalidated)
	assert.Equal(t, 2, p.requestCount())
}

func TestClient_HTTPErrorNotRetried(t *testing.T) {
	p := newFakePortal(t)
	tokens := &stubTokens{tokens: []string{"good"}}
	c := newTestClient(t, p, tokens)

	_, err := c.FetchParameters(context.Background(), 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.True(t, strings.Contains(err.Error(), "404"), err.Error())
	assert.Zero(t, tokens.invalidated)
	assert.Equal(t, 1, p.requestCount())
}

func TestClient_TokenSourceErrorPropagates(t *testing.T) {
	p := newFakePortal(t)
	boom := errors.New("login failed")
	c := newTestClient(t, p, &stubTokens{err: boom})

	_, err := c.FetchSystemList(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.requestCount(), "no request without a token")
}

func TestClient_Unreachable(t *testing.T) {
	p := newFakePortal(t)
	c := newTestClient(t, p, &stubTokens{tokens: []string{"good"}})
	p.server.Close()

	_, err := c.FetchSystemList(context.Background())
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestClient_SatisfiesDiscover(t *testing.T) {
	p := newFakePortal(t)
	c := newTestClient(t, p, &stubTokens{tokens: []string{"good"}})

	sc, err := device.Discover(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Len(t, sc.Systems, 1)
	assert.Len(t, sc.Parameters, 4)
}

func TestNewClient_RequiresTokenSource(t *testing.T) {
	_, err := NewClient(DefaultBaseURL, nil)
	assert.Error(t, err)
}
