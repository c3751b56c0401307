package wolf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wolf-bridge/internal/audit"
	"github.com/nerrad567/wolf-bridge/internal/device"
	"github.com/nerrad567/wolf-bridge/internal/smartset"
)

var runnerNow = time.Date(2026, 10, 18, 9, 5, 7, 0, time.UTC)

type writeCall struct {
	Gateway, System, Bundle int64
	Write                   smartset.ValueWrite
}

// mockAPI implements smartset.API.
type mockAPI struct {
	mu         sync.Mutex
	systems    []device.System
	parameters []device.Parameter
	values     []device.Value

	systemCalls int
	valueCalls  int
	writes      []writeCall

	valuesErr error
	writeErr  error
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		systems: []device.System{{ID: 11, Gateway: 22, Name: "CGB-2"}},
		parameters: []device.Parameter{
			{Name: "Heating", ValueID: 7, BundleID: 1000, Parent: "Boiler"},
			{Name: "Mode", ValueID: 8, Parent: "Heating circuit"},
		},
		values: []device.Value{{ValueID: 7, Value: "42"}, {ValueID: 99, Value: "x"}},
	}
}

func (m *mockAPI) FetchSystemList(context.Context) ([]device.System, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemCalls++
	return m.systems, nil
}

func (m *mockAPI) FetchParameters(context.Context, int64, int64) ([]device.Parameter, error) {
	return m.parameters, nil
}

func (m *mockAPI) FetchValues(context.Context, int64, int64, []device.Parameter) ([]device.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valueCalls++
	if m.valuesErr != nil {
		return nil, m.valuesErr
	}
	return m.values, nil
}

func (m *mockAPI) WriteValue(_ context.Context, gatewayID, systemID, bundleID int64, write smartset.ValueWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, writeCall{Gateway: gatewayID, System: systemID, Bundle: bundleID, Write: write})
	return m.writeErr
}

func (m *mockAPI) counts() (values, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valueCalls, len(m.writes)
}

// memoryJournal implements audit.Repository.
type memoryJournal struct {
	mu      sync.Mutex
	entries []audit.WriteEntry
}

func (j *memoryJournal) Create(_ context.Context, entry *audit.WriteEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, *entry)
	return nil
}

func (j *memoryJournal) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &audit.ListResult{Entries: j.entries, Total: len(j.entries)}, nil
}

type recordingSink struct {
	mu         sync.Mutex
	statuses   []device.Status
	parameters []device.Parameter
}

func (s *recordingSink) WriteStatus(status device.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) SetStatus(status device.Status) { s.WriteStatus(status) }

func (s *recordingSink) SetParameters(parameters []device.Parameter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parameters = parameters
}

// syncBuffer is a bytes.Buffer safe for the runner and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type runnerFixture struct {
	api     *mockAPI
	client  *MockMQTTClient
	bridge  *Bridge
	journal *memoryJournal
	sink    *recordingSink
	out     *syncBuffer
	logger  *recordingLogger
	runner  *Runner
}

func newRunnerFixture(t *testing.T, withMQTT bool) *runnerFixture {
	t.Helper()

	f := &runnerFixture{
		api:     newMockAPI(),
		journal: &memoryJournal{},
		sink:    &recordingSink{},
		out:     &syncBuffer{},
		logger:  &recordingLogger{},
	}
	var client MQTTClient
	if withMQTT {
		f.client = NewMockMQTTClient()
		client = f.client
	}
	f.bridge = NewBridge(BridgeOptions{Client: client, Logger: f.logger})

	runner, err := NewRunner(RunnerOptions{
		API:       f.api,
		Bridge:    f.bridge,
		Out:       f.out,
		Journal:   f.journal,
		History:   f.sink,
		Snapshots: f.sink,
		Logger:    f.logger,
		Now:       func() time.Time { return runnerNow },
	})
	require.NoError(t, err)
	f.runner = runner
	return f
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Bridge: NewBridge(BridgeOptions{})})
	assert.Error(t, err)

	_, err = NewRunner(RunnerOptions{API: newMockAPI()})
	assert.Error(t, err)
}

func TestRunner_Discover_UsesCache(t *testing.T) {
	api := newMockAPI()
	cache := device.NewContextCache(filepath.Join(t.TempDir(), "ctx.json"), 0, nil)
	sink := &recordingSink{}

	for i := 0; i < 2; i++ {
		r, err := NewRunner(RunnerOptions{API: api, Bridge: NewBridge(BridgeOptions{}), Cache: cache, Snapshots: sink})
		require.NoError(t, err)

		sc, err := r.Discover(context.Background())
		require.NoError(t, err)
		assert.Len(t, sc.Parameters, 2)
	}

	assert.Equal(t, 1, api.systemCalls, "second runner should read the cache")
	assert.Len(t, sink.parameters, 2)
}

func TestRunner_Cycle(t *testing.T) {
	f := newRunnerFixture(t, true)

	status, err := f.runner.Cycle(context.Background())
	require.NoError(t, err)

	v, ok := status.Value("Boiler", "Heating")
	require.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Equal(t, []int64{99}, status.Skipped)

	published := f.client.GetPublished()
	require.Len(t, published, 1)
	assert.JSONEq(t, `{"Boiler":{"Heating":"42"},"time":"18/10/2026 09:05:07"}`, string(published[0].Payload))

	assert.JSONEq(t, string(published[0].Payload), strings.TrimSpace(f.out.String()))
	assert.Len(t, f.sink.statuses, 2, "history and snapshots both receive the status")
	assert.True(t, f.logger.has("debug", "values without a catalog entry"))
}

func TestRunner_Cycle_WithoutMQTTPrintsOnly(t *testing.T) {
	f := newRunnerFixture(t, false)

	_, err := f.runner.Cycle(context.Background())
	require.NoError(t, err)

	var printed map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.out.String()), &printed))
	assert.Equal(t, "18/10/2026 09:05:07", printed["time"])
}

func TestRunner_Cycle_PublishConnectError(t *testing.T) {
	f := newRunnerFixture(t, true)
	f.client.connectError = errors.New("broker down")

	_, err := f.runner.Cycle(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.out.String(), "a failed cycle prints nothing")
}

func TestRunner_Cycle_FetchError(t *testing.T) {
	f := newRunnerFixture(t, true)
	f.api.valuesErr = smartset.ErrRequestFailed

	_, err := f.runner.Cycle(context.Background())
	assert.ErrorIs(t, err, smartset.ErrRequestFailed)
	assert.Empty(t, f.client.GetPublished())
}

func TestRunner_Write(t *testing.T) {
	tests := []struct {
		name       string
		param      string
		value      any
		wantBundle int64
		wantState  string
	}{
		{name: "parameter bundle", param: "Heating", value: float64(45), wantBundle: 1000, wantState: "45"},
		{name: "default bundle", param: "Mode", value: "Eco", wantBundle: smartset.DefaultBundleID, wantState: "Eco"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRunnerFixture(t, false)

			require.NoError(t, f.runner.Write(context.Background(), tt.param, tt.value, SourceCLI))

			require.Len(t, f.api.writes, 1)
			call := f.api.writes[0]
			assert.Equal(t, int64(22), call.Gateway)
			assert.Equal(t, int64(11), call.System)
			assert.Equal(t, tt.wantBundle, call.Bundle)
			assert.Equal(t, tt.wantState, call.Write.State)

			require.Len(t, f.journal.entries, 1)
			assert.Equal(t, audit.OutcomeOK, f.journal.entries[0].Outcome)
			assert.Equal(t, SourceCLI, f.journal.entries[0].Source)
		})
	}
}

func TestRunner_Write_UnresolvableSkipsAPI(t *testing.T) {
	f := newRunnerFixture(t, false)

	require.NoError(t, f.runner.Write(context.Background(), "Nonexistent", "1", SourceCLI))

	_, writes := f.api.counts()
	assert.Zero(t, writes, "no network write for an unknown parameter")
	assert.True(t, f.logger.has("warn", "parameter not found, skipping write"))

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, audit.OutcomeSkipped, f.journal.entries[0].Outcome)
}

func TestRunner_Write_DuplicateNameUsesFirst(t *testing.T) {
	f := newRunnerFixture(t, false)
	f.api.parameters = append(f.api.parameters, device.Parameter{Name: "Heating", ValueID: 70, Parent: "Other"})

	require.NoError(t, f.runner.Write(context.Background(), "Heating", "1", SourceCLI))
	require.Len(t, f.api.writes, 1)
	assert.Equal(t, int64(7), f.api.writes[0].Write.ValueID)
}

func TestRunner_Write_Failure(t *testing.T) {
	f := newRunnerFixture(t, false)
	f.api.writeErr = smartset.ErrRequestFailed

	err := f.runner.Write(context.Background(), "Heating", "1", SourceCLI)
	assert.ErrorIs(t, err, smartset.ErrRequestFailed)

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, audit.OutcomeFailed, f.journal.entries[0].Outcome)
	assert.NotEmpty(t, f.journal.entries[0].Error)
}

func TestRunner_Run_OneShot(t *testing.T) {
	f := newRunnerFixture(t, true)

	require.NoError(t, f.runner.Run(context.Background(), nil))

	values, _ := f.api.counts()
	assert.Equal(t, 1, values)
	assert.False(t, f.bridge.Persistent())
	assert.Empty(t, f.client.GetSubscriptions(), "one-shot mode does not listen")

	_, disconnects := f.client.Counts()
	assert.Equal(t, 1, disconnects)
}

func TestRunner_Run_OneShotError(t *testing.T) {
	f := newRunnerFixture(t, false)
	f.api.valuesErr = errors.New("portal down")

	assert.Error(t, f.runner.Run(context.Background(), nil))
}

func TestRunner_Run_IntervalNeedsMQTT(t *testing.T) {
	f := newRunnerFixture(t, false)
	interval := time.Minute

	err := f.runner.Run(context.Background(), &interval)
	assert.ErrorIs(t, err, ErrIntervalNeedsMQTT)

	values, _ := f.api.counts()
	assert.Zero(t, values)
}

func TestRunner_Run_ZeroIntervalRunsOnce(t *testing.T) {
	f := newRunnerFixture(t, true)
	interval := time.Duration(0)

	require.NoError(t, f.runner.Run(context.Background(), &interval))

	values, _ := f.api.counts()
	assert.Equal(t, 1, values)
	assert.Len(t, f.client.GetSubscriptions(), 1)

	_, disconnects := f.client.Counts()
	assert.Equal(t, 1, disconnects, "persistent session closed on stop")
}

func TestRunner_Run_CycleErrorsDoNotStopLoop(t *testing.T) {
	f := newRunnerFixture(t, true)
	f.api.valuesErr = errors.New("portal down")
	interval := 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx, &interval) }()

	require.Eventually(t, func() bool {
		values, _ := f.api.counts()
		return values >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, f.logger.has("error", "refresh cycle failed"))
}

func TestRunner_Run_ServesMQTTWrites(t *testing.T) {
	f := newRunnerFixture(t, true)
	interval := time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx, &interval) }()

	require.Eventually(t, func() bool {
		return len(f.client.GetSubscriptions()) == 1 && len(f.client.GetPublished()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The handler blocks until the driver has executed the write.
	require.NoError(t, f.client.SimulateMessage("wolf/set", []byte(`{"name":"Heating","value":50}`)))
	require.NoError(t, f.client.SimulateMessage("wolf/set", []byte("Unknown 1")))

	_, writes := f.api.counts()
	assert.Equal(t, 1, writes)

	f.journal.mu.Lock()
	require.Len(t, f.journal.entries, 2)
	assert.Equal(t, SourceMQTT, f.journal.entries[0].Source)
	assert.Equal(t, "50", f.journal.entries[0].Value)
	assert.Equal(t, audit.OutcomeSkipped, f.journal.entries[1].Outcome)
	f.journal.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	connects, disconnects := f.client.Counts()
	assert.Equal(t, 1, connects, "interval mode reuses one session")
	assert.Equal(t, 1, disconnects)
}

func TestRunner_Run_ListenerConnectFailureRecovers(t *testing.T) {
	f := newRunnerFixture(t, true)
	f.client.connectError = errors.New("broker down")
	interval := 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx, &interval) }()

	require.Eventually(t, func() bool {
		return f.logger.has("warn", "command listener not connected")
	}, 2*time.Second, 5*time.Millisecond)

	f.client.mu.Lock()
	f.client.connectError = nil
	f.client.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(f.client.GetSubscriptions()) == 1
	}, 2*time.Second, 5*time.Millisecond, "next publish connects and subscribes")

	cancel()
	<-done
}
