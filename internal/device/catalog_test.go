package device

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 18, 9, 5, 7, 0, time.UTC)

func testCatalog() []Parameter {
	return []Parameter{
		{Name: "Flow temperature", ParameterID: 100, ValueID: 1, BundleID: 1000, ReadOnly: true, Parent: "Heating"},
		{Name: "Mode", ParameterID: 101, ValueID: 2, BundleID: 1000, Parent: "Heating"},
		{Name: "Pressure", ParameterID: 200, ValueID: 3, BundleID: 2000, ReadOnly: true, Parent: "Boiler"},
	}
}

func TestResolve(t *testing.T) {
	params := append(testCatalog(), Parameter{Name: "Mode", ValueID: 9, BundleID: 9000, Parent: "Other"})

	tests := []struct {
		name       string
		lookup     string
		wantValue  int64
		wantBundle int64
		wantErr    bool
	}{
		{name: "exact match", lookup: "Pressure", wantValue: 3, wantBundle: 2000},
		{name: "duplicate resolves to first", lookup: "Mode", wantValue: 2, wantBundle: 1000},
		{name: "case sensitive", lookup: "mode", wantErr: true},
		{name: "unknown", lookup: "Nope", wantErr: true},
		{name: "empty", lookup: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(params, tt.lookup)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrParameterNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, p.ValueID)
			assert.Equal(t, tt.wantBundle, p.BundleID)
		})
	}
}

func TestBuildStatus_GroupsByParent(t *testing.T) {
	values := []Value{
		{ValueID: 1, Value: 45.5},
		{ValueID: 3, Value: "1.8"},
		{ValueID: 42, Value: 7},
	}

	status := BuildStatus(testCatalog(), values, testNow)

	v, ok := status.Value("Heating", "Flow temperature")
	require.True(t, ok)
	assert.Equal(t, 45.5, v)

	v, ok = status.Value("Boiler", "Pressure")
	require.True(t, ok)
	assert.Equal(t, "1.8", v)

	_, ok = status.Value("Heating", "Mode")
	assert.False(t, ok, "parameters without a value are absent")

	assert.Equal(t, 2, status.Len())
	assert.Equal(t, []int64{42}, status.Skipped)

	data, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"time": "18/10/2026 09:05:07",
		"Heating": {"Flow temperature": 45.5},
		"Boiler": {"Pressure": "1.8"}
	}`, string(data))
}

func TestBuildStatus_LaterValueOverwrites(t *testing.T) {
	values := []Value{
		{ValueID: 2, Value: "Auto"},
		{ValueID: 2, Value: "Eco"},
	}

	status := BuildStatus(testCatalog(), values, testNow)

	v, _ := status.Value("Heating", "Mode")
	assert.Equal(t, "Eco", v)
	assert.Equal(t, 1, status.Len())
}

func TestBuildStatus_DuplicateValueIDUsesFirstParameter(t *testing.T) {
	params := []Parameter{
		{Name: "First", ValueID: 5, Parent: "A"},
		{Name: "Second", ValueID: 5, Parent: "B"},
	}

	status := BuildStatus(params, []Value{{ValueID: 5, Value: 1}}, testNow)

	_, ok := status.Value("A", "First")
	assert.True(t, ok)
	_, ok = status.Value("B", "Second")
	assert.False(t, ok)
}

func TestBuildStatus_Empty(t *testing.T) {
	status := BuildStatus(nil, nil, testNow)

	data, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time": "18/10/2026 09:05:07"}`, string(data))
	assert.Empty(t, status.Skipped)
}

func TestBuildStatus_OrderIndependent(t *testing.T) {
	params := make([]Parameter, 0, 50)
	values := make([]Value, 0, 50)
	for i := int64(1); i <= 50; i++ {
		parent := "Heating"
		if i%3 == 0 {
			parent = "Boiler"
		}
		params = append(params, Parameter{Name: fmt.Sprintf("param-%d", i), ValueID: i, Parent: parent})
		values = append(values, Value{ValueID: i, Value: float64(i) / 2})
	}

	want, err := json.Marshal(BuildStatus(params, values, testNow))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffledParams := append([]Parameter(nil), params...)
		shuffledValues := append([]Value(nil), values...)
		rng.Shuffle(len(shuffledParams), func(a, b int) { shuffledParams[a], shuffledParams[b] = shuffledParams[b], shuffledParams[a] })
		rng.Shuffle(len(shuffledValues), func(a, b int) { shuffledValues[a], shuffledValues[b] = shuffledValues[b], shuffledValues[a] })

		got, err := json.Marshal(BuildStatus(shuffledParams, shuffledValues, testNow))
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got))
	}
}

func TestStatus_TimeKeyWins(t *testing.T) {
	status := Status{
		Time:   testNow,
		Groups: map[string]map[string]any{"time": {"x": 1}},
	}

	data, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time": "18/10/2026 09:05:07"}`, string(data))
}

func TestSystemContext_Primary(t *testing.T) {
	sc := &SystemContext{Systems: []System{{ID: 1, Gateway: 10, Name: "Home"}, {ID: 2}}}
	sys, err := sc.Primary()
	require.NoError(t, err)
	assert.Equal(t, int64(1), sys.ID)

	_, err = (&SystemContext{}).Primary()
	assert.ErrorIs(t, err, ErrNoSystems)

	var nilCtx *SystemContext
	_, err = nilCtx.Primary()
	assert.ErrorIs(t, err, ErrNoSystems)
}

func TestBuildStatus_BoilerScenario(t *testing.T) {
	params := []Parameter{{Name: "Heating", ValueID: 7, Parent: "Boiler"}}
	values := []Value{{ValueID: 7, Value: "42"}}

	status := BuildStatus(params, values, testNow)

	data, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Boiler": {"Heating": "42"}, "time": "18/10/2026 09:05:07"}`, string(data))
}
