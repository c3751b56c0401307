package device

import (
	"encoding/json"
	"time"
)

// StatusTimeLayout is the layout of the "time" field of a published status.
const StatusTimeLayout = "02/01/2006 15:04:05"

// System is a heating system registered to the account.
type System struct {
	ID      int64  `json:"id"`
	Gateway int64  `json:"gateway"`
	Name    string `json:"name"`
}

// Parameter describes one readable or writable value of a system.
// ValueID links live readings to the parameter; Parent groups parameters
// in the published status.
type Parameter struct {
	Name        string `json:"name"`
	ParameterID int64  `json:"parameter_id"`
	ValueID     int64  `json:"value_id"`
	BundleID    int64  `json:"bundle_id"`
	ReadOnly    bool   `json:"read_only"`
	Parent      string `json:"parent"`
}

// Value is a live reading as returned by the device API.
type Value struct {
	ValueID int64 `json:"value_id"`
	Value   any   `json:"value"`
	State   any   `json:"state,omitempty"`
}

// SystemContext is the discovered system list plus the parameter catalog
// of the first system.
type SystemContext struct {
	Systems    []System    `json:"systems"`
	Parameters []Parameter `json:"parameters"`
}

// Primary returns the system all reads and writes are addressed to.
func (c *SystemContext) Primary() (System, error) {
	if c == nil || len(c.Systems) == 0 {
		return System{}, ErrNoSystems
	}
	return c.Systems[0], nil
}

// Status is a snapshot of all known values grouped by parameter parent.
//
// It marshals to a flat JSON object:
//
//	{"time": "18/10/2026 12:00:00", "Heating": {"Flow temperature": 45.5}}
type Status struct {
	Time   time.Time
	Groups map[string]map[string]any

	// Skipped lists value ids that matched no parameter.
	Skipped []int64
}

// Value returns the value stored at [parent][name].
func (s Status) Value(parent, name string) (any, bool) {
	group, ok := s.Groups[parent]
	if !ok {
		return nil, false
	}
	v, ok := group[name]
	return v, ok
}

// Len returns the number of values in the snapshot.
func (s Status) Len() int {
	n := 0
	for _, group := range s.Groups {
		n += len(group)
	}
	return n
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Groups)+1)
	for parent, group := range s.Groups {
		out[parent] = group
	}
	// The timestamp owns the "time" key.
	out["time"] = s.Time.Format(StatusTimeLayout)
	return json.Marshal(out)
}
