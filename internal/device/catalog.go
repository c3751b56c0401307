package device

import (
	"fmt"
	"time"
)

// Resolve returns the first parameter named name.
// Duplicate names resolve to the earliest entry in catalog order.
func Resolve(parameters []Parameter, name string) (Parameter, error) {
	for _, p := range parameters {
		if p.Name == name {
			return p, nil
		}
	}
	return Parameter{}, fmt.Errorf("%w: %q", ErrParameterNotFound, name)
}

// BuildStatus folds values into a Status stamped with now.
//
// Each value lands at [parent][name] of the first parameter sharing its
// value id; a later value for the same path overwrites an earlier one.
// Values without a parameter are listed in Status.Skipped.
func BuildStatus(parameters []Parameter, values []Value, now time.Time) Status {
	byValueID := make(map[int64]Parameter, len(parameters))
	for _, p := range parameters {
		if _, seen := byValueID[p.ValueID]; !seen {
			byValueID[p.ValueID] = p
		}
	}

	status := Status{
		Time:   now,
		Groups: make(map[string]map[string]any),
	}

	for _, v := range values {
		p, ok := byValueID[v.ValueID]
		if !ok {
			status.Skipped = append(status.Skipped, v.ValueID)
			continue
		}
		group, ok := status.Groups[p.Parent]
		if !ok {
			group = make(map[string]any)
			status.Groups[p.Parent] = group
		}
		group[p.Name] = v.Value
	}

	return status
}

// LogParameters writes the catalog to l at debug level.
func LogParameters(l Logger, parameters []Parameter) {
	logDebug(l, "parameter catalog", "count", len(parameters))
	for _, p := range parameters {
		logDebug(l, "parameter",
			"name", p.Name,
			"parent", p.Parent,
			"parameter_id", p.ParameterID,
			"value_id", p.ValueID,
			"bundle_id", p.BundleID,
			"read_only", p.ReadOnly,
		)
	}
}

// LogValues writes live readings to l at debug level.
func LogValues(l Logger, values []Value) {
	logDebug(l, "parameter values", "count", len(values))
	for _, v := range values {
		logDebug(l, "value", "value_id", v.ValueID, "value", v.Value, "state", v.State)
	}
}
