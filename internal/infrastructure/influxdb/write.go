package influxdb

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/wolf-bridge/internal/device"
)

// StatusMeasurement is the measurement status values are written to.
const StatusMeasurement = "wolf_parameter"

// StatusPoints converts a snapshot into one point per value, tagged with
// the parameter's parent and name and stamped with the snapshot time.
//
// Numeric values (numbers and numeric strings) go to the "value" field,
// booleans to "state", anything else to "text".
func StatusPoints(status device.Status) []*write.Point {
	parents := make([]string, 0, len(status.Groups))
	for parent := range status.Groups {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	points := make([]*write.Point, 0, status.Len())
	for _, parent := range parents {
		group := status.Groups[parent]
		names := make([]string, 0, len(group))
		for name := range group {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			field, value, ok := statusField(group[name])
			if !ok {
				continue
			}
			points = append(points, write.NewPoint(
				StatusMeasurement,
				map[string]string{"parent": parent, "name": name},
				map[string]interface{}{field: value},
				status.Time,
			))
		}
	}
	return points
}

func statusField(v any) (field string, value any, ok bool) {
	switch x := v.(type) {
	case nil:
		return "", nil, false
	case float64:
		return "value", x, true
	case float32:
		return "value", float64(x), true
	case int:
		return "value", float64(x), true
	case int64:
		return "value", float64(x), true
	case bool:
		return "state", x, true
	case string:
		s := strings.TrimSpace(x)
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return "value", f, true
		}
		return "text", x, true
	default:
		return "text", fmt.Sprint(x), true
	}
}

// WriteStatus queues every value of status. It is a no-op when the client
// is not connected; write errors surface through SetOnError.
func (c *Client) WriteStatus(status device.Status) {
	if !c.IsConnected() {
		return
	}
	for _, p := range StatusPoints(status) {
		c.writeAPI.WritePoint(p)
	}
}
