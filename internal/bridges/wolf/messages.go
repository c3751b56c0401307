package wolf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Write sources recorded with every write.
const (
	SourceCLI  = "cli"
	SourceMQTT = "mqtt"
)

// Command is a parsed set request. JSON numbers are kept as json.Number so
// the value is written exactly as it was sent.
type Command struct {
	Name  string
	Value any
}

// nameKeys are the JSON fields accepted as parameter name, in priority order.
var nameKeys = []string{"name", "parameter", "parameter_name"}

// ParseCommand parses a set payload. Two forms are accepted:
//
//	{"name": "Mode", "value": 1}   (also "parameter" or "parameter_name")
//	Mode 1
//
// In the plain form the name is the first whitespace separated token and
// the value is the rest of the payload.
func ParseCommand(payload []byte) (Command, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return Command{}, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || dec.More() {
		return parsePlainCommand(text)
	}

	var name string
	for _, key := range nameKeys {
		if s, ok := obj[key].(string); ok && s != "" {
			name = s
			break
		}
	}
	value, hasValue := obj["value"]
	if name == "" || !hasValue || value == nil {
		return Command{}, fmt.Errorf("%w: JSON payload must contain 'name' and 'value'", ErrInvalidCommand)
	}

	return Command{Name: name, Value: value}, nil
}

func parsePlainCommand(text string) (Command, error) {
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return Command{}, fmt.Errorf("%w: expected '<parameter> <value>' payload", ErrInvalidCommand)
	}
	return Command{
		Name:  text[:i],
		Value: strings.TrimLeftFunc(text[i:], unicode.IsSpace),
	}, nil
}

// FormatValue renders a command value as the string written to the device.
func FormatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
