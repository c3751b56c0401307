package mqtt

// Default topic prefix for the Wolf bridge.
const DefaultTopicPrefix = "wolf"

// Topics builds the bridge topic names under a prefix.
//
//	topics := mqtt.Topics{Prefix: "wolf"}
//	topics.Status() // "wolf/status"
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Set is the command topic the bridge listens on.
//
// Example: wolf/set
func (t Topics) Set() string {
	return t.prefix() + "/set"
}

// Status is the retained topic the bridge publishes snapshots to.
//
// Example: wolf/status
func (t Topics) Status() string {
	return t.prefix() + "/status"
}
