// Package wolf connects a Wolf SmartSet heating system to MQTT.
//
// # Architecture
//
//	┌──────────────┐  HTTPS  ┌──────────────┐  MQTT   ┌──────────────┐
//	│   SmartSet   │◄───────►│    Runner    │◄───────►│    Broker    │
//	│    portal    │         │   + Bridge   │         │              │
//	└──────────────┘         └──────────────┘         └──────────────┘
//
// The Runner owns every call to the SmartSet API. Each refresh cycle it
// fetches the current values, builds a status grouped by parameter parent
// and hands it to the Bridge, which publishes it retained on
// <prefix>/status.
//
// # Commands
//
// Messages on <prefix>/set write a parameter by name. Two payload forms are
// accepted:
//
//	{"name": "Heating mode", "value": 1}
//	Heating-mode 1
//
// The MQTT handler does not call the API itself. It sends a WriteRequest to
// the Runner and waits for the result, so writes and refresh cycles never
// overlap.
//
// # Modes
//
// Run with a nil interval performs a single cycle. With an interval it
// keeps the command listener open and refreshes until its context ends.
package wolf
