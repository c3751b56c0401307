// Package mqtt provides MQTT client connectivity for the Wolf bridge.
//
// This package manages:
//   - Broker URL parsing and credential resolution (ParseURL, ResolveSettings)
//   - Connecting and disconnecting on demand, with auto-reconnect once up
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with panic-safe handlers
//
// # Topics
//
// The bridge uses two topics under a configurable prefix (default "wolf"):
//
//	wolf/set     commands in, "<name> <value>" or {"name": ..., "value": ...}
//	wolf/status  retained JSON snapshot out
//
// # Security Considerations
//
//   - mqtts:// and ssl:// URLs enable TLS (minimum TLS 1.2)
//   - A username of "anonymous" or "" disables authentication
//   - Passwords are never logged
//
// # Usage
//
//	settings, err := mqtt.ResolveSettings(cfg.MQTT)
//	if err != nil || settings == nil {
//	    return err
//	}
//	client, err := mqtt.NewClient(settings)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	client.Publish(mqtt.Topics{}.Status(), payload, 1, true)
package mqtt
