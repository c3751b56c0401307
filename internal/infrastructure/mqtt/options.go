package mqtt

import (
	"crypto/tls"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultMaxReconnectInterval caps paho's reconnect backoff.
	defaultMaxReconnectInterval = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from resolved Settings.
//
// This configures:
//   - Broker URL (tcp:// or ssl://)
//   - Client ID for identification
//   - Authentication credentials (if a username is set)
//   - Auto-reconnect once connected; the first connect fails fast
//   - Unordered handler dispatch so a handler may block on the refresh driver
//   - TLS configuration (if enabled)
func buildClientOptions(s *Settings) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(s.BrokerURL())
	opts.SetClientID(s.ClientID)

	if s.Username != "" {
		opts.SetUsername(s.Username)
		if s.Password != "" {
			opts.SetPassword(s.Password)
		}
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(defaultMaxReconnectInterval)

	// Handlers wait for the driver goroutine to execute writes; with ordered
	// dispatch that would stall paho's router.
	opts.SetOrderMatters(false)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if s.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: s.Host,
		})
	}

	return opts
}
