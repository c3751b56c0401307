package mqtt

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/wolf-bridge/internal/infrastructure/config"
)

// Default broker ports.
const (
	DefaultPort    = 1883
	DefaultTLSPort = 8883
)

// Settings are the resolved broker connection parameters.
//
// An empty Username means no authentication. Password is only sent when
// Username is set.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	ClientID string
	QoS      byte
}

// BrokerURL returns the paho broker URL (tcp:// or ssl://).
func (s *Settings) BrokerURL() string {
	scheme := "tcp"
	if s.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port)
}

// Address returns host:port for log fields.
func (s *Settings) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ParseURL extracts host, port and scheme from a broker URL.
//
// A bare "host" or "host:port" is accepted and treated as scheme mqtt.
// The scheme is lowercased; mqtts and ssl select the TLS default port
// 8883, every other scheme 1883.
func ParseURL(raw string) (host string, port int, scheme string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	// A bare host or host:port is parsed as a network-path reference.
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, perr := url.Parse(raw)
	if perr != nil {
		return "", 0, "", fmt.Errorf("%w: %w", ErrInvalidURL, perr)
	}

	host = strings.ToLower(u.Hostname())
	if host == "" {
		return "", 0, "", fmt.Errorf("%w: unable to determine host in %q", ErrInvalidURL, raw)
	}

	scheme = strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "mqtt"
	}

	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return "", 0, "", fmt.Errorf("%w: invalid port %q", ErrInvalidURL, p)
		}
	} else if isTLSScheme(scheme) {
		port = DefaultTLSPort
	} else {
		port = DefaultPort
	}

	return host, port, scheme, nil
}

func isTLSScheme(scheme string) bool {
	return scheme == "mqtts" || scheme == "ssl"
}

// ResolveSettings turns the mqtt section of the credentials file into
// Settings. It returns nil, nil when no broker URL is configured.
//
// Username is trimmed; "" or "anonymous" (any case) disables authentication.
// An empty password is treated as no password.
func ResolveSettings(cfg config.MQTTConfig) (*Settings, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil
	}

	host, port, scheme, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(cfg.Username)
	if strings.EqualFold(username, "anonymous") {
		username = ""
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "wolfbridge"
	}
	// Suffix keeps a one-shot run from kicking a running listener off the broker.
	clientID = clientID + "-" + uuid.NewString()[:8]

	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	return &Settings{
		Host:     host,
		Port:     port,
		Username: username,
		Password: cfg.Password,
		UseTLS:   isTLSScheme(scheme),
		ClientID: clientID,
		QoS:      byte(cfg.QoS),
	}, nil
}
