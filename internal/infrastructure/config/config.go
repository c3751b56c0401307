package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every error returned from Load and Validate.
// Callers treat it as fatal at startup.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root configuration for the Wolf bridge.
//
// It is read from the credentials file (JSON, or YAML when the file
// extension says so) and can be overridden by WOLF_* environment variables.
// Only username and password are required; every other section has defaults.
type Config struct {
	Username string         `yaml:"username" json:"username"`
	Password string         `yaml:"password" json:"password"`
	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	SmartSet SmartSetConfig `yaml:"smartset" json:"smartset"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" json:"influxdb"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	API      APIConfig      `yaml:"api" json:"api"`
}

// MQTTConfig holds the optional broker section of the credentials file.
// An empty URL disables MQTT entirely.
type MQTTConfig struct {
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	ClientID string `yaml:"client_id" json:"client_id"`
	QoS      int    `yaml:"qos" json:"qos"`
}

// UnmarshalJSON ignores an mqtt value that is not an object, leaving MQTT
// disabled instead of failing the whole file.
func (m *MQTTConfig) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	type plain MQTTConfig
	return json.Unmarshal(data, (*plain)(m))
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (m *MQTTConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	type plain MQTTConfig
	return node.Decode((*plain)(m))
}

// SmartSetConfig points at the vendor portal and its identity provider.
type SmartSetConfig struct {
	BaseURL     string `yaml:"base_url" json:"base_url"`
	AuthBaseURL string `yaml:"auth_base_url" json:"auth_base_url"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	Timeout     int    `yaml:"timeout" json:"timeout"` // seconds
}

// CacheConfig contains the on-disk cache locations.
type CacheConfig struct {
	TokenFile              string `yaml:"token_file" json:"token_file"`
	SystemContextFile      string `yaml:"system_context_file" json:"system_context_file"`
	SystemContextTTLHours  int    `yaml:"system_context_ttl_hours" json:"system_context_ttl_hours"`
	DisableTokenPersisting bool   `yaml:"disable_token_persisting" json:"disable_token_persisting"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// InfluxDBConfig contains the optional status history export settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	URL           string `yaml:"url" json:"url"`
	Token         string `yaml:"token" json:"token"`
	Org           string `yaml:"org" json:"org"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" json:"flush_interval"`
}

// DatabaseConfig contains the SQLite write journal settings.
// An empty path disables the journal.
type DatabaseConfig struct {
	Path        string `yaml:"path" json:"path"`
	WALMode     bool   `yaml:"wal_mode" json:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" json:"busy_timeout"`
}

// APIConfig contains the read-only status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" json:"enabled"`
	Host     string           `yaml:"host" json:"host"`
	Port     int              `yaml:"port" json:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// PanelDir serves the dashboard from disk instead of the embedded copy.
	PanelDir string `yaml:"panel_dir" json:"panel_dir"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" json:"read"`
	Write int `yaml:"write" json:"write"`
	Idle  int `yaml:"idle" json:"idle"`
}

// Load reads the credentials file and applies environment variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults)
//  3. Environment variables (override file values)
//
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
// Any failure (missing file, parse error, validation) wraps ErrInvalidConfig.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading credentials file: %w", ErrInvalidConfig, err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing credentials file: %w", ErrInvalidConfig, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decode picks the decoder from the file extension.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			ClientID: "wolfbridge",
			QoS:      1,
		},
		SmartSet: SmartSetConfig{
			BaseURL:     "https://www.wolf-smartset.com",
			AuthBaseURL: "https://www.wolf-smartset.com/idsrv",
			ClientID:    "smartset.web",
			Timeout:     30,
		},
		Cache: CacheConfig{
			TokenFile:             ".wolf_comm_token_cache.json",
			SystemContextFile:     "system_context_cache.json",
			SystemContextTTLHours: 24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8089,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WOLF_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WOLF_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("WOLF_PASSWORD"); v != "" {
		cfg.Password = v
	}

	// MQTT
	if v := os.Getenv("WOLF_MQTT_URL"); v != "" {
		cfg.MQTT.URL = v
	}
	if v := os.Getenv("WOLF_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("WOLF_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WOLF_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("WOLF_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so the user can fix the file in one pass.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Username) == "" {
		errs = append(errs, "username is required")
	}
	if c.Password == "" {
		errs = append(errs, "password is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.SmartSet.BaseURL == "" {
		errs = append(errs, "smartset.base_url is required")
	}
	if c.SmartSet.AuthBaseURL == "" {
		errs = append(errs, "smartset.auth_base_url is required")
	}

	if c.Cache.SystemContextTTLHours < 0 {
		errs = append(errs, "cache.system_context_ttl_hours must not be negative")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// HasMQTT reports whether an MQTT broker URL is configured.
func (c *Config) HasMQTT() bool {
	return strings.TrimSpace(c.MQTT.URL) != ""
}

// SystemContextTTL returns the system context cache validity window.
func (c *Config) SystemContextTTL() time.Duration {
	return time.Duration(c.Cache.SystemContextTTLHours) * time.Hour
}

// HTTPTimeout returns the SmartSet HTTP timeout as a Duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.SmartSet.Timeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
