package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultContextCacheFile is the system context cache location relative
	// to the working directory.
	DefaultContextCacheFile = "system_context_cache.json"

	// DefaultContextTTL is how long a discovered context is reused.
	DefaultContextTTL = 24 * time.Hour
)

const naiveISOLayout = "2006-01-02T15:04:05"

// contextFile is the on-disk form of a SystemContext.
type contextFile struct {
	ExpiresAt  string      `json:"expires_at"`
	Systems    []System    `json:"systems"`
	Parameters []Parameter `json:"parameters"`
}

// ContextCache stores the last discovered SystemContext with an expiry.
// Any unreadable state reads as a miss.
type ContextCache struct {
	path   string
	ttl    time.Duration
	logger Logger
	now    func() time.Time
}

// NewContextCache creates a cache at path. A zero ttl selects DefaultContextTTL.
func NewContextCache(path string, ttl time.Duration, logger Logger) *ContextCache {
	if path == "" {
		path = DefaultContextCacheFile
	}
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	return &ContextCache{path: path, ttl: ttl, logger: logger, now: time.Now}
}

// Path returns the cache file location.
func (c *ContextCache) Path() string {
	return c.path
}

// Load returns the cached context if the file exists, parses and has not
// expired.
func (c *ContextCache) Load() (*SystemContext, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logWarn(c.logger, "failed to read system context cache", "path", c.path, "error", err)
		}
		return nil, false
	}

	var file contextFile
	if err := json.Unmarshal(data, &file); err != nil {
		logWarn(c.logger, "failed to parse system context cache", "path", c.path, "error", err)
		return nil, false
	}

	if file.ExpiresAt == "" {
		logDebug(c.logger, "system context cache has no expiry", "path", c.path)
		return nil, false
	}

	expiresAt, err := parseTimestamp(file.ExpiresAt)
	if err != nil {
		logWarn(c.logger, "invalid system context cache expiry", "path", c.path, "error", err)
		return nil, false
	}

	if !c.now().Before(expiresAt) {
		logDebug(c.logger, "system context cache expired", "path", c.path, "expires_at", expiresAt)
		return nil, false
	}

	logDebug(c.logger, "using cached system context",
		"path", c.path,
		"systems", len(file.Systems),
		"parameters", len(file.Parameters),
		"expires_at", expiresAt,
	)
	return &SystemContext{Systems: file.Systems, Parameters: file.Parameters}, true
}

// Save writes sc with an expiry of now plus the cache TTL.
func (c *ContextCache) Save(sc *SystemContext) error {
	if sc == nil {
		return errors.New("device: nil system context")
	}

	file := contextFile{
		ExpiresAt:  c.now().Add(c.ttl).Format(time.RFC3339Nano),
		Systems:    sc.Systems,
		Parameters: sc.Parameters,
	}
	if file.Systems == nil {
		file.Systems = []System{}
	}
	if file.Parameters == nil {
		file.Parameters = []Parameter{}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding system context cache: %w", err)
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil { //nolint:gosec // catalog data, no secrets
		return fmt.Errorf("writing system context cache: %w", err)
	}

	logInfo(c.logger, "cached system context", "path", c.path, "expires_at", file.ExpiresAt)
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(naiveISOLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Discoverer lists systems and their parameter catalog.
type Discoverer interface {
	FetchSystemList(ctx context.Context) ([]System, error)
	FetchParameters(ctx context.Context, gatewayID, systemID int64) ([]Parameter, error)
}

// Discover returns the cached context when valid, otherwise it queries api
// for the system list and the first system's parameters and refreshes the
// cache. A nil cache always queries api. A failed cache write is logged and
// does not fail discovery.
func Discover(ctx context.Context, api Discoverer, cache *ContextCache) (*SystemContext, error) {
	var logger Logger
	if cache != nil {
		logger = cache.logger
		if sc, ok := cache.Load(); ok {
			return sc, nil
		}
	}

	systems, err := api.FetchSystemList(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching system list: %w", err)
	}
	if len(systems) == 0 {
		return nil, ErrNoSystems
	}

	primary := systems[0]
	parameters, err := api.FetchParameters(ctx, primary.Gateway, primary.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching parameters for system %d: %w", primary.ID, err)
	}

	sc := &SystemContext{Systems: systems, Parameters: parameters}
	logInfo(logger, "discovered system context",
		"systems", len(systems),
		"system", primary.Name,
		"parameters", len(parameters),
	)

	if cache != nil {
		if err := cache.Save(sc); err != nil {
			logWarn(logger, "failed to cache system context", "error", err)
		}
	}

	return sc, nil
}
