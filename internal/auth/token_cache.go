package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultTokenCacheFile is the token cache location relative to the working directory.
const DefaultTokenCacheFile = ".wolf_comm_token_cache.json"

// naiveISOLayout matches timestamps written without a zone offset.
// They are read in local time.
const naiveISOLayout = "2006-01-02T15:04:05"

// TokenCache persists tokens per username.
type TokenCache interface {
	// Load returns the cached token for username. ok is false when no
	// usable entry exists; expiry is not checked here.
	Load(username string) (tok Token, ok bool)

	// Save stores tok under username, replacing any previous entry.
	Save(username string, tok Token) error
}

// cacheEntry is the on-disk form of one user's token.
type cacheEntry struct {
	AccessToken string `json:"access_token"`
	ExpireDate  string `json:"expire_date"`
}

// FileTokenCache stores tokens in one JSON object keyed by username:
//
//	{"alice@example.com": {"access_token": "...", "expire_date": "2026-10-18T14:00:00+02:00"}}
//
// A missing or malformed file reads as empty. A malformed entry reads as
// absent and is replaced on the next Save. Other users' entries are
// preserved byte for byte.
//
// SECURITY: the file is written with 0600 permissions and token values are
// never logged.
type FileTokenCache struct {
	path   string
	logger Logger
}

// NewFileTokenCache creates a cache backed by path. The file is not touched
// until the first Load or Save.
func NewFileTokenCache(path string, logger Logger) *FileTokenCache {
	if path == "" {
		path = DefaultTokenCacheFile
	}
	return &FileTokenCache{path: path, logger: logger}
}

// Path returns the cache file location.
func (c *FileTokenCache) Path() string {
	return c.path
}

// Load implements TokenCache.
func (c *FileTokenCache) Load(username string) (Token, bool) {
	entries := c.read()

	raw, ok := entries[username]
	if !ok {
		return Token{}, false
	}

	tok, err := decodeEntry(raw)
	if err != nil {
		logWarn(c.logger, "ignoring invalid token cache entry",
			"path", c.path,
			"username", username,
			"error", err,
		)
		return Token{}, false
	}

	logDebug(c.logger, "loaded cached token", "username", username, "expire_at", tok.ExpireAt)
	return tok, true
}

// Save implements TokenCache.
func (c *FileTokenCache) Save(username string, tok Token) error {
	entries := c.read()

	raw, err := json.Marshal(cacheEntry{
		AccessToken: tok.AccessToken,
		ExpireDate:  tok.ExpireAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding token cache entry: %w", err)
	}
	entries[username] = raw

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding token cache: %w", err)
	}

	if err := writeFileAtomic(c.path, data); err != nil {
		logWarn(c.logger, "failed to write token cache", "path", c.path, "error", err)
		return fmt.Errorf("writing token cache: %w", err)
	}

	logInfo(c.logger, "cached token", "username", username, "expire_at", tok.ExpireAt.Format(time.RFC3339))
	return nil
}

// read returns the raw per-user entries. Any read or parse failure yields
// an empty map.
func (c *FileTokenCache) read() map[string]json.RawMessage {
	entries := make(map[string]json.RawMessage)

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logWarn(c.logger, "failed to read token cache", "path", c.path, "error", err)
		}
		return entries
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		logWarn(c.logger, "failed to parse token cache", "path", c.path, "error", err)
		return make(map[string]json.RawMessage)
	}

	return entries
}

func decodeEntry(raw json.RawMessage) (Token, error) {
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Token{}, err
	}
	if entry.AccessToken == "" {
		return Token{}, errors.New("missing access_token")
	}
	if entry.ExpireDate == "" {
		return Token{}, errors.New("missing expire_date")
	}

	expireAt, err := parseExpireDate(entry.ExpireDate)
	if err != nil {
		return Token{}, err
	}

	return Token{AccessToken: entry.AccessToken, ExpireAt: expireAt}, nil
}

// parseExpireDate accepts RFC 3339 and zone-less ISO-8601 timestamps.
func parseExpireDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(naiveISOLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expire_date %q: %w", s, err)
	}
	return t, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// MemoryTokenCache keeps tokens in process memory only.
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryTokenCache creates an empty in-memory cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]Token)}
}

// Load implements TokenCache.
func (c *MemoryTokenCache) Load(username string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[username]
	return tok, ok
}

// Save implements TokenCache.
func (c *MemoryTokenCache) Save(username string, tok Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[username] = tok
	return nil
}
