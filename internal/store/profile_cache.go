// Package store persists owner profile summaries in SQLite so that repeated
// lookups skip the CloudManager detail fan-out.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// CacheVersion namespaces every key. Bump it when the payload shape changes;
// rows written under another version are never returned.
const CacheVersion = "v1.0.0"

// DefaultTTL is used when the cache is opened with a non-positive TTL.
const DefaultTTL = time.Hour

// Entry is a cached payload and its metadata.
type Entry struct {
	OwnerID     string
	Fingerprint string
	Payload     json.RawMessage
	CachedAt    time.Time
}

// MissReason says why Get returned nothing.
type MissReason string

const (
	MissNone        MissReason = ""
	MissAbsent      MissReason = "absent"
	MissFingerprint MissReason = "fingerprint_changed"
	MissExpired     MissReason = "expired"
)

// ProfileCache is a TTL cache of owner summaries keyed by owner id.
type ProfileCache struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	ttl    time.Duration
	logger *zap.Logger

	hits   int
	misses int
}

// NewProfileCache opens (or creates) the cache database at path. Use
// ":memory:" for a throwaway cache.
func NewProfileCache(path string, ttl time.Duration, logger *zap.Logger) (*ProfileCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	c := &ProfileCache{db: db, dbPath: path, ttl: ttl, logger: logger}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("Profile cache opened", zap.String("path", path), zap.Duration("ttl", ttl))
	return c, nil
}

func (c *ProfileCache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profile_cache (
		cache_key TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		cache_version TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		payload TEXT NOT NULL,
		cached_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profile_cache_owner ON profile_cache(owner_id);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Rows from older cache versions can never be read again.
	res, err := c.db.Exec(`DELETE FROM profile_cache WHERE cache_version != ?`, CacheVersion)
	if err != nil {
		return fmt.Errorf("failed to purge stale cache versions: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.logger.Info("Purged profile cache rows from older versions", zap.Int64("rows", n))
	}
	return nil
}

// Close closes the database connection.
func (c *ProfileCache) Close() error {
	return c.db.Close()
}

// TTL returns the maximum age of a usable entry.
func (c *ProfileCache) TTL() time.Duration {
	return c.ttl
}

func cacheKey(ownerID string) string {
	return "profile_data:" + CacheVersion + ":" + ownerID
}

// Get returns the entry for ownerID if it exists, was stored under the same
// fingerprint, and is no older than the TTL at now. Entries that fail the
// fingerprint or age check are deleted.
func (c *ProfileCache) Get(ownerID, fingerprint string, now time.Time) (*Entry, MissReason, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		e        Entry
		payload  string
		cachedAt int64
	)
	err := c.db.QueryRow(
		`SELECT owner_id, fingerprint, payload, cached_at FROM profile_cache WHERE cache_key = ?`,
		cacheKey(ownerID),
	).Scan(&e.OwnerID, &e.Fingerprint, &payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses++
		c.logger.Debug("Profile cache miss", zap.String("owner", ownerID))
		return nil, MissAbsent, nil
	}
	if err != nil {
		return nil, MissNone, fmt.Errorf("failed to read cache entry: %w", err)
	}
	e.Payload = json.RawMessage(payload)
	e.CachedAt = time.Unix(0, cachedAt)

	reason := MissNone
	switch {
	case e.Fingerprint != fingerprint:
		reason = MissFingerprint
	case now.Sub(e.CachedAt) > c.ttl:
		reason = MissExpired
	}
	if reason != MissNone {
		c.misses++
		if err := c.deleteLocked(ownerID); err != nil {
			return nil, reason, err
		}
		c.logger.Info("Profile cache invalidated",
			zap.String("owner", ownerID),
			zap.String("reason", string(reason)),
			zap.Duration("age", now.Sub(e.CachedAt)))
		return nil, reason, nil
	}

	c.hits++
	c.logger.Debug("Profile cache hit", zap.String("owner", ownerID), zap.Duration("age", now.Sub(e.CachedAt)))
	return &e, MissNone, nil
}

// Put stores payload for ownerID under fingerprint, replacing any entry.
func (c *ProfileCache) Put(ownerID, fingerprint string, payload any, now time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.Exec(`
		INSERT INTO profile_cache (cache_key, owner_id, cache_version, fingerprint, payload, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			payload = excluded.payload,
			cached_at = excluded.cached_at`,
		cacheKey(ownerID), ownerID, CacheVersion, fingerprint, string(data), now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	c.logger.Debug("Profile cached", zap.String("owner", ownerID), zap.Int("bytes", len(data)))
	return nil
}

// Invalidate removes the entry for ownerID, if any.
func (c *ProfileCache) Invalidate(ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(ownerID)
}

func (c *ProfileCache) deleteLocked(ownerID string) error {
	if _, err := c.db.Exec(`DELETE FROM profile_cache WHERE cache_key = ?`, cacheKey(ownerID)); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Stats reports entry count and hit/miss counters since open.
func (c *ProfileCache) Stats() (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM profile_cache`).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return map[string]int{
		"entries": count,
		"hits":    c.hits,
		"misses":  c.misses,
	}, nil
}

// Fingerprint hashes v's JSON encoding and keeps the first 16 hex characters.
// Map keys are sorted by encoding/json, so equal content hashes equally.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}
