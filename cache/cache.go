// Package cache stores compiled bytecode images in a SQLite database,
// keyed by the sha256 digest of the source text.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/vrtbl/passerine/vm"
)

var log = commonlog.GetLogger("passerine.cache")

const schema = `
CREATE TABLE IF NOT EXISTS images (
	source_hash TEXT PRIMARY KEY,
	image       BLOB NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// Store is a content-addressed cache of compiled bytecode images.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary initializes) a cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SourceKey digests a source text into its cache key.
func SourceKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Load returns the cached lambda for a source key, or nil when absent
// or unreadable. A corrupt entry is evicted rather than surfaced.
func (s *Store) Load(key string) *vm.Lambda {
	var blob []byte
	err := s.db.QueryRow(`SELECT image FROM images WHERE source_hash = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		log.Errorf("load %s: %s", key, err.Error())
		return nil
	}
	lambda, derr := vm.DecodeImage(blob)
	if derr != nil {
		log.Warningf("evicting corrupt image %s: %s", key, derr.Error())
		s.Evict(key)
		return nil
	}
	log.Debugf("hit %s", key)
	return lambda
}

// Save serializes a lambda under the source key.
func (s *Store) Save(key string, lambda *vm.Lambda) error {
	blob, err := vm.EncodeImage(lambda)
	if err != nil {
		return fmt.Errorf("cache: encode image: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO images (source_hash, image, created_at) VALUES (?, ?, ?)`,
		key, blob, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache: save %s: %w", key, err)
	}
	log.Debugf("stored %s (%d bytes)", key, len(blob))
	return nil
}

// Evict removes an entry.
func (s *Store) Evict(key string) {
	if _, err := s.db.Exec(`DELETE FROM images WHERE source_hash = ?`, key); err != nil {
		log.Errorf("evict %s: %s", key, err.Error())
	}
}

// Count returns the number of cached images.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}
