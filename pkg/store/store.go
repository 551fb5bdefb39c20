package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"chatdb/pkg/logger"
)

// schemaVersion is the current on-disk schema version. Migration is
// additive: older stores are upgraded in place on Open, newer stores are
// refused.
const schemaVersion = 1

var (
	// ErrNotOpen is returned when an operation runs against a store that
	// was never opened or was already closed.
	ErrNotOpen = errors.New("store not opened; call store.Open first")
	// ErrNotFound is returned for lookups of absent records.
	ErrNotFound = errors.New("record not found")
)

// Store is an embedded conversational data store backed by Pebble. One
// instance is constructed per process and passed by reference; it assumes
// a single logical writer.
type Store struct {
	db   *pebble.DB
	path string
	seq  uint64
}

// Open opens (or creates) the store at path and runs the version-gated
// schema migration. It fails when the underlying database cannot be
// opened or was written by a newer version.
func Open(path string) (*Store, error) {
	logger.Info("opening_store", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("storage unavailable at %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store_opened", "path", path, "schema", schemaVersion)
	return s, nil
}

// Close closes the underlying database. Subsequent operations fail with
// ErrNotOpen.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("store_closed", "path", s.path)
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

// Path returns the directory the store was opened at.
func (s *Store) Path() string {
	return s.path
}

// migrate reads the stored schema version and applies additive upgrades.
// A missing version key means a fresh store; it is stamped with the
// current version. There is no destructive migration.
func (s *Store) migrate() error {
	v, closer, err := s.db.Get([]byte(schemaKey))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("storage unavailable: read schema version: %w", err)
		}
		if err := s.db.Set([]byte(schemaKey), []byte(strconv.Itoa(schemaVersion)), pebble.Sync); err != nil {
			return fmt.Errorf("storage unavailable: stamp schema version: %w", err)
		}
		logger.Info("schema_created", "version", schemaVersion)
		return nil
	}
	defer closer.Close()
	have, err := strconv.Atoi(string(v))
	if err != nil {
		return fmt.Errorf("storage unavailable: corrupt schema version %q", string(v))
	}
	if have > schemaVersion {
		return fmt.Errorf("storage unavailable: store schema v%d is newer than supported v%d", have, schemaVersion)
	}
	if have < schemaVersion {
		// future versions hook their additive upgrades in here
		if err := s.db.Set([]byte(schemaKey), []byte(strconv.Itoa(schemaVersion)), pebble.Sync); err != nil {
			return fmt.Errorf("storage unavailable: upgrade schema version: %w", err)
		}
		logger.Info("schema_upgraded", "from", have, "to", schemaVersion)
	}
	return nil
}

// SchemaVersion returns the version stored in the database.
func (s *Store) SchemaVersion() (int, error) {
	if !s.Ready() {
		return 0, ErrNotOpen
	}
	v, closer, err := s.db.Get([]byte(schemaKey))
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return strconv.Atoi(string(v))
}

// GetKey returns the raw value stored under key. Callers should stick to
// a reserved namespace (e.g. "settings:").
func (s *Store) GetKey(key string) ([]byte, error) {
	if !s.Ready() {
		return nil, ErrNotOpen
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// SaveKey stores a raw key/value pair synchronously.
func (s *Store) SaveKey(key string, value []byte) error {
	if !s.Ready() {
		return ErrNotOpen
	}
	return s.db.Set([]byte(key), value, pebble.Sync)
}
