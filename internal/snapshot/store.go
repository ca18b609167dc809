// ABOUTME: Snapshot store persisting the active session into the durable local store.
// ABOUTME: A single well-known key holds the current snapshot; last writer wins.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/harperreed/lift/internal/kv"
)

// Key is where the current snapshot lives in the durable store.
const Key = "session:current"

// Store reads and writes the current session snapshot.
type Store struct {
	kv kv.Store
}

// NewStore creates a Store on top of a durable key-value store.
func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

// Save writes the snapshot, replacing any previous one.
func (s *Store) Save(snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := s.kv.Set(Key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, ErrNoSnapshot if there is none, or an
// error wrapping ErrCorrupt / ErrUnsupportedVersion.
func (s *Store) Load() (*Snapshot, error) {
	data, err := s.kv.Get(Key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return Decode(data)
}

// Clear deletes the stored snapshot. Clearing when none exists is not an error.
func (s *Store) Clear() error {
	if err := s.kv.Delete(Key); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Exists reports whether a snapshot is stored, readable or not.
func (s *Store) Exists() bool {
	_, err := s.kv.Get(Key)
	return err == nil
}
