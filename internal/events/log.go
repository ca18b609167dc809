// ABOUTME: Bounded durable event log kept in the local store.
// ABOUTME: Oldest entries are evicted once the cap is reached.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
)

const (
	// LogKey is where the durable event log lives.
	LogKey = "events:log"
	// DefaultLogCap is the maximum retained event count.
	DefaultLogCap = 500
)

// Log is a capped, append-only list of events persisted as one JSON array.
type Log struct {
	mu    sync.Mutex
	store kv.Store
	max   int
}

// NewLog creates a Log. A non-positive max uses DefaultLogCap.
func NewLog(store kv.Store, max int) *Log {
	if max <= 0 {
		max = DefaultLogCap
	}
	return &Log{store: store, max: max}
}

// Append adds events and evicts the oldest beyond the cap.
func (l *Log) Append(batch []models.BufferedEvent) error {
	if len(batch) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		// An unreadable log is replaced rather than blocking new events.
		entries = nil
	}
	entries = append(entries, batch...)
	if over := len(entries) - l.max; over > 0 {
		entries = entries[over:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal event log: %w", err)
	}
	if err := l.store.Set(LogKey, data); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	return nil
}

// Entries returns the retained events, oldest first.
func (l *Log) Entries() ([]models.BufferedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

// Clear removes every retained event.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Delete(LogKey); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("clear event log: %w", err)
	}
	return nil
}

func (l *Log) readLocked() ([]models.BufferedEvent, error) {
	data, err := l.store.Get(LogKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	var entries []models.BufferedEvent
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal event log: %w", err)
	}
	return entries, nil
}
