// ABOUTME: Charm KV client wrapper implementing the local durable store.
// ABOUTME: Writes are synced to Charm Cloud when auto-sync is enabled.
package charm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"

	liftkv "github.com/harperreed/lift/internal/kv"
)

const (
	// DefaultDBName is the Charm KV database the engine uses.
	DefaultDBName = "lift"
	// DefaultHost is the Charm server used for sync.
	DefaultHost = "charm.2389.dev"
)

// ErrReadOnly is returned by writes when another process holds the database lock.
var ErrReadOnly = errors.New("cannot write: database is locked by another process (MCP server?)")

// Client is a liftkv.Store on top of Charm KV.
type Client struct {
	kv       *kv.KV
	autoSync bool
	mu       sync.RWMutex
}

// Options configures Open.
type Options struct {
	DBName   string
	Host     string
	AutoSync bool
}

// Open opens the Charm KV database. Remote data is pulled once on open
// unless the database is read-only.
func Open(opts Options) (*Client, error) {
	if opts.DBName == "" {
		opts.DBName = DefaultDBName
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}

	// Set server before opening KV
	if err := os.Setenv("CHARM_HOST", opts.Host); err != nil {
		return nil, err
	}

	db, err := kv.OpenWithDefaultsFallback(opts.DBName)
	if err != nil {
		return nil, fmt.Errorf("open charm kv: %w", err)
	}

	c := &Client{kv: db, autoSync: opts.AutoSync}
	if opts.AutoSync && !db.IsReadOnly() {
		_ = db.Sync()
	}
	return c, nil
}

// Close closes the KV database connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv != nil {
		return c.kv.Close()
	}
	return nil
}

// IsReadOnly returns true if the database is open in read-only mode.
// This happens when another process (like an MCP server) holds the lock.
func (c *Client) IsReadOnly() bool {
	return c.kv.IsReadOnly()
}

// Sync synchronizes local state with Charm Cloud.
func (c *Client) Sync() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.kv.IsReadOnly() {
		return nil
	}
	return c.kv.Sync()
}

// syncIfEnabled calls Sync if autoSync is enabled.
func (c *Client) syncIfEnabled() {
	if c.autoSync && !c.kv.IsReadOnly() {
		_ = c.kv.Sync()
	}
}

// AutoSync reports whether writes are pushed to Charm Cloud.
func (c *Client) AutoSync() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoSync
}

// ID returns the Charm user ID for the current account.
func (c *Client) ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("create charm client: %w", err)
	}
	return cc.ID()
}

// Reset wipes local data and rebuilds from Charm Cloud.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Reset()
}

// Get returns the value stored under key or liftkv.ErrNotFound.
func (c *Client) Get(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, err := c.kv.Get([]byte(key))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return v, nil
}

// Set stores a value with the given key.
func (c *Client) Set(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kv.IsReadOnly() {
		return ErrReadOnly
	}

	if err := c.kv.Set([]byte(key), data); err != nil {
		return err
	}
	c.syncIfEnabled()
	return nil
}

// Delete removes a key.
func (c *Client) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kv.IsReadOnly() {
		return ErrReadOnly
	}

	if err := c.kv.Delete([]byte(key)); err != nil {
		return mapNotFound(err)
	}
	c.syncIfEnabled()
	return nil
}

// Keys returns all keys with the given prefix, sorted.
func (c *Client) Keys(prefix string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys, err := c.kv.Keys()
	if err != nil {
		return nil, err
	}
	return filterPrefix(keys, prefix), nil
}

// mapNotFound translates badger's not-found error into the store contract.
func mapNotFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return liftkv.ErrNotFound
	}
	return err
}

// filterPrefix returns the keys starting with prefix as sorted strings.
func filterPrefix(keys [][]byte, prefix string) []string {
	p := []byte(prefix)
	var out []string
	for _, key := range keys {
		if bytes.HasPrefix(key, p) {
			out = append(out, string(key))
		}
	}
	sort.Strings(out)
	return out
}

var (
	_ liftkv.Store  = (*Client)(nil)
	_ liftkv.Lister = (*Client)(nil)
)
