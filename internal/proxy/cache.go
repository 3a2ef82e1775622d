// Package proxy resolves the delegated wallet address orders are routed
// through for each trading account, with a persistent on-disk cache so the
// profile endpoint is queried at most once per EOA.
package proxy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Cache maps lowercased EOA addresses to resolved proxy wallet addresses.
// It is the one piece of mutable state shared across accounts; all access
// is serialized, and every update is written straight back to disk.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// OpenCache loads the cache file at path. A missing file yields an empty
// cache; a corrupt one is an error so a bad file never silently wipes
// resolved addresses.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read proxy cache %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("parse proxy cache %s: %w", path, err)
	}
	return c, nil
}

func (c *Cache) Get(eoa string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.entries[strings.ToLower(eoa)]
	return addr, ok
}

// Put records a resolution and flushes the file before returning.
func (c *Cache) Put(eoa, proxyAddr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(eoa)] = proxyAddr
	return c.flushLocked()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) flushLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal proxy cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write proxy cache %s: %w", c.path, err)
	}
	return nil
}
