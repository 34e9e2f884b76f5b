package storage

import (
	"fmt"
	"sync"
)

// Cache maps project ids to open stores. The embedded engine does not support
// safe concurrent writers from multiple handles to the same file, so at most
// one physical handle exists per project; every caller shares it and the
// Store's own lock serializes access.
type Cache struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewCache returns an empty connection cache.
func NewCache() *Cache {
	return &Cache{stores: make(map[string]*Store)}
}

// Acquire returns the open store for projectID, opening the database at path
// on first access.
func (c *Cache) Acquire(projectID, path string) (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if store, ok := c.stores[projectID]; ok {
		return store, nil
	}
	store, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open project %s: %w", projectID, err)
	}
	c.stores[projectID] = store
	return store, nil
}

// Release closes and removes the store for projectID. Releasing a project
// with no open store is a no-op, so teardown paths can call it
// unconditionally.
func (c *Cache) Release(projectID string) error {
	c.mu.Lock()
	store, ok := c.stores[projectID]
	delete(c.stores, projectID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close project %s: %w", projectID, err)
	}
	return nil
}

// CloseAll closes every open store. The first error is returned after all
// stores have been attempted.
func (c *Cache) CloseAll() error {
	c.mu.Lock()
	stores := make([]*Store, 0, len(c.stores))
	for id, store := range c.stores {
		stores = append(stores, store)
		delete(c.stores, id)
	}
	c.mu.Unlock()

	var firstErr error
	for _, store := range stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open reports how many stores are currently cached.
func (c *Cache) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stores)
}
