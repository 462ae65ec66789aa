package cache

import (
	"sync"
	"time"
)

// Item represents a cached value with expiration
type Item struct {
	Data      interface{}
	ExpiresAt time.Time
}

// Cache is a simple in-memory TTL cache. The ask path uses it to avoid
// re-embedding repeated questions.
type Cache struct {
	items map[string]*Item
	mutex sync.RWMutex
}

// New creates a new cache instance
func New() *Cache {
	return &Cache{
		items: make(map[string]*Item),
	}
}

// Get retrieves an item from the cache. Expired items are removed on access.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	item, exists := c.items[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	if time.Now().After(item.ExpiresAt) {
		c.mutex.Lock()
		// Re-check under the write lock: a Set may have replaced the item
		if current, ok := c.items[key]; ok && current == item {
			delete(c.items, key)
		}
		c.mutex.Unlock()
		return nil, false
	}

	return item.Data, true
}

// Set stores an item in the cache with TTL
func (c *Cache) Set(key string, data interface{}, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &Item{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]*Item)
}

// Len reports the number of stored items, expired ones included
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}
