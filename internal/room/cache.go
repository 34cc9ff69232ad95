package room

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// viewCache holds read-only views of finished rooms. Live rooms are never
// stored here; they stay pinned in the manager until closed.
type viewCache struct {
	lru *expirable.LRU[string, *RoomView]
}

func newViewCache(size int, ttl time.Duration) *viewCache {
	if size <= 0 {
		size = 1024
	}
	return &viewCache{lru: expirable.NewLRU[string, *RoomView](size, nil, ttl)}
}

func (c *viewCache) get(roomID string) (*RoomView, bool) {
	return c.lru.Get(roomID)
}

func (c *viewCache) put(v *RoomView) {
	c.lru.Add(v.RoomID, v)
}

func (c *viewCache) forget(roomID string) {
	c.lru.Remove(roomID)
}

func (c *viewCache) len() int {
	return c.lru.Len()
}
