package raster

import "sync"

// blockCache is a bounded FIFO of decoded blocks.
type blockCache struct {
	mu    sync.Mutex
	limit int
	order []int
	items map[int][]byte
}

func newBlockCache(limit int) *blockCache {
	return &blockCache{limit: limit, items: make(map[int][]byte)}
}

func (c *blockCache) get(idx int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.items[idx]
	return b, ok
}

func (c *blockCache) put(idx int, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[idx]; ok {
		return
	}
	for len(c.order) >= c.limit {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
	c.items[idx] = b
	c.order = append(c.order, idx)
}

func (c *blockCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[int][]byte)
	c.order = nil
}

func (c *blockCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
