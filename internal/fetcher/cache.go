package fetcher

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded, concurrency-safe store of fetched values.
type Cache struct {
	data *lru.Cache[string, any]
}

func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("create fetch cache: %w", err)
	}
	return &Cache{data: c}, nil
}

func (c *Cache) Get(key string) (any, bool) {
	return c.data.Get(key)
}

func (c *Cache) Set(key string, value any) {
	c.data.Add(key, value)
}

func (c *Cache) Len() int {
	return c.data.Len()
}
