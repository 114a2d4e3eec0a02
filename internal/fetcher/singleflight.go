package fetcher

import (
	"golang.org/x/sync/singleflight"
)

// Group deduplicates concurrent fetches of the same flight key.
type Group struct {
	g singleflight.Group
}

// Do runs fn once per key among concurrent callers. shared reports whether
// the result was handed to more than one caller.
func (g *Group) Do(key string, fn func() (any, error)) (v any, err error, shared bool) {
	return g.g.Do(key, fn)
}
