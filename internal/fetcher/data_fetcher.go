package fetcher

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"rxbench/internal/data"
)

// DataFetcher is one metadata provider. Implementations register themselves
// from init in the providers package.
type DataFetcher interface {
	Key() data.DependencyKey
	Scope() data.FetchScope
	Fetch(ctx context.Context, s data.Subject, f *Fetcher) (any, error)
}

var providers = struct {
	sync.RWMutex
	byKey map[data.DependencyKey]DataFetcher
}{byKey: make(map[data.DependencyKey]DataFetcher)}

// RegisterDataFetcher panics on a nil provider, an empty key or a key that
// is already taken.
func RegisterDataFetcher(df DataFetcher) {
	if df == nil {
		panic("fetcher: nil data fetcher")
	}
	k := df.Key()
	if k == "" {
		panic("fetcher: data fetcher with empty key")
	}

	providers.Lock()
	defer providers.Unlock()
	if prev, exists := providers.byKey[k]; exists {
		panic(fmt.Sprintf("fetcher: %s registered twice (%T, %T)", k, prev, df))
	}
	providers.byKey[k] = df
}

func ResolveDataFetcher(key data.DependencyKey) (DataFetcher, bool) {
	providers.RLock()
	defer providers.RUnlock()
	df, ok := providers.byKey[key]
	return df, ok
}

// RegisteredKeys returns the keys that have a provider, sorted.
func RegisteredKeys() []data.DependencyKey {
	providers.RLock()
	defer providers.RUnlock()
	return slices.Sorted(maps.Keys(providers.byKey))
}
