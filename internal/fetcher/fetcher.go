package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rxbench/internal/cratesio"
	"rxbench/internal/data"
	gh "rxbench/internal/github"
)

// ErrNotApplicable is returned when a subject lacks the identity a provider
// needs (for example a non-GitHub URL for the stars lookup).
var ErrNotApplicable = errors.New("not applicable to subject")

const (
	DefaultCacheSize = 512
	// DefaultCratesInterval follows the crates.io crawler policy of one
	// request per second.
	DefaultCratesInterval = time.Second
)

type Fetcher struct {
	github       *gh.Client
	crates       *cratesio.Client
	budget       *RequestBudget
	cratesBudget *RequestBudget
	group        Group
	cache        *Cache
	logger       *slog.Logger
}

type Options struct {
	GitHub       *gh.Client
	Crates       *cratesio.Client
	Budget       *RequestBudget
	CratesBudget *RequestBudget
	CacheSize    int
	Logger       *slog.Logger
}

func NewFetcher(opts Options) (*Fetcher, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := NewCache(size)
	if err != nil {
		return nil, err
	}
	f := &Fetcher{
		github:       opts.GitHub,
		crates:       opts.Crates,
		budget:       opts.Budget,
		cratesBudget: opts.CratesBudget,
		cache:        cache,
		logger:       opts.Logger,
	}
	if f.budget == nil {
		f.budget = NewRequestBudget()
	}
	if f.cratesBudget == nil {
		f.cratesBudget = NewRequestBudget(WithMinInterval(DefaultCratesInterval))
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger.Debug("metadata providers", "keys", RegisteredKeys(),
		"github", f.github != nil, "crates", f.crates != nil)
	return f, nil
}

// Budget is the GitHub request budget.
func (f *Fetcher) Budget() *RequestBudget {
	return f.budget
}

// CratesBudget paces crates.io requests.
func (f *Fetcher) CratesBudget() *RequestBudget {
	return f.cratesBudget
}

// GitHub returns the GitHub client, or nil when lookups are disabled.
func (f *Fetcher) GitHub() *gh.Client {
	return f.github
}

// Crates returns the crates.io client, or nil when lookups are disabled.
func (f *Fetcher) Crates() *cratesio.Client {
	return f.crates
}

// Fetch returns the value of key for s. Results are cached per provider
// scope and concurrent identical requests share one call. Errors are not
// cached.
func (f *Fetcher) Fetch(ctx context.Context, s data.Subject, key data.DependencyKey) (any, error) {
	if ctx == nil {
		return nil, fmt.Errorf("Fetch: nil context")
	}
	if f == nil {
		return nil, fmt.Errorf("Fetch: nil Fetcher")
	}
	if f.cache == nil {
		return nil, fmt.Errorf("Fetch: nil cache (use NewFetcher)")
	}
	if key == "" {
		return nil, fmt.Errorf("Fetch: empty dependency key")
	}

	impl, ok := ResolveDataFetcher(key)
	if !ok {
		return nil, fmt.Errorf("unsupported dependency key: %s", key)
	}

	flightKey, err := makeFlightKey(s, impl.Scope(), key)
	if err != nil {
		return nil, err
	}

	if val, ok := f.cache.Get(flightKey); ok {
		return val, nil
	}

	val, err, shared := f.group.Do(flightKey, func() (any, error) {
		return impl.Fetch(ctx, s, f)
	})
	if shared {
		f.logger.Debug("fetch shared with concurrent caller", "key", flightKey)
	}
	if err != nil {
		return nil, err
	}
	f.cache.Set(flightKey, val)
	return val, nil
}

// FetchAll fetches every key for s. Failed keys are absent from the context
// and reported in errs; they never abort the others.
func (f *Fetcher) FetchAll(ctx context.Context, s data.Subject, keys []data.DependencyKey) (*data.MapDataContext, map[data.DependencyKey]error) {
	values := make(map[data.DependencyKey]any, len(keys))
	var errs map[data.DependencyKey]error
	for _, k := range keys {
		v, err := f.Fetch(ctx, s, k)
		if err != nil {
			if errs == nil {
				errs = make(map[data.DependencyKey]error)
			}
			errs[k] = err
			continue
		}
		values[k] = v
	}
	return data.NewMapDataContext(values), errs
}

func makeFlightKey(s data.Subject, scope data.FetchScope, key data.DependencyKey) (string, error) {
	switch scope {
	case data.ScopeRepo, data.ScopeCrate:
	default:
		return "", fmt.Errorf("Fetch: unknown fetch scope %q for dependency: %s", scope, key)
	}
	id := s.CacheID(scope)
	if id == "" {
		return "", fmt.Errorf("Fetch: %s: %w", key, ErrNotApplicable)
	}
	return string(scope) + ":" + id + ":" + string(key), nil
}
