package providers

import (
	"context"
	"fmt"

	"rxbench/internal/data"
	"rxbench/internal/fetcher"
)

type cratesDownloadsFetcher struct{}

func (c *cratesDownloadsFetcher) Key() data.DependencyKey { return data.DepCratesDownloads }

func (c *cratesDownloadsFetcher) Scope() data.FetchScope { return data.ScopeCrate }

func (c *cratesDownloadsFetcher) Fetch(ctx context.Context, s data.Subject, f *fetcher.Fetcher) (any, error) {
	client := f.Crates()
	if client == nil {
		return nil, fmt.Errorf("crates.io downloads: lookups disabled: %w", fetcher.ErrNotApplicable)
	}
	if err := f.CratesBudget().Acquire(ctx, 1); err != nil {
		return nil, err
	}
	n, err := client.Downloads(ctx, s.Crate)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func init() {
	fetcher.RegisterDataFetcher(&cratesDownloadsFetcher{})
}
