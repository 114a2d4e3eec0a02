package providers

import (
	"context"
	"fmt"

	"rxbench/internal/data"
	"rxbench/internal/fetcher"
)

type githubStarsFetcher struct{}

func (g *githubStarsFetcher) Key() data.DependencyKey { return data.DepGitHubStars }

func (g *githubStarsFetcher) Scope() data.FetchScope { return data.ScopeRepo }

func (g *githubStarsFetcher) Fetch(ctx context.Context, s data.Subject, f *fetcher.Fetcher) (any, error) {
	client := f.GitHub()
	if client == nil {
		return nil, fmt.Errorf("github stars: lookups disabled: %w", fetcher.ErrNotApplicable)
	}
	if !s.HasRepo() {
		return nil, fmt.Errorf("github stars: %w", fetcher.ErrNotApplicable)
	}
	if err := f.Budget().Acquire(ctx, 1); err != nil {
		return nil, err
	}

	stars, resp, err := client.Stars(ctx, s.Owner, s.Repo)
	if resp != nil {
		f.Budget().UpdateFromResponse(resp.Response)
	}
	if err != nil {
		return nil, fmt.Errorf("github stars %s/%s: %w", s.Owner, s.Repo, err)
	}
	return stars, nil
}

func init() {
	fetcher.RegisterDataFetcher(&githubStarsFetcher{})
}
