package engine

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"rxbench/internal/data"
	"rxbench/internal/fetcher"
	gh "rxbench/internal/github"
	"rxbench/internal/results"
	"rxbench/internal/workspace"
)

// subjectFor maps a target onto the lookup subject: the GitHub repository
// when the URL names one, and the crate named after the repository.
func subjectFor(t workspace.Target) data.Subject {
	s := data.Subject{Crate: t.Name}
	if owner, repo, ok := gh.ParseRepoURL(t.URL); ok {
		s.Owner, s.Repo = owner, repo
	}
	return s
}

// lookupPopularity never fails: each annotation that cannot be fetched is
// left unavailable.
func lookupPopularity(ctx context.Context, f *fetcher.Fetcher, t workspace.Target, logger *slog.Logger) results.Popularity {
	var p results.Popularity
	if f == nil {
		return p
	}

	dc, errs := f.FetchAll(ctx, subjectFor(t), data.AllKeys())
	for key, err := range errs {
		if errors.Is(err, fetcher.ErrNotApplicable) {
			logger.Debug("metadata not applicable", "repo", t.Name, "key", key)
			continue
		}
		logger.Warn("metadata unavailable", "repo", t.Name, "key", key, "err", err)
	}

	if n, ok := data.Number(dc, data.DepGitHubStars); ok {
		p.Stars = results.Of(n)
	}
	if n, ok := data.Number(dc, data.DepCratesDownloads); ok {
		p.Downloads = results.Of(n)
	}
	return p
}

// prefetchPopularity looks up every target concurrently, at most limit at a
// time. The result is index-aligned with targets.
func prefetchPopularity(ctx context.Context, f *fetcher.Fetcher, targets []workspace.Target, limit int, logger *slog.Logger) []results.Popularity {
	pops := make([]results.Popularity, len(targets))
	if f == nil || len(targets) == 0 {
		return pops
	}
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, t := range targets {
		g.Go(func() error {
			pops[i] = lookupPopularity(gctx, f, t, logger)
			return nil
		})
	}
	_ = g.Wait()
	return pops
}
