package engine

import (
	"context"
	"errors"

	"rxbench/internal/results"
	"rxbench/internal/workspace"
)

// Resolver turns a target into a workspace; *workspace.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, t workspace.Target) (*workspace.Workspace, error)
}

type Scheduler struct {
	analyzer *Analyzer
	resolver Resolver
}

func NewScheduler(a *Analyzer, r Resolver) (*Scheduler, error) {
	if a == nil {
		return nil, errors.New("analyzer is nil")
	}
	if r == nil {
		return nil, errors.New("resolver is nil")
	}
	return &Scheduler{analyzer: a, resolver: r}, nil
}

// Execute analyzes targets strictly in order and streams progress.
//
// Channel semantics:
//   - For every target reached, one PhaseStarted result, one PhaseUnit result
//     per analyzed unit, and one PhaseFinished result carrying the report are
//     sent, in that order.
//   - On context cancellation, the scheduler stops after the current unit; it
//     may finish fewer targets than given.
//   - The results channel and error channel are both closed reliably.
//   - The error channel carries fatal errors and cancellation; per-repository
//     resolution failures travel on RepoExecutionResult.Err.
func (s *Scheduler) Execute(ctx context.Context, targets []workspace.Target, pops []results.Popularity) (<-chan RepoExecutionResult, <-chan error) {
	resultsCh := make(chan RepoExecutionResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if s == nil || s.analyzer == nil || s.resolver == nil {
			trySendErr(errors.New("scheduler is not initialized; use NewScheduler"))
			return
		}
		if pops != nil && len(pops) != len(targets) {
			trySendErr(errors.New("popularity list does not match targets"))
			return
		}

		send := func(r RepoExecutionResult) bool {
			select {
			case resultsCh <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for i, t := range targets {
			if ctx.Err() != nil {
				break
			}
			var pop results.Popularity
			if pops != nil {
				pop = pops[i]
			}

			if !send(RepoExecutionResult{Index: i, Target: t, Phase: PhaseStarted}) {
				break
			}

			aborted := false
			emit := func(u results.UnitResult) {
				if !send(RepoExecutionResult{Index: i, Target: t, Phase: PhaseUnit, Unit: &u}) {
					aborted = true
				}
			}
			report, err := s.analyzer.AnalyzeRepository(ctx, s.resolver, t, pop, emit)
			if aborted {
				break
			}
			if !send(RepoExecutionResult{Index: i, Target: t, Phase: PhaseFinished, Report: &report, Err: err}) {
				break
			}
		}

		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}
