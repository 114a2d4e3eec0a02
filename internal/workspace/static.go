package workspace

import (
	"errors"
	"log/slog"

	"rxbench/internal/results"
)

// CollectStatic computes the tool-independent counts for a unit root. It
// never fails: problems are logged and the affected counts read zero.
func CollectStatic(root string, logger *slog.Logger) results.StaticCounts {
	var counts results.StaticCounts

	loc, err := CountLines(root)
	if err != nil {
		logger.Warn("line count incomplete", "root", root, "err", err)
	}
	counts.LinesOfCode = loc

	m, err := ReadManifest(root)
	switch {
	case errors.Is(err, ErrNoManifest):
		logger.Debug("no manifest, dependency and feature counts are zero", "root", root)
	case err != nil:
		logger.Warn("manifest unreadable, dependency and feature counts are zero", "root", root, "err", err)
	default:
		counts.Dependencies = m.DependencyCount()
		counts.Features = m.FeatureCount()
	}
	return counts
}
