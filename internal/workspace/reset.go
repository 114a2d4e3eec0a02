package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rxbench/internal/supervise"
)

const backupSuffix = ".bak"

// DefaultScratchManifest creates the disposable manifest used during a reset.
var DefaultScratchManifest = []string{"cargo", "init", "--name", "temp", "--vcs", "none"}

// ResetManifest moves dir/Cargo.toml aside and runs scratch in dir to create
// a disposable one. The returned restore function puts the original back and
// must be called on every exit path; it is safe to call more than once.
//
// If the reset itself fails, the original is restored before returning and
// restore is a no-op.
func ResetManifest(ctx context.Context, r Runner, dir string, scratch []string) (restore func() error, err error) {
	original := filepath.Join(dir, ManifestName)
	backup := original + backupSuffix

	if _, err := os.Stat(backup); err == nil {
		return noop, fmt.Errorf("reset %s: stale backup %s exists", dir, backup)
	}
	if err := os.Rename(original, backup); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return noop, fmt.Errorf("reset %s: %w", dir, ErrNoManifest)
		}
		return noop, fmt.Errorf("reset %s: %w", dir, err)
	}

	done := false
	restore = func() error {
		if done {
			return nil
		}
		done = true
		if err := os.Remove(original); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove scratch manifest: %w", err)
		}
		if err := os.Rename(backup, original); err != nil {
			return fmt.Errorf("restore %s: %w", original, err)
		}
		return nil
	}

	if len(scratch) == 0 {
		scratch = DefaultScratchManifest
	}
	c := supervise.Command{Path: scratch[0], Args: scratch[1:], Dir: dir}
	if _, err := run(ctx, r, c); err != nil {
		if rerr := restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return noop, fmt.Errorf("reset %s: %w", dir, err)
	}
	return restore, nil
}

func noop() error { return nil }
