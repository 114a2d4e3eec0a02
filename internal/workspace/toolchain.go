package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rxbench/internal/supervise"
)

// PrepareToolchain selects a rustup toolchain (when one is named) and returns
// environment entries pointing LD_LIBRARY_PATH at its sysroot, which the
// analysis tool links against dynamically.
func PrepareToolchain(ctx context.Context, r Runner, dir, rustup, rustc, toolchain string) ([]string, error) {
	if toolchain != "" {
		c := supervise.Command{Path: orDefault(rustup, "rustup"), Args: []string{"default", toolchain}, Dir: dir}
		if _, err := run(ctx, r, c); err != nil {
			return nil, fmt.Errorf("select toolchain %s: %w", toolchain, err)
		}
	}

	res, err := run(ctx, r, supervise.Command{Path: orDefault(rustc, "rustc"), Args: []string{"--print", "sysroot"}, Dir: dir})
	if err != nil {
		return nil, fmt.Errorf("locate sysroot: %w", err)
	}
	sysroot := strings.TrimSpace(string(res.Stdout))
	if sysroot == "" {
		return nil, fmt.Errorf("locate sysroot: empty output")
	}

	lib := filepath.Join(sysroot, "lib")
	if prev := os.Getenv("LD_LIBRARY_PATH"); prev != "" {
		lib += string(os.PathListSeparator) + prev
	}
	return []string{"LD_LIBRARY_PATH=" + lib}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
