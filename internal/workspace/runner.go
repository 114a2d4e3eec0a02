package workspace

import (
	"context"
	"fmt"
	"strings"

	"rxbench/internal/supervise"
)

// Runner executes housekeeping commands (git, cargo, rustup).
// *supervise.Supervisor satisfies it.
type Runner interface {
	Run(ctx context.Context, c supervise.Command) supervise.Result
}

// run executes c and turns anything but a clean zero exit into an error.
func run(ctx context.Context, r Runner, c supervise.Command) (supervise.Result, error) {
	res := r.Run(ctx, c)
	switch {
	case res.Status != supervise.StatusExited:
		if res.Err != nil {
			return res, fmt.Errorf("%s: %s: %w", c, res.Status, res.Err)
		}
		return res, fmt.Errorf("%s: %s", c, res.Status)
	case res.ExitCode != 0:
		msg := strings.TrimSpace(string(res.Stderr))
		if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
			msg = msg[i+1:]
		}
		if msg == "" {
			return res, fmt.Errorf("%s: exit code %d", c, res.ExitCode)
		}
		return res, fmt.Errorf("%s: exit code %d: %s", c, res.ExitCode, msg)
	}
	return res, nil
}

// RunAll runs each argv in dir, stopping at the first failure.
func RunAll(ctx context.Context, r Runner, dir string, env []string, argvs [][]string) error {
	for _, argv := range argvs {
		if len(argv) == 0 {
			continue
		}
		c := supervise.Command{Path: argv[0], Args: argv[1:], Dir: dir, Env: env}
		if _, err := run(ctx, r, c); err != nil {
			return err
		}
	}
	return nil
}
