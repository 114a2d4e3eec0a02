package supervise

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const (
	DefaultTimeout        = 600 * time.Second
	DefaultSampleInterval = 10 * time.Millisecond
	DefaultGracePeriod    = 5 * time.Second
)

// ErrEmptyCommand is returned (as Result.Err) when Command.Path is empty.
var ErrEmptyCommand = errors.New("supervise: empty command")

// Status is the coarse result of one supervised run.
type Status int

const (
	// StatusExited means the process exited on its own before the deadline.
	// The exit code is recorded but not interpreted.
	StatusExited Status = iota
	// StatusTimedOut means the deadline elapsed and the process group was
	// terminated.
	StatusTimedOut
	// StatusCrashed means the process could not be launched, waiting on it
	// failed, or the run was cancelled.
	StatusCrashed
)

func (s Status) String() string {
	switch s {
	case StatusExited:
		return "exited"
	case StatusTimedOut:
		return "timed_out"
	case StatusCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Command is one external invocation. Dir is always explicit; the
// supervisor never changes the process working directory.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env entries are appended to the current environment.
	Env []string
}

func (c Command) String() string {
	s := c.Path
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// Result describes one supervised run.
type Result struct {
	Status   Status
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Elapsed  time.Duration
	// PeakMemory is the largest resident set, in bytes, observed across the
	// process tree. Zero if no sample succeeded.
	PeakMemory uint64
	// Truncated reports that output beyond the capture limit was dropped.
	Truncated bool
	Err       error
}

// Options configure a Supervisor. Zero fields take the package defaults.
type Options struct {
	Timeout        time.Duration
	SampleInterval time.Duration
	GracePeriod    time.Duration
	// MaxOutput caps the bytes kept per stream. Zero or negative is unlimited.
	MaxOutput int64
	Sampler   MemorySampler
	Logger    *slog.Logger
}

// Supervisor runs external commands with a deadline, memory sampling and
// process-group cleanup. A Supervisor holds no per-run state and may be
// reused sequentially or concurrently.
type Supervisor struct {
	timeout   time.Duration
	interval  time.Duration
	grace     time.Duration
	maxOutput int64
	sampler   MemorySampler
	logger    *slog.Logger
}

func New(opts Options) *Supervisor {
	s := &Supervisor{
		timeout:   opts.Timeout,
		interval:  opts.SampleInterval,
		grace:     opts.GracePeriod,
		maxOutput: opts.MaxOutput,
		sampler:   opts.Sampler,
		logger:    opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.interval <= 0 {
		s.interval = DefaultSampleInterval
	}
	if s.grace <= 0 {
		s.grace = DefaultGracePeriod
	}
	if s.sampler == nil {
		s.sampler = TreeSampler{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Timeout returns the effective deadline.
func (s *Supervisor) Timeout() time.Duration { return s.timeout }

// Run executes c and blocks until the process exits, the deadline elapses,
// or ctx is cancelled. It never returns while its sampling goroutine is still
// running, and it always signals the whole process group before returning on
// the timeout and cancellation paths.
func (s *Supervisor) Run(ctx context.Context, c Command) Result {
	if c.Path == "" {
		return Result{Status: StatusCrashed, ExitCode: -1, Err: ErrEmptyCommand}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	stdout := newCapture(s.maxOutput)
	stderr := newCapture(s.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)
	// Descendants that inherit the pipes must not keep Wait blocked.
	cmd.WaitDelay = s.grace

	log := s.logger.With("cmd", c.Path, "dir", c.Dir)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{
			Status:   StatusCrashed,
			ExitCode: -1,
			Elapsed:  time.Since(start),
			Err:      fmt.Errorf("start %s: %w", c.Path, err),
		}
	}
	proc := cmd.Process
	log.Debug("process started", "pid", proc.Pid, "timeout", s.timeout)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	stop := make(chan struct{})
	peak := make(chan uint64, 1)
	go s.sample(proc.Pid, stop, peak)

	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	res := Result{ExitCode: -1}
	select {
	case err := <-exited:
		res.Elapsed = time.Since(start)
		close(stop)
		// The leader is gone; anything left in its group is a straggler.
		_ = killGroup(proc)
		res.Status, res.ExitCode, res.Err = classifyExit(cmd, err)

	case <-deadline.C:
		res.Elapsed = time.Since(start)
		close(stop)
		log.Info("deadline exceeded, terminating process group", "pid", proc.Pid, "timeout", s.timeout)
		if !s.terminate(proc, exited) {
			log.Warn("process group did not exit after SIGKILL", "pid", proc.Pid, "grace", s.grace)
		}
		res.Status = StatusTimedOut
		res.Err = fmt.Errorf("deadline of %s exceeded", s.timeout)

	case <-ctx.Done():
		res.Elapsed = time.Since(start)
		close(stop)
		log.Info("run cancelled, terminating process group", "pid", proc.Pid)
		if !s.terminate(proc, exited) {
			log.Warn("process group did not exit after SIGKILL", "pid", proc.Pid, "grace", s.grace)
		}
		res.Status = StatusCrashed
		res.Err = fmt.Errorf("run cancelled: %w", ctx.Err())
	}

	res.PeakMemory = <-peak
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Truncated = stdout.Truncated() || stderr.Truncated()

	log.Debug("process finished",
		"pid", proc.Pid,
		"status", res.Status.String(),
		"exit_code", res.ExitCode,
		"elapsed", res.Elapsed,
		"peak_memory", res.PeakMemory,
	)
	return res
}

// terminate sends SIGTERM to the group, waits one grace period, escalates to
// SIGKILL and waits one more. It reports whether the leader was reaped.
func (s *Supervisor) terminate(proc *os.Process, exited <-chan error) bool {
	_ = terminateGroup(proc)

	grace := time.NewTimer(s.grace)
	defer grace.Stop()
	select {
	case <-exited:
		_ = killGroup(proc)
		return true
	case <-grace.C:
	}

	_ = killGroup(proc)
	grace.Reset(s.grace)
	select {
	case <-exited:
		return true
	case <-grace.C:
		return false
	}
}

// sample measures the tree rooted at pid until stop is closed, then sends the
// maximum observed value on peak. Sampling errors are skipped.
func (s *Supervisor) sample(pid int, stop <-chan struct{}, peak chan<- uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	var highest uint64
	measure := func() {
		rss, err := s.sampler.Sample(ctx, pid)
		if err != nil {
			return
		}
		if rss > highest {
			highest = rss
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	measure()
	for {
		select {
		case <-stop:
			peak <- highest
			return
		case <-ticker.C:
			measure()
		}
	}
}

func classifyExit(cmd *exec.Cmd, err error) (Status, int, error) {
	if err == nil {
		return StatusExited, 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return StatusExited, exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		return StatusExited, code, nil
	}
	return StatusCrashed, -1, fmt.Errorf("wait: %w", err)
}
