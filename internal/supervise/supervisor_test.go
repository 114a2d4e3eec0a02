package supervise

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process groups are not supported on windows")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func sh(dir, script string) Command {
	return Command{Path: "/bin/sh", Args: []string{"-c", script}, Dir: dir}
}

func quietSampler() MemorySampler {
	return SamplerFunc(func(context.Context, int) (uint64, error) { return 1, nil })
}

func TestRun_EmptyCommand(t *testing.T) {
	res := New(Options{}).Run(context.Background(), Command{})
	assert.Equal(t, StatusCrashed, res.Status)
	assert.ErrorIs(t, res.Err, ErrEmptyCommand)
}

func TestRun_MissingBinaryCrashes(t *testing.T) {
	res := New(Options{Sampler: quietSampler()}).Run(context.Background(), Command{
		Path: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	assert.Equal(t, StatusCrashed, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "start")
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	res := New(Options{Sampler: quietSampler()}).Run(context.Background(), sh(dir, `pwd; echo oops >&2; exit 3`))
	require.Equal(t, StatusExited, res.Status, "err: %v", res.Err)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.ExitCode)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(string(res.Stdout)))
	require.NoError(t, err)
	assert.Equal(t, want, got, "command must run in Command.Dir")
	assert.Equal(t, "oops\n", string(res.Stderr))
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestRun_EnvIsAppended(t *testing.T) {
	requireShell(t)
	c := sh(t.TempDir(), `printf %s "$RXBENCH_PROBE"`)
	c.Env = []string{"RXBENCH_PROBE=yes"}

	res := New(Options{Sampler: quietSampler()}).Run(context.Background(), c)
	require.Equal(t, StatusExited, res.Status)
	assert.Equal(t, "yes", string(res.Stdout))
}

func TestRun_OutputLimit(t *testing.T) {
	requireShell(t)
	res := New(Options{Sampler: quietSampler(), MaxOutput: 4}).Run(context.Background(), sh(t.TempDir(), `echo hello`))
	require.Equal(t, StatusExited, res.Status)
	assert.Equal(t, "hell", string(res.Stdout))
	assert.True(t, res.Truncated)
}

func TestRun_PeakMemoryIsMaximumSample(t *testing.T) {
	requireShell(t)
	readings := []uint64{10, 70, 30}
	var calls atomic.Int64
	sampler := SamplerFunc(func(_ context.Context, pid int) (uint64, error) {
		if pid <= 0 {
			return 0, errors.New("bad pid")
		}
		i := calls.Add(1) - 1
		if i < int64(len(readings)) {
			return readings[i], nil
		}
		return 5, nil
	})

	res := New(Options{Sampler: sampler, SampleInterval: 5 * time.Millisecond}).
		Run(context.Background(), sh(t.TempDir(), `sleep 0.3`))
	require.Equal(t, StatusExited, res.Status, "err: %v", res.Err)
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
	assert.Equal(t, uint64(70), res.PeakMemory)
}

func TestRun_SamplingErrorsAreSkipped(t *testing.T) {
	requireShell(t)
	var calls atomic.Int64
	sampler := SamplerFunc(func(context.Context, int) (uint64, error) {
		if calls.Add(1)%2 == 0 {
			return 0, errors.New("process vanished")
		}
		return 42, nil
	})

	res := New(Options{Sampler: sampler, SampleInterval: 5 * time.Millisecond}).
		Run(context.Background(), sh(t.TempDir(), `sleep 0.1`))
	require.Equal(t, StatusExited, res.Status)
	assert.Equal(t, uint64(42), res.PeakMemory)
}

func TestRun_SamplerStopsWithRun(t *testing.T) {
	requireShell(t)
	var calls atomic.Int64
	sampler := SamplerFunc(func(context.Context, int) (uint64, error) {
		calls.Add(1)
		return 1, nil
	})

	New(Options{Sampler: sampler, SampleInterval: time.Millisecond}).
		Run(context.Background(), sh(t.TempDir(), `exit 0`))
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "sampling continued after Run returned")
}

func TestRun_TimeoutKillsWholeGroup(t *testing.T) {
	requireShell(t)
	if runtime.GOOS != "linux" {
		t.Skip("liveness check reads /proc")
	}
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")

	const deadline = 200 * time.Millisecond
	const grace = 500 * time.Millisecond
	s := New(Options{Timeout: deadline, GracePeriod: grace, Sampler: quietSampler()})

	start := time.Now()
	res := s.Run(context.Background(), sh(dir, `sleep 2 & echo $! > child.pid; echo started; wait`))
	took := time.Since(start)

	assert.Equal(t, StatusTimedOut, res.Status)
	require.Error(t, res.Err)
	assert.Contains(t, string(res.Stdout), "started")
	assert.Less(t, took, deadline+2*grace+time.Second)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !alive(child) }, 2*time.Second, 20*time.Millisecond,
		"descendant %d survived the timeout", child)
}

func TestRun_TimeoutEscalatesWhenTermIgnored(t *testing.T) {
	requireShell(t)
	const deadline = 150 * time.Millisecond
	const grace = 300 * time.Millisecond
	s := New(Options{Timeout: deadline, GracePeriod: grace, Sampler: quietSampler()})

	start := time.Now()
	res := s.Run(context.Background(), sh(t.TempDir(), `trap '' TERM; while :; do sleep 0.05; done`))
	took := time.Since(start)

	assert.Equal(t, StatusTimedOut, res.Status)
	assert.GreaterOrEqual(t, took, deadline+grace)
	assert.Less(t, took, deadline+2*grace+time.Second)
}

func TestRun_StragglersKilledAfterLeaderExits(t *testing.T) {
	requireShell(t)
	if runtime.GOOS != "linux" {
		t.Skip("liveness check reads /proc")
	}
	dir := t.TempDir()
	s := New(Options{GracePeriod: 200 * time.Millisecond, Sampler: quietSampler()})

	res := s.Run(context.Background(), sh(dir, `sleep 5 >/dev/null 2>&1 & echo $! > child.pid`))
	require.Equal(t, StatusExited, res.Status, "err: %v", res.Err)

	raw, err := os.ReadFile(filepath.Join(dir, "child.pid"))
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !alive(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestRun_CancelledContextIsCrash(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s := New(Options{Timeout: time.Minute, GracePeriod: 300 * time.Millisecond, Sampler: quietSampler()})
	res := s.Run(ctx, sh(t.TempDir(), `sleep 10`))
	assert.Equal(t, StatusCrashed, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestTreeSampler_SelfIsMeasured(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip()
	}
	rss, err := TreeSampler{}.Sample(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.Greater(t, rss, uint64(0))
}

func TestSnapshot_DescendantsWalksEveryLevelOnce(t *testing.T) {
	proc := func(pid int32) *process.Process { return &process.Process{Pid: pid} }
	s := snapshot{
		1: {proc(2), proc(3)},
		2: {proc(4)},
		4: {proc(2)},
		9: {proc(10)},
	}

	var pids []int32
	for _, p := range s.descendants(1) {
		pids = append(pids, p.Pid)
	}
	assert.Equal(t, []int32{2, 3, 4}, pids)
	assert.Empty(t, s.descendants(3))
	assert.Empty(t, snapshot(nil).descendants(1))
}

func TestTreeSampler_CountsDescendantsWithinInterval(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("reads the /proc process table")
	}
	requireShell(t)

	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & sleep 30 & sleep 30 & wait")
	setProcessGroup(cmd)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = killGroup(cmd.Process)
		_ = cmd.Wait()
	})
	pid := int32(cmd.Process.Pid)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		return len(takeSnapshot(ctx).descendants(pid)) >= 3
	}, 5*time.Second, 10*time.Millisecond, "sleep children never showed up")

	shellOnly, err := (&process.Process{Pid: pid}).MemoryInfoWithContext(ctx)
	require.NoError(t, err)

	const samples = 20
	var tree uint64
	start := time.Now()
	for range samples {
		tree, err = TreeSampler{}.Sample(ctx, int(pid))
		require.NoError(t, err)
	}
	perSample := time.Since(start) / samples

	assert.Greater(t, tree, shellOnly.RSS, "children must add to the shell's own RSS")
	assert.Less(t, perSample, DefaultSampleInterval, "one sample must fit in the sampling interval")
}

func TestTreeSampler_GoneProcessErrors(t *testing.T) {
	_, err := TreeSampler{}.Sample(context.Background(), 1<<22+7)
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "exited", StatusExited.String())
	assert.Equal(t, "timed_out", StatusTimedOut.String())
	assert.Equal(t, "crashed", StatusCrashed.String())
}

// alive reports whether pid exists and is not a zombie.
func alive(pid int) bool {
	raw, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...
	s := string(raw)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] != 'Z'
}
