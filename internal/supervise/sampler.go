package supervise

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// MemorySampler measures the resident memory of a process tree.
type MemorySampler interface {
	// Sample returns the summed RSS, in bytes, of pid and its live
	// descendants. An error means the sample is unusable and is skipped.
	Sample(ctx context.Context, pid int) (uint64, error)
}

// TreeSampler reads RSS for a process and its descendants through gopsutil.
// Each sample lists the process table once and walks the parent links from
// that snapshot. Descendants that vanish or cannot be read mid-sample are
// left out rather than failing it.
type TreeSampler struct{}

func (TreeSampler) Sample(ctx context.Context, pid int) (uint64, error) {
	root := &process.Process{Pid: int32(pid)}
	rootMem, err := root.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}

	total := rootMem.RSS
	for _, p := range takeSnapshot(ctx).descendants(root.Pid) {
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			total += mem.RSS
		}
	}
	return total, nil
}

// snapshot maps a parent pid to its direct children at one instant.
type snapshot map[int32][]*process.Process

// takeSnapshot reads every process's parent once. The processes are built
// directly from their pids: process.NewProcess costs extra syscalls per pid
// that a 10ms sampling budget cannot afford. A table that cannot be listed
// yields an empty snapshot, which counts the root alone.
func takeSnapshot(ctx context.Context) snapshot {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil
	}
	s := make(snapshot, len(pids))
	for _, pid := range pids {
		p := &process.Process{Pid: pid}
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			continue
		}
		s[ppid] = append(s[ppid], p)
	}
	return s
}

// descendants lists every process below pid, breadth first.
func (s snapshot) descendants(pid int32) []*process.Process {
	var out []*process.Process
	seen := map[int32]struct{}{pid: {}}
	queue := []int32{pid}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range s[parent] {
			if _, ok := seen[child.Pid]; ok {
				continue
			}
			seen[child.Pid] = struct{}{}
			out = append(out, child)
			queue = append(queue, child.Pid)
		}
	}
	return out
}

// SamplerFunc adapts a function to MemorySampler.
type SamplerFunc func(ctx context.Context, pid int) (uint64, error)

func (f SamplerFunc) Sample(ctx context.Context, pid int) (uint64, error) {
	return f(ctx, pid)
}
