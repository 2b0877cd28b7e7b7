package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo holds information about a managed engine process
type ProcessInfo struct {
	PID       int
	JobID     string
	StartTime time.Time

	exited <-chan struct{}
}

// ProcessStats is a resource snapshot of one tracked process.
type ProcessStats struct {
	PID        int           `json:"pid"`
	JobID      string        `json:"jobId"`
	Runtime    time.Duration `json:"runtime"`
	CPUPercent float64       `json:"cpuPercent"`
	RSSBytes   uint64        `json:"rssBytes"`
	Children   int           `json:"children"`
}

// Registry tracks every live engine process so it can be torn down on stop
// or at shutdown. It is safe for concurrent use.
type Registry struct {
	processes   map[int]*ProcessInfo
	mu          sync.RWMutex
	gracePeriod time.Duration
	logger      hclog.Logger
}

// Global registry instance
var (
	globalRegistry   *Registry
	registryInitOnce sync.Once
)

// GetRegistry returns the process-wide registry. Only the first call's
// arguments take effect.
func GetRegistry(logger hclog.Logger, gracePeriod time.Duration) *Registry {
	registryInitOnce.Do(func() {
		globalRegistry = NewRegistry(logger, gracePeriod)
	})
	return globalRegistry
}

// NewRegistry creates an isolated process registry.
func NewRegistry(logger hclog.Logger, gracePeriod time.Duration) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if gracePeriod <= 0 {
		gracePeriod = 5 * time.Second
	}
	return &Registry{
		processes:   make(map[int]*ProcessInfo),
		gracePeriod: gracePeriod,
		logger:      logger.Named("process-registry"),
	}
}

// Register adds a process. exited must close once the process has been reaped.
func (r *Registry) Register(pid int, jobID string, exited <-chan struct{}) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.processes[pid]; ok {
		return fmt.Errorf("process %d already registered for job %s", pid, existing.JobID)
	}

	r.processes[pid] = &ProcessInfo{
		PID:       pid,
		JobID:     jobID,
		StartTime: time.Now(),
		exited:    exited,
	}

	r.logger.Debug("registered process", "pid", pid, "job_id", jobID)
	return nil
}

// Unregister removes a process from the registry
func (r *Registry) Unregister(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.processes[pid]; ok {
		delete(r.processes, pid)
		r.logger.Debug("unregistered process", "pid", pid, "job_id", info.JobID)
	}
}

// Get returns information about a specific process
func (r *Registry) Get(pid int) (*ProcessInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.processes[pid]
	return info, ok
}

// Count returns the number of tracked processes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processes)
}

func (r *Registry) snapshot() []*ProcessInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*ProcessInfo, 0, len(r.processes))
	for _, info := range r.processes {
		infos = append(infos, info)
	}
	return infos
}

// Terminate stops a tracked process and its children. It sends SIGTERM to
// the process group, waits up to the grace period for the process to be
// reaped, then sends SIGKILL to the group and any surviving descendants.
// A process that had already exited yields ErrProcessExited.
func (r *Registry) Terminate(pid int) error {
	info, ok := r.Get(pid)
	if !ok {
		return fmt.Errorf("process %d not found in registry", pid)
	}

	select {
	case <-info.exited:
		return ErrProcessExited
	default:
	}

	// Collect descendants before the parent goes away and they get reparented.
	children := descendants(pid)

	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop process %d: %w", pid, err)
	}

	timer := time.NewTimer(r.gracePeriod)
	defer timer.Stop()

	select {
	case <-info.exited:
		r.logger.Debug("process stopped", "pid", pid, "job_id", info.JobID)
		return nil
	case <-timer.C:
	}

	r.logger.Warn("process ignored SIGTERM, killing", "pid", pid, "job_id", info.JobID, "grace", r.gracePeriod)

	_ = signalGroup(pid, syscall.SIGKILL)
	for _, child := range children {
		if err := child.Kill(); err != nil {
			r.logger.Debug("failed to kill child process", "pid", child.Pid, "error", err)
		}
	}

	<-info.exited
	return nil
}

// KillAll terminates every tracked process in parallel and waits for them,
// or for ctx to end.
func (r *Registry) KillAll(ctx context.Context) error {
	infos := r.snapshot()
	if len(infos) == 0 {
		return nil
	}

	r.logger.Info("stopping engine processes", "count", len(infos))

	var wg sync.WaitGroup
	for _, info := range infos {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			if err := r.Terminate(pid); err != nil && !errors.Is(err, ErrProcessExited) {
				r.logger.Error("failed to stop process", "pid", pid, "error", err)
			}
		}(info.PID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("timed out stopping engine processes")
		return ctx.Err()
	}
}

// Stats returns a resource snapshot of every tracked process. Processes
// that vanish while being sampled are skipped.
func (r *Registry) Stats(ctx context.Context) []ProcessStats {
	infos := r.snapshot()
	stats := make([]ProcessStats, 0, len(infos))

	for _, info := range infos {
		proc, err := process.NewProcessWithContext(ctx, int32(info.PID))
		if err != nil {
			continue
		}

		s := ProcessStats{
			PID:     info.PID,
			JobID:   info.JobID,
			Runtime: time.Since(info.StartTime),
		}
		if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
			s.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
			s.RSSBytes = mem.RSS
		}
		if children, err := proc.ChildrenWithContext(ctx); err == nil {
			s.Children = len(children)
		}
		stats = append(stats, s)
	}

	return stats
}

func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		// Fall back to the process itself if it has no group of its own
		if err := syscall.Kill(pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
			return err
		}
	}
	return nil
}

// descendants walks the process tree below pid.
func descendants(pid int) []*process.Process {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var out []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		children, err := p.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}
