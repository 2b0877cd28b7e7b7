package invoker

import (
	"sync"
	"time"

	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// JobHandle tracks one running engine invocation until it reaches a
// terminal state.
type JobHandle struct {
	jobID string
	pid   int

	mu      sync.RWMutex
	state   types.JobState
	err     error
	elapsed time.Duration

	done chan struct{}
}

func newJobHandle(jobID string, pid int) *JobHandle {
	return &JobHandle{
		jobID: jobID,
		pid:   pid,
		state: types.JobStateRunning,
		done:  make(chan struct{}),
	}
}

// JobID returns the job this handle belongs to.
func (h *JobHandle) JobID() string { return h.jobID }

// PID returns the engine process id.
func (h *JobHandle) PID() int { return h.pid }

// State returns Running until the job reaches a terminal state.
func (h *JobHandle) State() types.JobState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Err returns the failure reason, or nil for Completed and Cancelled.
func (h *JobHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Elapsed returns the time from invoke to the terminal transition.
func (h *JobHandle) Elapsed() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.elapsed
}

// Done closes after the terminal transition.
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the terminal transition.
func (h *JobHandle) Wait() (types.JobState, error) {
	<-h.done
	return h.State(), h.Err()
}

func (h *JobHandle) finish(state types.JobState, err error, elapsed time.Duration) {
	h.mu.Lock()
	h.state = state
	h.err = err
	h.elapsed = elapsed
	h.mu.Unlock()
	close(h.done)
}
