package session

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// sinkQueue feeds one StatusSink from its own goroutine so a slow sink
// never holds up a job. Updates that do not fit the buffer are dropped.
type sinkQueue struct {
	sink    StatusSink
	timeout time.Duration
	logger  hclog.Logger

	updates chan types.StatusUpdate
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newSinkQueue(sink StatusSink, size int, timeout time.Duration, logger hclog.Logger) *sinkQueue {
	q := &sinkQueue{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		updates: make(chan types.StatusUpdate, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue never blocks.
func (q *sinkQueue) enqueue(update types.StatusUpdate) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}
	select {
	case q.updates <- update:
	default:
		q.logger.Warn("status sink queue full, dropping update", "job_id", update.JobID, "state", update.State)
	}
}

func (q *sinkQueue) run() {
	defer close(q.done)
	for update := range q.updates {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.sink.Publish(ctx, update); err != nil {
			q.logger.Warn("failed to publish job status", "job_id", update.JobID, "state", update.State, "error", err)
		}
		cancel()
	}
}

// close flushes pending updates until ctx ends, then closes the sink.
func (q *sinkQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.updates)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-ctx.Done():
		q.logger.Warn("timed out flushing status sink", "pending", len(q.updates))
	}
	return q.sink.Close()
}
