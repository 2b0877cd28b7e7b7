// Package session dispatches jobs to dedicated workers and tracks them for
// controllers. Every submitted job starts immediately on its own goroutine.
// Nothing is queued.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/runner"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// ErrShutdown is returned by Submit after Shutdown has begun.
var ErrShutdown = errors.New("session manager is shutting down")

// StatusSink receives a copy of every job status change. Sinks are
// best-effort: each one is fed from its own buffered queue, errors are
// logged and a full queue drops updates. None of it affects the job.
type StatusSink interface {
	Publish(ctx context.Context, update types.StatusUpdate) error
	Close() error
}

// Config contains configuration for the session manager
type Config struct {
	// MaxConcurrentJobs caps jobs that have not finished; 0 means no limit
	MaxConcurrentJobs int

	// RetentionPeriod is how long finished jobs stay queryable
	RetentionPeriod time.Duration

	// CleanupInterval is how often finished jobs are swept; 0 disables it
	CleanupInterval time.Duration

	// PublishTimeout bounds each sink publish
	PublishTimeout time.Duration

	// SinkBuffer is how many updates each sink may fall behind before
	// new ones are dropped
	SinkBuffer int
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 0,
		RetentionPeriod:   time.Hour,
		CleanupInterval:   10 * time.Minute,
		PublishTimeout:    2 * time.Second,
		SinkBuffer:        256,
	}
}

// Manager owns the workers for every job submitted to this process.
type Manager struct {
	runner *runner.Runner
	sinks  []*sinkQueue
	config Config
	logger hclog.Logger

	jobs   map[string]*job
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopCleanup chan struct{}
	cleanupOnce sync.Once

	now func() time.Time
}

// NewManager creates a session manager and starts its cleanup loop.
func NewManager(r *runner.Runner, config Config, logger hclog.Logger, sinks ...StatusSink) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	if config.SinkBuffer <= 0 {
		config.SinkBuffer = 256
	}
	logger = logger.Named("session")

	queues := make([]*sinkQueue, 0, len(sinks))
	for _, sink := range sinks {
		queues = append(queues, newSinkQueue(sink, config.SinkBuffer, config.PublishTimeout, logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner:      r,
		sinks:       queues,
		config:      config,
		logger:      logger,
		jobs:        make(map[string]*job),
		ctx:         ctx,
		cancel:      cancel,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}

	if config.CleanupInterval > 0 {
		go m.runCleanupLoop()
	}

	return m
}

// Submit creates a job and starts its worker. The returned snapshot is taken
// right after dispatch.
func (m *Manager) Submit(ctx context.Context, spec types.JobSpecification) (*types.JobInfo, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, encerr.JobError("submit", ErrShutdown)
	}
	if limit := m.config.MaxConcurrentJobs; limit > 0 && m.activeLocked() >= limit {
		m.mu.Unlock()
		return nil, encerr.JobError("submit", encerr.ErrJobLimitReached).
			WithDetail("max_concurrent_jobs", limit)
	}

	j := newJob(uuid.New().String(), spec, m.now())
	m.jobs[j.id] = j
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("job submitted", "job_id", j.id, "profile", spec.VideoEncoder)

	go m.work(j)

	info := j.info(false)
	return &info, nil
}

func (m *Manager) work(j *job) {
	defer m.wg.Done()

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for msg := range j.channel.Messages() {
			j.record(msg)
			m.publish(j, msg.Type, msg.Text())
		}
	}()

	state, err := m.runner.Run(m.ctx, runner.Job{
		ID:      j.id,
		Spec:    j.spec,
		Channel: j.channel,
		OnTransition: func(_, to types.JobState) {
			j.setState(to)
			if !to.IsTerminal() {
				m.publish(j, "", "")
			}
		},
	})

	// Run always finishes the channel on its way out; this covers
	// transition errors that return early.
	j.channel.Finish(nil)
	<-forwarded

	j.finish(state, err, m.now())
	m.publish(j, "", "")
}

func (m *Manager) publish(j *job, msgType types.MessageType, message string) {
	if len(m.sinks) == 0 {
		return
	}

	update := types.StatusUpdate{
		JobID:     j.id,
		Profile:   j.spec.VideoEncoder,
		State:     j.currentState(),
		Type:      msgType,
		Message:   message,
		Timestamp: m.now(),
	}

	for _, q := range m.sinks {
		q.enqueue(update)
	}
}

func (m *Manager) getJob(op, jobID string) (*job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, encerr.JobError(op, encerr.ErrJobNotFound).WithJob(jobID)
	}
	return j, nil
}

// Get returns a snapshot of a job including every message emitted so far.
func (m *Manager) Get(jobID string) (*types.JobInfo, error) {
	j, err := m.getJob("get", jobID)
	if err != nil {
		return nil, err
	}
	info := j.info(true)
	return &info, nil
}

// List returns snapshots of all known jobs, oldest first.
func (m *Manager) List() []types.JobInfo {
	m.mu.RLock()
	jobs := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.RUnlock()

	infos := make([]types.JobInfo, 0, len(jobs))
	for _, j := range jobs {
		infos = append(infos, j.info(false))
	}
	sort.Slice(infos, func(a, b int) bool {
		return infos[a].SubmittedAt.Before(infos[b].SubmittedAt)
	})
	return infos
}

// Stop requests a stop. It reports false when the job had already finished.
func (m *Manager) Stop(jobID string) (bool, error) {
	j, err := m.getJob("stop", jobID)
	if err != nil {
		return false, err
	}

	accepted := j.channel.RequestStop()
	m.logger.Info("stop requested", "job_id", jobID, "accepted", accepted)
	return accepted, nil
}

// Deliver dispatches an inbound control envelope to a job.
func (m *Manager) Deliver(jobID string, env types.Envelope) (bool, error) {
	j, err := m.getJob("deliver", jobID)
	if err != nil {
		return false, err
	}
	return j.channel.Deliver(env)
}

// Subscribe streams a job's outbound messages, starting with a replay of
// those already emitted. The stream closes when the job ends. Call the
// returned function to stop early.
func (m *Manager) Subscribe(jobID string) (<-chan types.ControlMessage, func(), error) {
	j, err := m.getJob("subscribe", jobID)
	if err != nil {
		return nil, nil, err
	}
	sub, cancel := j.subscribe()
	return sub.Messages(), cancel, nil
}

// Wait blocks until the job finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context, jobID string) (*types.JobInfo, error) {
	j, err := m.getJob("wait", jobID)
	if err != nil {
		return nil, err
	}

	select {
	case <-j.done:
		info := j.info(true)
		return &info, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Active returns the number of jobs that have not finished.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() int {
	count := 0
	for _, j := range m.jobs {
		select {
		case <-j.done:
		default:
			count++
		}
	}
	return count
}

// Stats counts known jobs by state.
func (m *Manager) Stats() map[types.JobState]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[types.JobState]int)
	for _, j := range m.jobs {
		stats[j.currentState()]++
	}
	return stats
}

// CleanupStale forgets finished jobs older than maxAge and returns how many
// were removed. Running jobs are never removed.
func (m *Manager) CleanupStale(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, j := range m.jobs {
		j.mu.RLock()
		finished := j.finishedAt
		j.mu.RUnlock()

		if !finished.IsZero() && finished.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("cleaned up finished jobs", "count", removed)
	}
	return removed
}

func (m *Manager) runCleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupStale(m.config.RetentionPeriod)
		case <-m.stopCleanup:
			return
		}
	}
}

// Shutdown stops accepting jobs, requests a stop on every running job and
// waits for the workers. If ctx ends first, running engines are abandoned to
// the caller, which should kill them through the engine registry.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down session manager")

	m.mu.Lock()
	m.closed = true
	jobs := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	m.cleanupOnce.Do(func() { close(m.stopCleanup) })

	for _, j := range jobs {
		j.channel.RequestStop()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("timed out waiting for jobs to stop")
		m.cancel()
		err = ctx.Err()
	}
	m.cancel()

	for _, q := range m.sinks {
		if cErr := q.close(ctx); cErr != nil {
			m.logger.Error("failed to close status sink", "error", cErr)
		}
	}

	return err
}
