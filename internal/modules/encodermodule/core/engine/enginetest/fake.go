// Package enginetest provides a scripted engine for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// Script describes what a fake process reports.
type Script struct {
	// Events are sent in order. If Gate is set, each one waits for a
	// value on Gate first.
	Events []engine.Event
	Gate   chan struct{}

	// HoldOpen keeps the process alive after Events until it is killed.
	HoldOpen bool

	// KillErr makes Kill fail and leaves the process running.
	KillErr error
}

// Progress is shorthand for a known progress event.
func Progress(percent float64) engine.Event {
	return engine.Event{Type: engine.EventProgress, Percent: percent, Known: true}
}

// End is shorthand for a natural end event.
func End() engine.Event {
	return engine.Event{Type: engine.EventEnd}
}

// Failure is shorthand for an error event.
func Failure(description, stdout, stderr string) engine.Event {
	return engine.Event{Type: engine.EventError, Err: errors.New(description), Stdout: stdout, Stderr: stderr}
}

// Engine hands out fake processes. The zero value runs every job with an
// empty script that ends immediately.
type Engine struct {
	mu sync.Mutex

	// Script is used for every Start. ScriptFor overrides it per job.
	Script    Script
	ScriptFor func(jobID string) Script

	// SpawnErr makes Start fail.
	SpawnErr error

	started []*Process
	plans   []*types.InvocationPlan
	nextPID int
}

// Start implements engine.Engine
func (e *Engine) Start(ctx context.Context, jobID string, plan *types.InvocationPlan) (engine.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.plans = append(e.plans, plan)
	if e.SpawnErr != nil {
		return nil, e.SpawnErr
	}

	script := e.Script
	if e.ScriptFor != nil {
		script = e.ScriptFor(jobID)
	}
	if len(script.Events) == 0 && !script.HoldOpen {
		script.Events = []engine.Event{End()}
	}

	e.nextPID++
	p := &Process{
		pid:    1000 + e.nextPID,
		JobID:  jobID,
		script: script,
		events: make(chan engine.Event),
		killed: make(chan struct{}),
	}
	e.started = append(e.started, p)
	go p.run(ctx)
	return p, nil
}

// Processes returns every process started so far.
func (e *Engine) Processes() []*Process {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Process(nil), e.started...)
}

// Plans returns every plan passed to Start.
func (e *Engine) Plans() []*types.InvocationPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*types.InvocationPlan(nil), e.plans...)
}

// Process is a scripted engine process.
type Process struct {
	pid   int
	JobID string

	script Script
	events chan engine.Event

	mu        sync.Mutex
	killed    chan struct{}
	killCalls int
}

// PID implements engine.Process
func (p *Process) PID() int { return p.pid }

// Events implements engine.Process
func (p *Process) Events() <-chan engine.Event { return p.events }

// Kill implements engine.Process
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.killCalls++
	if p.script.KillErr != nil {
		return p.script.KillErr
	}
	select {
	case <-p.killed:
	default:
		close(p.killed)
	}
	return nil
}

// KillCalls reports how many times Kill was called.
func (p *Process) KillCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killCalls
}

func (p *Process) run(ctx context.Context) {
	defer close(p.events)

	killedEvent := engine.Event{Type: engine.EventError, Err: errors.New("ffmpeg was killed by signal: terminated")}

	for _, ev := range p.script.Events {
		if p.script.Gate != nil {
			select {
			case <-p.script.Gate:
			case <-p.killed:
				p.events <- killedEvent
				return
			case <-ctx.Done():
				p.events <- killedEvent
				return
			}
		}
		select {
		case p.events <- ev:
		case <-p.killed:
			p.events <- killedEvent
			return
		}
		if ev.Type != engine.EventProgress {
			return
		}
	}

	if p.script.HoldOpen {
		select {
		case <-p.killed:
		case <-ctx.Done():
		}
		p.events <- killedEvent
		return
	}

	// Script ran out without a terminal event
	p.events <- engine.Event{Type: engine.EventEnd}
}
