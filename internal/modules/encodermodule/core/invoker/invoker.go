// Package invoker starts the engine for a plan and relays its lifecycle to
// the job's control channel.
package invoker

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/control"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// Options tunes how lifecycle events are relayed.
type Options struct {
	// UniformReporting relays structured messages for log-only profiles too.
	UniformReporting bool

	// Now is the clock used for elapsed time. Defaults to time.Now.
	Now func() time.Time
}

// Invoker relays engine events for a job to its control channel.
type Invoker struct {
	engine engine.Engine
	opts   Options
	logger hclog.Logger
}

// New creates an invoker.
func New(eng engine.Engine, logger hclog.Logger, opts Options) *Invoker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Invoker{
		engine: eng,
		opts:   opts,
		logger: logger.Named("invoker"),
	}
}

// Invoke starts the engine for plan and returns a handle to the running job.
// On spawn failure no handle is created and nothing is sent on ch.
//
// Once started, the job reaches exactly one terminal state and ch is
// finished. A stop request on ch kills the engine and the job ends
// Cancelled with no further messages.
func (i *Invoker) Invoke(ctx context.Context, jobID string, plan *types.InvocationPlan, ch *control.Channel) (*JobHandle, error) {
	started := i.opts.Now()

	proc, err := i.engine.Start(ctx, jobID, plan)
	if err != nil {
		if !errors.Is(err, encerr.ErrEngineSpawn) {
			err = encerr.SpawnError("invoke", err).WithJob(jobID)
		}
		return nil, err
	}

	h := newJobHandle(jobID, proc.PID())
	r := &relay{
		invoker: i,
		handle:  h,
		proc:    proc,
		plan:    plan,
		ch:      ch,
		started: started,
		rich:    plan.RichReporting || i.opts.UniformReporting,
		logger:  i.logger.With("job_id", jobID, "profile", plan.Profile, "pid", proc.PID()),
	}

	r.logger.Info("encoding started", "input", plan.InputPath, "output", plan.OutputPath, "rich", r.rich)
	go r.run(ctx)

	return h, nil
}

type relay struct {
	invoker *Invoker
	handle  *JobHandle
	proc    engine.Process
	plan    *types.InvocationPlan
	ch      *control.Channel
	started time.Time
	rich    bool
	logger  hclog.Logger

	lastPercent int
}

func (r *relay) run(ctx context.Context) {
	events := r.proc.Events()
	stopCh := r.ch.StopRequested()
	ctxDone := ctx.Done()

	var killed chan error

	beginStop := func(reason string) {
		stopCh, ctxDone = nil, nil
		killed = make(chan error, 1)
		r.logger.Info("stopping encoding", "reason", reason)
		go func() { killed <- r.proc.Kill() }()
	}

	for {
		select {
		case <-stopCh:
			beginStop("stop requested")

		case <-ctxDone:
			beginStop(ctx.Err().Error())

		case ev, ok := <-events:
			if !ok {
				r.finishFailed(errors.New("engine event stream closed without a result"), "", "", killed != nil)
				return
			}

			switch ev.Type {
			case engine.EventProgress:
				if killed != nil {
					continue
				}
				r.progress(ev)

			case engine.EventEnd, engine.EventError:
				if killed != nil {
					r.endAfterStop(ev, <-killed)
					return
				}
				if ev.Type == engine.EventEnd {
					r.finishCompleted()
				} else {
					r.finishFailed(ev.Err, ev.Stdout, ev.Stderr, false)
				}
				return
			}
		}
	}
}

func (r *relay) progress(ev engine.Event) {
	if !ev.Known {
		r.logger.Debug("progress reported before duration is known")
		return
	}

	percent := clampPercent(ev.Percent)
	if percent < r.lastPercent {
		r.logger.Debug("engine reported decreasing progress", "previous", r.lastPercent, "percent", percent)
	}
	r.lastPercent = percent

	if !r.rich {
		r.logger.Info(types.NewProgress(percent).Text())
		return
	}
	if err := r.ch.Send(types.NewProgress(percent)); err != nil {
		r.logger.Debug("progress dropped", "error", err)
	}
}

func (r *relay) elapsed() time.Duration {
	return r.invoker.opts.Now().Sub(r.started)
}

func (r *relay) finishCompleted() {
	elapsed := r.elapsed()
	done := types.NewDone(elapsed)

	r.logger.Info(done.Text())
	if r.rich {
		r.ch.Finish(&done)
	} else {
		r.ch.Finish(nil)
	}
	r.handle.finish(types.JobStateCompleted, nil, elapsed)
}

// finishFailed logs one record with the engine diagnostics and relays the
// description. quiet suppresses the relay after a stop request.
func (r *relay) finishFailed(cause error, stdout, stderr string, quiet bool) {
	if cause == nil {
		cause = errors.New("engine failed")
	}
	elapsed := r.elapsed()
	description := cause.Error()

	r.logger.Error("encoding failed",
		"description", description,
		"stdout", stdout,
		"stderr", stderr)

	if r.rich && !quiet {
		msg := types.NewError(description)
		r.ch.Finish(&msg)
	} else {
		r.ch.Finish(nil)
	}
	r.handle.finish(types.JobStateFailed, encerr.RuntimeError("run", cause).WithJob(r.handle.jobID), elapsed)
}

// endAfterStop settles a job whose engine ended after a stop request. When
// the kill succeeded the job is Cancelled. An engine that exited on its own
// keeps its natural outcome and reports it as usual. A failed kill keeps the
// natural outcome too, but nothing more is sent to the controller.
func (r *relay) endAfterStop(ev engine.Event, killErr error) {
	elapsed := r.elapsed()

	if errors.Is(killErr, engine.ErrProcessExited) {
		r.logger.Info("engine exited before it could be stopped", "outcome", ev.Type)
		if ev.Type == engine.EventEnd {
			r.finishCompleted()
		} else {
			r.finishFailed(ev.Err, ev.Stdout, ev.Stderr, false)
		}
		return
	}

	if killErr == nil {
		r.logger.Info("encoding cancelled", "elapsed", elapsed)
		r.ch.Finish(nil)
		r.handle.finish(types.JobStateCancelled, nil, elapsed)
		return
	}

	r.logger.Warn("failed to kill engine, keeping natural outcome", "error", killErr)
	if ev.Type == engine.EventEnd {
		r.ch.Finish(nil)
		r.handle.finish(types.JobStateCompleted, nil, elapsed)
		return
	}
	r.finishFailed(ev.Err, ev.Stdout, ev.Stderr, true)
}

func clampPercent(p float64) int {
	switch {
	case math.IsNaN(p), p <= 0:
		return 0
	case p >= 100:
		return 100
	}
	return int(math.Round(p))
}
