// Package runner drives one job through its lifecycle: validate the
// specification, build the plan, start the engine and wait for the outcome.
package runner

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/control"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/invoker"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/paths"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/profile"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// Job is the unit of work handed to a worker.
type Job struct {
	ID           string
	Spec         types.JobSpecification
	Channel      *control.Channel
	OnTransition TransitionFunc
}

// Runner executes jobs. A Runner holds no per-job state and may run many
// jobs concurrently.
type Runner struct {
	profiles *profile.Registry
	resolver paths.Resolver
	invoker  *invoker.Invoker
	logger   hclog.Logger
}

// New creates a runner. A nil registry or resolver selects the defaults.
func New(profiles *profile.Registry, resolver paths.Resolver, inv *invoker.Invoker, logger hclog.Logger) *Runner {
	if profiles == nil {
		profiles = profile.Default()
	}
	if resolver == nil {
		resolver = paths.Default()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runner{
		profiles: profiles,
		resolver: resolver,
		invoker:  inv,
		logger:   logger.Named("runner"),
	}
}

// Run executes job to completion and returns its terminal state. The error
// is nil for Completed and Cancelled.
//
// A failure before the engine runs sends a single ERROR message on the
// job's channel. A stop requested before the engine runs stays latched on
// the channel and takes effect as soon as the engine starts.
func (r *Runner) Run(ctx context.Context, job Job) (types.JobState, error) {
	logger := r.logger.With("job_id", job.ID, "profile", job.Spec.VideoEncoder)
	sm := NewStateMachine(job.ID, job.OnTransition)

	fail := func(err error) (types.JobState, error) {
		logger.Error("job failed", "state", sm.Current(), "error", err)
		if tErr := sm.Transition(types.JobStateFailed); tErr != nil {
			logger.Error("unexpected transition failure", "error", tErr)
		}
		msg := types.NewError(encerr.Describe(err))
		job.Channel.Finish(&msg)
		return types.JobStateFailed, err
	}

	if err := sm.Transition(types.JobStateValidating); err != nil {
		return sm.Current(), err
	}

	if err := job.Spec.Validate(); err != nil {
		return fail(encerr.ValidationError("validate", err).WithJob(job.ID))
	}

	builder, err := r.profiles.Resolve(job.Spec.VideoEncoder)
	if err != nil {
		return fail(encerr.Wrap(err, encerr.ErrorTypeProfile, "resolve_profile"))
	}

	if err := sm.Transition(types.JobStatePlanning); err != nil {
		return sm.Current(), err
	}

	plan, err := builder.Build(job.Spec, r.resolver)
	if err != nil {
		return fail(encerr.ValidationError("build_plan", err).WithJob(job.ID))
	}
	logger.Debug("plan built", "input", plan.InputPath, "output", plan.OutputPath, "args", plan.CommandLine())

	if err := sm.Transition(types.JobStateInvoking); err != nil {
		return sm.Current(), err
	}

	if job.Channel.IsStopRequested() {
		logger.Info("stop already requested, engine will be stopped once running")
	}

	handle, err := r.invoker.Invoke(ctx, job.ID, plan, job.Channel)
	if err != nil {
		return fail(err)
	}

	if err := sm.Transition(types.JobStateRunning); err != nil {
		return sm.Current(), err
	}

	state, runErr := handle.Wait()
	if err := sm.Transition(state); err != nil {
		return sm.Current(), err
	}

	logger.Info("job finished", "state", state, "elapsed", handle.Elapsed())
	return state, runErr
}
