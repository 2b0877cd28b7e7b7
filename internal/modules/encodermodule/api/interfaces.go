// This file defines the services the encoder API layer depends on.
package api

import (
	"context"

	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// JobService is the controller-side job dispatcher. *session.Manager
// implements it.
type JobService interface {
	Submit(ctx context.Context, spec types.JobSpecification) (*types.JobInfo, error)
	Get(jobID string) (*types.JobInfo, error)
	List() []types.JobInfo
	Stop(jobID string) (bool, error)
	Deliver(jobID string, env types.Envelope) (bool, error)
	Subscribe(jobID string) (<-chan types.ControlMessage, func(), error)
	Active() int
	Stats() map[types.JobState]int
}

// ProfileLister describes the registered encoding profiles.
type ProfileLister interface {
	Profiles() []types.ProfileInfo
}

// ProcessLister reports live engine processes. It may be nil.
type ProcessLister interface {
	Stats(ctx context.Context) []engine.ProcessStats
}
