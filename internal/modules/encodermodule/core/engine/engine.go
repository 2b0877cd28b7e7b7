// Package engine runs the external encoder as a monitored subprocess and
// reports its lifecycle as a stream of events.
package engine

import (
	"context"
	"errors"

	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// ErrProcessExited is returned by Kill when the process exited on its own
// before a signal could stop it. Its natural outcome stands.
var ErrProcessExited = errors.New("process already exited")

// EventType identifies an engine lifecycle event.
type EventType int

const (
	// EventProgress carries a percent reading.
	EventProgress EventType = iota
	// EventEnd is a natural, successful exit.
	EventEnd
	// EventError is a failed exit, including exits caused by a kill.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one engine lifecycle notification.
type Event struct {
	Type EventType

	// Percent is raw engine progress and may fall outside [0,100].
	// Known is false when the engine has not reported a total yet.
	Percent float64
	Known   bool

	// Err, Stdout and Stderr are set for EventError.
	Err    error
	Stdout string
	Stderr string
}

// Engine launches one subprocess per invocation plan.
type Engine interface {
	Start(ctx context.Context, jobID string, plan *types.InvocationPlan) (Process, error)
}

// Process is a running engine invocation.
//
// Events delivers zero or more EventProgress values followed by exactly one
// EventEnd or EventError, then closes. Cancelling the context passed to
// Start kills the process.
type Process interface {
	PID() int
	Events() <-chan Event
	// Kill stops the process and returns once it has been reaped.
	Kill() error
}
