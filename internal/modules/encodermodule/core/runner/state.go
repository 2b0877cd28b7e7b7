package runner

import (
	"fmt"
	"sync"

	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// TransitionFunc observes a state change.
type TransitionFunc func(from, to types.JobState)

// StateTransitionError represents an invalid state transition error
type StateTransitionError struct {
	JobID  string
	From   types.JobState
	To     types.JobState
	Reason string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for job %s: %s -> %s (%s)",
		e.JobID, e.From, e.To, e.Reason)
}

// transitions is the job lifecycle. Terminal states have no entry.
var transitions = map[types.JobState][]types.JobState{
	types.JobStateCreated: {
		types.JobStateValidating,
	},
	types.JobStateValidating: {
		types.JobStatePlanning, // spec accepted, profile resolved
		types.JobStateFailed,   // unsupported profile or missing field
	},
	types.JobStatePlanning: {
		types.JobStateInvoking,
		types.JobStateFailed,
	},
	types.JobStateInvoking: {
		types.JobStateRunning,
		types.JobStateFailed, // engine could not be spawned
	},
	types.JobStateRunning: {
		types.JobStateCompleted,
		types.JobStateFailed,
		types.JobStateCancelled,
	},
}

// StateMachine holds the state of one job and enforces legal transitions.
type StateMachine struct {
	jobID   string
	current types.JobState
	hook    TransitionFunc
	mu      sync.RWMutex
}

// NewStateMachine creates a machine in the Created state. hook may be nil.
func NewStateMachine(jobID string, hook TransitionFunc) *StateMachine {
	return &StateMachine{
		jobID:   jobID,
		current: types.JobStateCreated,
		hook:    hook,
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() types.JobState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition moves to the given state, or returns a *StateTransitionError.
func (sm *StateMachine) Transition(to types.JobState) error {
	sm.mu.Lock()
	from := sm.current

	if !CanTransition(from, to) {
		sm.mu.Unlock()
		reason := "transition not allowed"
		if from.IsTerminal() {
			reason = "job already finished"
		}
		return &StateTransitionError{JobID: sm.jobID, From: from, To: to, Reason: reason}
	}

	sm.current = to
	sm.mu.Unlock()

	if sm.hook != nil {
		sm.hook(from, to)
	}
	return nil
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to types.JobState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
