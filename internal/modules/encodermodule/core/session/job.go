package session

import (
	"sync"
	"time"

	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/control"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// job is the controller-side record of one submitted job.
type job struct {
	id          string
	spec        types.JobSpecification
	channel     *control.Channel
	submittedAt time.Time

	mu          sync.RWMutex
	state       types.JobState
	err         error
	finishedAt  time.Time
	messages    []types.ControlMessage
	subscribers map[int]*control.Channel
	nextSub     int

	done chan struct{}
}

func newJob(id string, spec types.JobSpecification, now time.Time) *job {
	return &job{
		id:          id,
		spec:        spec,
		channel:     control.New(),
		submittedAt: now,
		state:       types.JobStateCreated,
		subscribers: make(map[int]*control.Channel),
		done:        make(chan struct{}),
	}
}

func (j *job) setState(state types.JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
}

func (j *job) currentState() types.JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// record stores an outbound message and fans it out to subscribers.
func (j *job) record(msg types.ControlMessage) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.messages = append(j.messages, msg)
	for _, sub := range j.subscribers {
		_ = sub.Send(msg)
	}
}

// subscribe replays the messages recorded so far and then follows live ones.
func (j *job) subscribe() (*control.Channel, func()) {
	sub := control.New()

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, msg := range j.messages {
		_ = sub.Send(msg)
	}

	if j.isFinishedLocked() {
		sub.Finish(nil)
		return sub, sub.Close
	}

	id := j.nextSub
	j.nextSub++
	j.subscribers[id] = sub

	cancel := func() {
		j.mu.Lock()
		delete(j.subscribers, id)
		j.mu.Unlock()
		sub.Close()
	}
	return sub, cancel
}

func (j *job) isFinishedLocked() bool {
	return !j.finishedAt.IsZero()
}

// finish records the outcome and ends every subscription.
func (j *job) finish(state types.JobState, err error, now time.Time) {
	j.mu.Lock()
	j.state = state
	j.err = err
	j.finishedAt = now
	for id, sub := range j.subscribers {
		sub.Finish(nil)
		delete(j.subscribers, id)
	}
	j.mu.Unlock()

	close(j.done)
}

func (j *job) info(withMessages bool) types.JobInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()

	info := types.JobInfo{
		JobID:       j.id,
		Profile:     j.spec.VideoEncoder,
		State:       j.state,
		SubmittedAt: j.submittedAt,
		Messages:    []types.Envelope{},
	}
	if j.err != nil {
		info.Error = encerr.Describe(j.err)
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		info.FinishedAt = &finished
	}
	if n := len(j.messages); n > 0 {
		last := j.messages[n-1].Envelope()
		info.LastMessage = &last
	}
	if withMessages {
		for _, msg := range j.messages {
			info.Messages = append(info.Messages, msg.Envelope())
		}
	}
	return info
}
