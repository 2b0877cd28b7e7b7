// Package control implements the bidirectional control channel between a
// controller and the worker running one job.
package control

import (
	"fmt"
	"sync"

	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// Channel carries worker messages out and stop requests in for a single job.
//
// Outbound messages are delivered on Messages in the order they were sent.
// Sending never blocks: messages are queued until the consumer reads them.
// Once a terminal message is sent, or Finish is called, the stream closes
// after the queue drains and further sends fail.
type Channel struct {
	mu       sync.Mutex
	queue    []types.ControlMessage
	finished bool
	notify   chan struct{}
	out      chan types.ControlMessage
	quit     chan struct{}
	quitOnce sync.Once

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a channel and starts its delivery loop.
func New() *Channel {
	c := &Channel{
		notify: make(chan struct{}, 1),
		out:    make(chan types.ControlMessage),
		quit:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go c.pump()
	return c
}

// Send enqueues an outbound message. A terminal message finishes the channel.
func (c *Channel) Send(msg types.ControlMessage) error {
	if msg.Type == types.MessageStop {
		return fmt.Errorf("%s is not an outbound message", msg.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return encerr.ErrChannelClosed
	}
	c.queue = append(c.queue, msg)
	if msg.IsTerminal() {
		c.finished = true
	}
	c.wake()
	return nil
}

// Finish closes the outbound stream after an optional terminal message.
// Calling it again has no effect.
func (c *Channel) Finish(terminal *types.ControlMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	if terminal != nil && terminal.IsTerminal() {
		c.queue = append(c.queue, *terminal)
	}
	c.finished = true
	c.wake()
}

// Close finishes the channel and drops anything the consumer has not read
// yet. Use it when the consumer goes away.
func (c *Channel) Close() {
	c.mu.Lock()
	c.finished = true
	c.queue = nil
	c.mu.Unlock()
	c.quitOnce.Do(func() { close(c.quit) })
}

// Finished reports whether the outbound stream accepts no more messages.
func (c *Channel) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Messages is the outbound stream. It closes after the last message.
func (c *Channel) Messages() <-chan types.ControlMessage {
	return c.out
}

// RequestStop latches a stop request. It returns false when the job has
// already reached its terminal state, in which case nothing happens.
func (c *Channel) RequestStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return false
	}
	c.stopOnce.Do(func() { close(c.stop) })
	return true
}

// StopRequested closes once a stop has been requested.
func (c *Channel) StopRequested() <-chan struct{} {
	return c.stop
}

// IsStopRequested reports whether a stop has been requested.
func (c *Channel) IsStopRequested() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Deliver dispatches an inbound wire envelope. Only STOP_ENCODING is
// accepted from the controller.
func (c *Channel) Deliver(env types.Envelope) (bool, error) {
	switch env.Type {
	case types.MessageStop:
		return c.RequestStop(), nil
	default:
		return false, fmt.Errorf("unexpected inbound message type %q", env.Type)
	}
}

// wake must be called with mu held.
func (c *Channel) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) pump() {
	defer close(c.out)

	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			msg := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			select {
			case c.out <- msg:
			case <-c.quit:
				return
			}
			continue
		}
		if c.finished {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		select {
		case <-c.notify:
		case <-c.quit:
			return
		}
	}
}
