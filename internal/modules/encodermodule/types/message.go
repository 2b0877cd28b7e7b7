// Package types provides types and interfaces for the encoder module.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MessageType tags the variant of a ControlMessage on the wire.
type MessageType string

const (
	// MessageProgress flows worker → controller zero or more times.
	MessageProgress MessageType = "PROGRESS"
	// MessageDone is the terminal message for a natural end.
	MessageDone MessageType = "DONE"
	// MessageError is the terminal message for a failed job.
	MessageError MessageType = "ERROR"
	// MessageStop flows controller → worker and requests termination.
	MessageStop MessageType = "STOP_ENCODING"
)

// ControlMessage is the tagged union exchanged over the control channel.
// Only the field matching Type is meaningful.
type ControlMessage struct {
	Type        MessageType
	Percent     int
	Elapsed     time.Duration
	Description string
}

// NewProgress builds a Progress message.
func NewProgress(percent int) ControlMessage {
	return ControlMessage{Type: MessageProgress, Percent: percent}
}

// NewDone builds a Done message.
func NewDone(elapsed time.Duration) ControlMessage {
	return ControlMessage{Type: MessageDone, Elapsed: elapsed}
}

// NewError builds an Error message.
func NewError(description string) ControlMessage {
	return ControlMessage{Type: MessageError, Description: description}
}

// NewStopRequest builds a StopRequest message.
func NewStopRequest() ControlMessage {
	return ControlMessage{Type: MessageStop}
}

// IsTerminal reports whether no message may follow this one.
func (m ControlMessage) IsTerminal() bool {
	return m.Type == MessageDone || m.Type == MessageError
}

// Text renders the human-readable message body.
func (m ControlMessage) Text() string {
	switch m.Type {
	case MessageProgress:
		return fmt.Sprintf("Encoding: %d%%", m.Percent)
	case MessageDone:
		return fmt.Sprintf("Encoding finished after %s s", FormatSeconds(m.Elapsed))
	case MessageError:
		return "An error occurred during encoding. " + m.Description
	default:
		return ""
	}
}

// Envelope converts the message to its wire form.
func (m ControlMessage) Envelope() Envelope {
	return Envelope{Type: m.Type, Message: m.Text()}
}

// FormatSeconds prints a duration as seconds at millisecond precision using
// the fewest digits needed, e.g. 12.34, 5 or 0.2.
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Milliseconds())/1000, 'f', -1, 64)
}

// Envelope is the uniform {type, message} wire format.
type Envelope struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes and checks a wire envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	switch env.Type {
	case MessageProgress, MessageDone, MessageError, MessageStop:
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("unknown message type %q", env.Type)
	}
}
