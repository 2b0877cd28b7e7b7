// Package types provides types and interfaces for the encoder module.
package types

import "time"

// JobState is the lifecycle state of one job.
type JobState string

const (
	JobStateCreated    JobState = "created"
	JobStateValidating JobState = "validating"
	JobStatePlanning   JobState = "planning"
	JobStateInvoking   JobState = "invoking"
	JobStateRunning    JobState = "running"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateCancelled  JobState = "cancelled"
)

// IsTerminal reports whether the state is absorbing.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// JobInfo is a point-in-time snapshot of a job for controllers.
type JobInfo struct {
	JobID       string     `json:"jobId"`
	Profile     string     `json:"profile"`
	State       JobState   `json:"state"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	LastMessage *Envelope  `json:"lastMessage,omitempty"`
	Messages    []Envelope `json:"messages"`
}

// ProfileInfo describes a registered encoding profile.
type ProfileInfo struct {
	ID            string `json:"id"`
	Encoder       string `json:"encoder"`
	RichReporting bool   `json:"richReporting"`
}

// StatusUpdate is a job status change mirrored to external status sinks.
// Type and Message are set when the update carries a control message.
type StatusUpdate struct {
	JobID     string      `json:"job_id"`
	Profile   string      `json:"profile"`
	State     JobState    `json:"state"`
	Type      MessageType `json:"type,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
