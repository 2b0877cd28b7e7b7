// Package errors provides structured error handling for the encoder module.
// It defines error types, sentinel errors, and utility functions for consistent
// error handling across job validation, planning and engine execution.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an encoder error
type ErrorType string

const (
	// ErrorTypeValidation indicates the job specification is incomplete
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeProfile indicates the requested profile is not registered
	ErrorTypeProfile ErrorType = "profile"
	// ErrorTypeSpawn indicates the engine process could not be launched
	ErrorTypeSpawn ErrorType = "spawn"
	// ErrorTypeRuntime indicates the engine failed mid-run
	ErrorTypeRuntime ErrorType = "runtime"
	// ErrorTypeCancellation marks a voluntary stop; it is not a failure
	ErrorTypeCancellation ErrorType = "cancellation"
	// ErrorTypeJob indicates job bookkeeping errors (lookup, limits)
	ErrorTypeJob ErrorType = "job"
	// ErrorTypeInternal indicates internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors for common scenarios
var (
	// ErrInvalidSpecification indicates a required job field is missing
	ErrInvalidSpecification = errors.New("invalid job specification")

	// ErrUnsupportedProfile indicates the profile id matches no registered profile
	ErrUnsupportedProfile = errors.New("unsupported encoding profile")

	// ErrEngineSpawn indicates the engine subprocess failed to launch
	ErrEngineSpawn = errors.New("engine failed to start")

	// ErrEngineRuntime indicates the engine reported a failure while running
	ErrEngineRuntime = errors.New("engine reported a failure")

	// ErrCancellationRequested indicates the controller asked the job to stop
	ErrCancellationRequested = errors.New("cancellation requested")

	// ErrJobNotFound indicates a job id doesn't exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobLimitReached indicates max concurrent jobs reached
	ErrJobLimitReached = errors.New("concurrent job limit reached")

	// ErrChannelClosed indicates a send after the terminal message
	ErrChannelClosed = errors.New("control channel closed")
)

// EncoderError provides structured error information with context
type EncoderError struct {
	Type    ErrorType              // Error classification
	Op      string                 // Operation that failed (e.g., "resolve_profile", "spawn")
	JobID   string                 // Related job ID if applicable
	Err     error                  // Underlying error
	Details map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *EncoderError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s error in %s for job %s: %v", e.Type, e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *EncoderError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *EncoderError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new EncoderError
func New(errType ErrorType, op string, err error) *EncoderError {
	return &EncoderError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithJob adds job context to the error
func (e *EncoderError) WithJob(jobID string) *EncoderError {
	e.JobID = jobID
	return e
}

// WithDetail adds a key-value detail to the error
func (e *EncoderError) WithDetail(key string, value interface{}) *EncoderError {
	e.Details[key] = value
	return e
}

// Error creation helpers

// ValidationError creates a specification validation error
func ValidationError(op string, err error) *EncoderError {
	return New(ErrorTypeValidation, op, fmt.Errorf("%w: %w", ErrInvalidSpecification, err))
}

// ProfileError creates an unsupported-profile error for the given id
func ProfileError(op, profileID string) *EncoderError {
	return New(ErrorTypeProfile, op, fmt.Errorf("%w: %q", ErrUnsupportedProfile, profileID)).
		WithDetail("profile", profileID)
}

// SpawnError creates an engine launch error
func SpawnError(op string, err error) *EncoderError {
	return New(ErrorTypeSpawn, op, fmt.Errorf("%w: %w", ErrEngineSpawn, err))
}

// RuntimeError creates an engine runtime error
func RuntimeError(op string, err error) *EncoderError {
	return New(ErrorTypeRuntime, op, fmt.Errorf("%w: %w", ErrEngineRuntime, err))
}

// CancellationError records a voluntary stop
func CancellationError(op string) *EncoderError {
	return New(ErrorTypeCancellation, op, ErrCancellationRequested)
}

// JobError creates a job bookkeeping error
func JobError(op string, err error) *EncoderError {
	return New(ErrorTypeJob, op, err)
}

// Wrap wraps an error with operation context if it's not already an EncoderError
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}

	var eErr *EncoderError
	if errors.As(err, &eErr) {
		return err
	}

	return New(errType, op, err)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var eErr *EncoderError
	if errors.As(err, &eErr) {
		return eErr.Type
	}
	return ErrorTypeInternal
}

// GetJobID extracts the job ID from an error
func GetJobID(err error) string {
	var eErr *EncoderError
	if errors.As(err, &eErr) {
		return eErr.JobID
	}
	return ""
}

// Describe returns the underlying error text without the operation prefix,
// suitable for showing to a controller.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var eErr *EncoderError
	if errors.As(err, &eErr) && eErr.Err != nil {
		return eErr.Err.Error()
	}
	return err.Error()
}

// IsCancellation reports whether err marks a voluntary stop rather than a failure
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancellationRequested)
}
