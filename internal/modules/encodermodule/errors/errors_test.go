package errors

import (
	"errors"
	"testing"
)

func TestEncoderError(t *testing.T) {
	// Test basic error creation
	err := New(ErrorTypeRuntime, "wait", errors.New("exit status 1"))
	if err.Type != ErrorTypeRuntime {
		t.Errorf("expected type %s, got %s", ErrorTypeRuntime, err.Type)
	}
	if err.Op != "wait" {
		t.Errorf("expected op 'wait', got %s", err.Op)
	}

	// Test error with job
	err = err.WithJob("job-123")
	if err.JobID != "job-123" {
		t.Errorf("expected job ID 'job-123', got %s", err.JobID)
	}

	// Test error with details
	err = err.WithDetail("profile", "x265")
	if err.Details["profile"] != "x265" {
		t.Errorf("expected profile 'x265', got %v", err.Details["profile"])
	}

	// Test error string
	errStr := err.Error()
	expectedStr := "runtime error in wait for job job-123: exit status 1"
	if errStr != expectedStr {
		t.Errorf("expected error string '%s', got '%s'", expectedStr, errStr)
	}
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		errType  ErrorType
	}{
		{"unsupported profile", ProfileError("resolve_profile", "av2"), ErrUnsupportedProfile, ErrorTypeProfile},
		{"spawn", SpawnError("start", errors.New("exec: not found")), ErrEngineSpawn, ErrorTypeSpawn},
		{"runtime", RuntimeError("wait", errors.New("exit 1")), ErrEngineRuntime, ErrorTypeRuntime},
		{"validation", ValidationError("validate", errors.New("job specification is missing inputAsset")), ErrInvalidSpecification, ErrorTypeValidation},
		{"cancellation", CancellationError("stop"), ErrCancellationRequested, ErrorTypeCancellation},
		{"job", JobError("get", ErrJobNotFound), ErrJobNotFound, ErrorTypeJob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("expected error to match %v", tt.sentinel)
			}
			if GetType(tt.err) != tt.errType {
				t.Errorf("expected type %s, got %s", tt.errType, GetType(tt.err))
			}
		})
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation(CancellationError("stop")) {
		t.Error("expected cancellation to be recognised")
	}
	if IsCancellation(RuntimeError("wait", errors.New("boom"))) {
		t.Error("runtime failure must not count as cancellation")
	}
}

func TestWrap(t *testing.T) {
	// Test wrapping nil error
	if Wrap(nil, ErrorTypeInternal, "test_op") != nil {
		t.Error("expected nil when wrapping nil error")
	}

	// Test wrapping regular error
	err := errors.New("test error")
	wrapped := Wrap(err, ErrorTypeSpawn, "start")
	eErr, ok := wrapped.(*EncoderError)
	if !ok {
		t.Fatal("expected EncoderError type")
	}
	if eErr.Type != ErrorTypeSpawn {
		t.Errorf("expected type %s, got %s", ErrorTypeSpawn, eErr.Type)
	}

	// Test wrapping already wrapped error (should preserve)
	rewrapped := Wrap(wrapped, ErrorTypeInternal, "different_op")
	if rewrapped != wrapped {
		t.Error("expected wrapped error to be preserved")
	}
}

func TestGetJobID(t *testing.T) {
	err := JobError("stop", ErrJobNotFound).WithJob("abc")
	if GetJobID(err) != "abc" {
		t.Errorf("expected job id 'abc', got %q", GetJobID(err))
	}
	if GetJobID(errors.New("plain")) != "" {
		t.Error("expected empty job id for plain error")
	}
}

func TestDescribe(t *testing.T) {
	err := ProfileError("resolve_profile", "av1").WithJob("job-1")
	if got := Describe(err); got != `unsupported encoding profile: "av1"` {
		t.Errorf("unexpected description %q", got)
	}
	if got := Describe(errors.New("plain")); got != "plain" {
		t.Errorf("unexpected description %q", got)
	}
	if Describe(nil) != "" {
		t.Error("expected empty description for nil")
	}
}
