// Package types provides types and interfaces for the encoder module.
package types

import "time"

// Config holds configuration for the encoder module
type Config struct {
	// FFmpegPath is the engine binary
	FFmpegPath string

	// KillGracePeriod is how long a stopped engine gets before SIGKILL
	KillGracePeriod time.Duration

	// MediaRoot anchors relative input and output folders; empty keeps
	// them relative to the working directory
	MediaRoot string

	// OutputLines is how many trailing stderr lines are kept for diagnostics
	OutputLines int

	// UniformReporting relays structured messages for every profile,
	// including the ones registered as log-only
	UniformReporting bool

	// MaxConcurrentJobs limits running jobs; 0 means unlimited
	MaxConcurrentJobs int

	// RetentionPeriod is how long finished jobs stay visible
	RetentionPeriod time.Duration

	// CleanupInterval is how often finished jobs are swept
	CleanupInterval time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:        "ffmpeg",
		KillGracePeriod:   5 * time.Second,
		OutputLines:       100,
		UniformReporting:  true,
		MaxConcurrentJobs: 0,
		RetentionPeriod:   1 * time.Hour,
		CleanupInterval:   10 * time.Minute,
	}
}
