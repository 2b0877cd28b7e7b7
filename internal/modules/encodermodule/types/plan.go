// Package types provides types and interfaces for the encoder module.
package types

import "strings"

// InvocationPlan is the profile-specific, fully resolved engine invocation
// derived from a JobSpecification. It is owned by the runner for the
// lifetime of one job.
type InvocationPlan struct {
	Profile    string
	InputPath  string
	OutputPath string

	// Args is the ordered engine argument vector, output path last.
	Args []string

	// RichReporting is true when lifecycle events are relayed as structured
	// control messages; false means they are only logged locally.
	RichReporting bool
}

// HasArgPair reports whether flag is immediately followed by value in Args.
func (p *InvocationPlan) HasArgPair(flag, value string) bool {
	for i := 0; i+1 < len(p.Args); i++ {
		if p.Args[i] == flag && p.Args[i+1] == value {
			return true
		}
	}
	return false
}

// CommandLine renders the arguments for logging only.
func (p *InvocationPlan) CommandLine() string {
	return strings.Join(p.Args, " ")
}
