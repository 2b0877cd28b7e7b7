// Package types provides types and interfaces for the encoder module.
package types

import "strings"

// JobSpecification is the immutable input to a single encoding job.
// It is produced once by the controller and only ever passed by value.
type JobSpecification struct {
	InputFolder    string `json:"inputFolder"`
	InputAsset     string `json:"inputAsset"`
	OutputFolder   string `json:"outputFolder"`
	OutputAsset    string `json:"outputAsset"`
	VideoEncoder   string `json:"videoEncoder"`
	VideoBitrate   string `json:"videoBitrate"`
	VideoSize      string `json:"videoSize"`
	AudioEncoder   string `json:"audioEncoder"`
	AudioBitrate   string `json:"audioBitrate"`
	AudioFrequency string `json:"audioFrequency"`
}

// MissingFieldError reports a specification field left empty.
type MissingFieldError struct {
	Field string `json:"field"`
}

func (e *MissingFieldError) Error() string {
	return "job specification is missing " + e.Field
}

type specField struct {
	name  string
	value string
}

func (s JobSpecification) fields() []specField {
	return []specField{
		{"inputFolder", s.InputFolder},
		{"inputAsset", s.InputAsset},
		{"outputFolder", s.OutputFolder},
		{"outputAsset", s.OutputAsset},
		{"videoEncoder", s.VideoEncoder},
		{"videoBitrate", s.VideoBitrate},
		{"videoSize", s.VideoSize},
		{"audioEncoder", s.AudioEncoder},
		{"audioBitrate", s.AudioBitrate},
		{"audioFrequency", s.AudioFrequency},
	}
}

// Validate checks that every field is present. Whether the profile exists
// is decided by the profile registry, not here.
func (s JobSpecification) Validate() error {
	for _, f := range s.fields() {
		if strings.TrimSpace(f.value) == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}
