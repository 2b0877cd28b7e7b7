package ffmpeg

import (
	"strings"
	"unicode"

	"github.com/hashicorp/go-hclog"
)

// Request carries the resolved inputs for one ffmpeg invocation.
type Request struct {
	InputPath      string
	OutputPath     string
	VideoEncoder   string
	VideoBitrate   string
	VideoSize      string
	AudioEncoder   string
	AudioBitrate   string
	AudioFrequency string

	// ProfileArgs are appended verbatim after the stream settings.
	ProfileArgs []string
}

// ArgsBuilder handles building FFmpeg command arguments
type ArgsBuilder struct {
	logger hclog.Logger
}

// NewArgsBuilder creates a new FFmpeg args builder
func NewArgsBuilder(logger hclog.Logger) *ArgsBuilder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ArgsBuilder{logger: logger}
}

// BuildArgs builds the ordered argument vector. The output path is always last.
func (b *ArgsBuilder) BuildArgs(req Request) []string {
	var args []string

	// Global options
	args = append(args, GlobalArgs.HideBanner...)
	args = append(args, GlobalArgs.Overwrite...)

	// Input file
	args = append(args, InputArgs.Input...)
	args = append(args, req.InputPath)

	// Video stream
	args = append(args, VideoEncodingArgs.Codec...)
	args = append(args, req.VideoEncoder)
	args = append(args, VideoEncodingArgs.Bitrate...)
	args = append(args, NormalizeBitrate(req.VideoBitrate))
	args = append(args, VideoEncodingArgs.Size...)
	args = append(args, req.VideoSize)

	// Audio stream
	args = append(args, AudioEncodingArgs.Codec...)
	args = append(args, req.AudioEncoder)
	args = append(args, AudioEncodingArgs.Bitrate...)
	args = append(args, NormalizeBitrate(req.AudioBitrate))
	args = append(args, AudioEncodingArgs.SampleRate...)
	args = append(args, req.AudioFrequency)

	args = append(args, req.ProfileArgs...)

	// Output file
	args = append(args, req.OutputPath)

	b.logger.Debug("built ffmpeg args",
		"input", req.InputPath,
		"output", req.OutputPath,
		"encoder", req.VideoEncoder,
		"args", strings.Join(args, " "))

	return args
}

// NormalizeBitrate appends a "k" unit to a bare number, so "128" becomes
// "128k". Values that already carry a unit are returned as given.
func NormalizeBitrate(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	for _, r := range v {
		if !unicode.IsDigit(r) && r != '.' {
			return v
		}
	}
	return v + "k"
}
