// Package profile holds the encoding profiles a worker can run and the
// read-only registry that resolves them by id.
package profile

import (
	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/ffmpeg"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/paths"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// PlanBuilder turns a job specification into an engine invocation plan.
type PlanBuilder interface {
	ID() string
	Encoder() string
	RichReporting() bool
	Build(spec types.JobSpecification, resolver paths.Resolver) (*types.InvocationPlan, error)
}

// Profile is one codec configuration: the encoder, its literal parameter
// vector and whether its lifecycle is relayed to the controller.
type Profile struct {
	id      string
	encoder string
	params  []string
	rich    bool
	args    *ffmpeg.ArgsBuilder
}

// Reference profiles.
var (
	X265 = New("x265", ffmpeg.EncoderX265, []string{
		"-force_key_frames", "expr:gte(t,n_forced*2)",
		"-x265-params", "keyint=48:min-keyint=48:scenecut=0:ref=5:bframes=3:b-adapt=2",
	}, true)

	// VP9 is log-only: lifecycle events stay on the worker unless uniform
	// reporting is enabled on the invoker.
	VP9 = New("vp9", ffmpeg.EncoderVP9, []string{
		"-crf", "23",
		"-keyint_min", "48",
		"-g", "48",
		"-t", "60",
		"-threads", "8",
		"-speed", "4",
		"-tile-columns", "4",
		"-auto-alt-ref", "1",
		"-lag-in-frames", "25",
		"-frame-parallel", "1",
		"-af", "channelmap=channel_layout=5.1",
	}, false)

	X264 = New("x264", ffmpeg.EncoderX264, []string{
		"-crf", "23",
		"-force_key_frames", "expr:gte(t,n_forced*2)",
		"-g", "48",
		"-keyint_min", "48",
		"-sc_threshold", "0",
		"-bf", "3",
		"-b_strategy", "2",
		"-refs", "5",
	}, true)
)

// New creates a custom profile. params are copied.
func New(id, encoder string, params []string, rich bool) Profile {
	return Profile{
		id:      id,
		encoder: encoder,
		params:  append([]string(nil), params...),
		rich:    rich,
	}
}

// WithLogger returns a copy whose argument builder logs to logger.
func (p Profile) WithLogger(logger hclog.Logger) Profile {
	p.args = ffmpeg.NewArgsBuilder(logger)
	return p
}

// ID implements PlanBuilder
func (p Profile) ID() string { return p.id }

// Encoder implements PlanBuilder
func (p Profile) Encoder() string { return p.encoder }

// RichReporting implements PlanBuilder
func (p Profile) RichReporting() bool { return p.rich }

// Params returns a copy of the profile's literal parameter vector.
func (p Profile) Params() []string {
	return append([]string(nil), p.params...)
}

// Build implements PlanBuilder
func (p Profile) Build(spec types.JobSpecification, resolver paths.Resolver) (*types.InvocationPlan, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = paths.Default()
	}

	input := resolver.Join(spec.InputFolder, spec.InputAsset)
	output := resolver.Join(spec.OutputFolder, spec.OutputAsset)

	builder := p.args
	if builder == nil {
		builder = ffmpeg.NewArgsBuilder(nil)
	}

	args := builder.BuildArgs(ffmpeg.Request{
		InputPath:      input,
		OutputPath:     output,
		VideoEncoder:   p.encoder,
		VideoBitrate:   spec.VideoBitrate,
		VideoSize:      spec.VideoSize,
		AudioEncoder:   spec.AudioEncoder,
		AudioBitrate:   spec.AudioBitrate,
		AudioFrequency: spec.AudioFrequency,
		ProfileArgs:    p.params,
	})

	return &types.InvocationPlan{
		Profile:       p.id,
		InputPath:     input,
		OutputPath:    output,
		Args:          args,
		RichReporting: p.rich,
	}, nil
}
