package profile

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/paths"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

func testSpec(profile string) types.JobSpecification {
	return types.JobSpecification{
		InputFolder:    "/media/in",
		InputAsset:     "clip.mov",
		OutputFolder:   "/media/out",
		OutputAsset:    "clip.mp4",
		VideoEncoder:   profile,
		VideoBitrate:   "2000k",
		VideoSize:      "1280x720",
		AudioEncoder:   "aac",
		AudioBitrate:   "128",
		AudioFrequency: "48000",
	}
}

func TestRegistry_ResolveReferenceProfiles(t *testing.T) {
	registry := Default()
	assert.Equal(t, []string{"vp9", "x264", "x265"}, registry.IDs())

	for _, id := range registry.IDs() {
		t.Run(id, func(t *testing.T) {
			builder, err := registry.Resolve(id)
			require.NoError(t, err)

			spec := testSpec(id)
			plan, err := builder.Build(spec, paths.Default())
			require.NoError(t, err)

			assert.Equal(t, id, plan.Profile)
			assert.Equal(t, filepath.Join(spec.InputFolder, spec.InputAsset), plan.InputPath)
			assert.Equal(t, filepath.Join(spec.OutputFolder, spec.OutputAsset), plan.OutputPath)
			assert.Equal(t, plan.OutputPath, plan.Args[len(plan.Args)-1])
			assert.True(t, plan.HasArgPair("-i", plan.InputPath))
			assert.True(t, plan.HasArgPair("-b:a", "128k"))
			assert.True(t, plan.HasArgPair("-s", "1280x720"))
		})
	}
}

func TestRegistry_DefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.Same(t, Default(), Init(hclog.NewNullLogger()))
}

func TestRegistry_UnknownProfile(t *testing.T) {
	_, err := Default().Resolve("av1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, encerr.ErrUnsupportedProfile))
	assert.Equal(t, encerr.ErrorTypeProfile, encerr.GetType(err))
}

func TestX264_Plan(t *testing.T) {
	plan, err := X264.Build(testSpec("x264"), nil)
	require.NoError(t, err)

	assert.True(t, plan.RichReporting)
	assert.True(t, plan.HasArgPair("-c:v", "libx264"))
	for _, pair := range [][2]string{
		{"-crf", "23"},
		{"-g", "48"},
		{"-keyint_min", "48"},
		{"-sc_threshold", "0"},
		{"-bf", "3"},
		{"-b_strategy", "2"},
		{"-refs", "5"},
		{"-force_key_frames", "expr:gte(t,n_forced*2)"},
	} {
		assert.True(t, plan.HasArgPair(pair[0], pair[1]), pair)
	}
}

func TestX265_Plan(t *testing.T) {
	plan, err := X265.Build(testSpec("x265"), nil)
	require.NoError(t, err)

	assert.True(t, plan.RichReporting)
	assert.True(t, plan.HasArgPair("-x265-params", "keyint=48:min-keyint=48:scenecut=0:ref=5:bframes=3:b-adapt=2"))
}

func TestVP9_Plan(t *testing.T) {
	plan, err := VP9.Build(testSpec("vp9"), nil)
	require.NoError(t, err)

	assert.False(t, plan.RichReporting)
	assert.True(t, plan.HasArgPair("-c:v", "libvpx-vp9"))
	assert.True(t, plan.HasArgPair("-t", "60"))
	assert.True(t, plan.HasArgPair("-af", "channelmap=channel_layout=5.1"))
}

func TestBuild_InvalidSpec(t *testing.T) {
	spec := testSpec("x264")
	spec.OutputAsset = ""

	_, err := X264.Build(spec, nil)
	var vErr *types.MissingFieldError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "outputAsset", vErr.Field)
}

func TestBuild_UsesResolver(t *testing.T) {
	plan, err := X265.Build(testSpec("x265"), paths.BaseResolver{Root: "/srv"})
	require.NoError(t, err)
	assert.Equal(t, "/media/in/clip.mov", plan.InputPath)

	spec := testSpec("x265")
	spec.InputFolder = "in"
	plan, err = X265.Build(spec, paths.BaseResolver{Root: "/srv"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv", "in", "clip.mov"), plan.InputPath)
}

func TestNewRegistry_Custom(t *testing.T) {
	custom := New("av1", "libaom-av1", []string{"-cpu-used", "8"}, true)
	r := NewRegistry(custom, X264)

	assert.Equal(t, []string{"av1", "x264"}, r.IDs())
	infos := r.Profiles()
	require.Len(t, infos, 2)
	assert.Equal(t, types.ProfileInfo{ID: "av1", Encoder: "libaom-av1", RichReporting: true}, infos[0])

	// the default registry is unaffected
	_, err := Default().Resolve("av1")
	assert.Error(t, err)
}

func TestProfile_ParamsCopy(t *testing.T) {
	params := X264.Params()
	params[0] = "mutated"
	assert.Equal(t, "-crf", X264.Params()[0])
}
