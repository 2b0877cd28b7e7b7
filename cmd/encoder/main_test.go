package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syborg2290/video-encoder/internal/config"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine/enginetest"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

func testSpec() types.JobSpecification {
	return types.JobSpecification{
		InputFolder:    "/in",
		InputAsset:     "a.mov",
		OutputFolder:   "/out",
		OutputAsset:    "a.mp4",
		VideoEncoder:   "x265",
		VideoBitrate:   "2000k",
		VideoSize:      "1920x1080",
		AudioEncoder:   "aac",
		AudioBitrate:   "192k",
		AudioFrequency: "48000",
	}
}

func startModule(t *testing.T, eng engine.Engine) *encodermodule.Module {
	t.Helper()
	m := encodermodule.NewModule(encodermodule.Options{Engine: eng}, hclog.NewNullLogger())
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func decodeEnvelopes(t *testing.T, data []byte) []types.Envelope {
	t.Helper()
	var out []types.Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var env types.Envelope
		err := dec.Decode(&env)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, env)
	}
}

func TestRunJob_Completed(t *testing.T) {
	eng := &enginetest.Engine{Script: enginetest.Script{Events: []engine.Event{
		enginetest.Progress(33.4), enginetest.End(),
	}}}
	m := startModule(t, eng)

	var out bytes.Buffer
	state, err := runJob(m.Manager(), testSpec(), &out, nil, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, types.JobStateCompleted, state)
	assert.Equal(t, exitCompleted, exitCodeFor(state))

	envs := decodeEnvelopes(t, out.Bytes())
	require.Len(t, envs, 2)
	assert.Equal(t, "Encoding: 33%", envs[0].Message)
	assert.Equal(t, types.MessageDone, envs[1].Type)
}

func TestRunJob_StopFromStdin(t *testing.T) {
	eng := &enginetest.Engine{Script: enginetest.Script{HoldOpen: true}}
	m := startModule(t, eng)

	r, w := io.Pipe()
	defer w.Close()
	go func() {
		assert.Eventually(t, func() bool {
			return m.Manager().Stats()[types.JobStateRunning] == 1
		}, 2*time.Second, 10*time.Millisecond)
		_, _ = io.WriteString(w, "not json\n"+`{"type":"STOP_ENCODING"}`+"\n")
	}()

	var out bytes.Buffer
	state, err := runJob(m.Manager(), testSpec(), &out, r, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, types.JobStateCancelled, state)
	assert.Equal(t, exitCancelled, exitCodeFor(state))
	assert.Empty(t, out.String())
}

func TestRunJob_FailedSpec(t *testing.T) {
	m := startModule(t, &enginetest.Engine{})

	spec := testSpec()
	spec.VideoEncoder = "av1"

	var out bytes.Buffer
	state, err := runJob(m.Manager(), spec, &out, nil, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, types.JobStateFailed, state)
	assert.Equal(t, exitFailed, exitCodeFor(state))

	envs := decodeEnvelopes(t, out.Bytes())
	require.Len(t, envs, 1)
	assert.Equal(t, types.MessageError, envs[0].Type)
	assert.Equal(t, `An error occurred during encoding. unsupported encoding profile: "av1"`, envs[0].Message)
}

func TestReadSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	data, err := json.Marshal(testSpec())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	spec, err := readSpec(path)
	require.NoError(t, err)
	assert.Equal(t, testSpec(), spec)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = readSpec(bad)
	assert.Error(t, err)

	_, err = readSpec(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}

func TestModuleOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	opts := moduleOptions(cfg, true)
	assert.Nil(t, opts.Redis)
	assert.Nil(t, opts.Kafka)
	assert.Nil(t, opts.Control)
	assert.Equal(t, "ffmpeg", opts.Config.FFmpegPath)
	assert.True(t, opts.Config.UniformReporting)

	cfg.Redis.Enabled = true
	cfg.Kafka.Enabled = true
	opts = moduleOptions(cfg, true)
	require.NotNil(t, opts.Redis)
	assert.Equal(t, "localhost:6379", opts.Redis.Addr)
	require.NotNil(t, opts.Kafka)
	assert.Equal(t, "encoder.status", opts.Kafka.Topic)
	require.NotNil(t, opts.Control)
	assert.Equal(t, "encoder.control", opts.Control.Topic)

	assert.Nil(t, moduleOptions(cfg, false).Control)
}

func TestListProfiles(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, 0, listProfiles(&out))
	for _, id := range []string{"x265", "vp9", "x264"} {
		assert.True(t, strings.Contains(out.String(), `"id": "`+id+`"`), id)
	}
}

func TestDispatch_Unknown(t *testing.T) {
	assert.Equal(t, 1, dispatch([]string{"transcode"}))
}
