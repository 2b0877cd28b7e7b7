package invoker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/control"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine/enginetest"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// stepClock returns base on the first call and base+step afterwards.
type stepClock struct {
	mu    sync.Mutex
	base  time.Time
	step  time.Duration
	calls int
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == 1 {
		return c.base
	}
	return c.base.Add(c.step)
}

func richPlan(profile string) *types.InvocationPlan {
	return &types.InvocationPlan{Profile: profile, InputPath: "/in/a.mov", OutputPath: "/out/a.mp4", RichReporting: true}
}

func texts(t *testing.T, ch *control.Channel) []string {
	t.Helper()
	var out []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-ch.Messages():
			if !ok {
				return out
			}
			out = append(out, msg.Text())
		case <-timeout:
			t.Fatal("timed out reading messages")
			return nil
		}
	}
}

func waitHandle(t *testing.T, h *JobHandle) (types.JobState, error) {
	t.Helper()
	select {
	case <-h.Done():
		return h.State(), h.Err()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job")
		return "", nil
	}
}

func TestInvoke_ProgressThenDone(t *testing.T) {
	eng := &enginetest.Engine{Script: enginetest.Script{Events: []engine.Event{
		enginetest.Progress(10),
		enginetest.Progress(55),
		enginetest.Progress(100),
		enginetest.End(),
	}}}
	clock := &stepClock{base: time.Unix(1700000000, 0), step: 12340 * time.Millisecond}
	inv := New(eng, hclog.NewNullLogger(), Options{Now: clock.Now})

	ch := control.New()
	h, err := inv.Invoke(context.Background(), "job-1", richPlan("x265"), ch)
	require.NoError(t, err)
	assert.Equal(t, 1001, h.PID())

	assert.Equal(t, []string{
		"Encoding: 10%",
		"Encoding: 55%",
		"Encoding: 100%",
		"Encoding finished after 12.34 s",
	}, texts(t, ch))

	state, err := waitHandle(t, h)
	assert.Equal(t, types.JobStateCompleted, state)
	assert.NoError(t, err)
	assert.Equal(t, 12340*time.Millisecond, h.Elapsed())
}

func TestInvoke_EngineError(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, JSONFormat: true, Level: hclog.Debug})

	eng := &enginetest.Engine{Script: enginetest.Script{Events: []engine.Event{
		enginetest.Failure("invalid codec parameters", "", "x265 [error]: ..."),
	}}}
	inv := New(eng, logger, Options{})

	ch := control.New()
	h, err := inv.Invoke(context.Background(), "job-1", richPlan("x265"), ch)
	require.NoError(t, err)

	assert.Equal(t, []string{"An error occurred during encoding. invalid codec parameters"}, texts(t, ch))

	state, err := waitHandle(t, h)
	assert.Equal(t, types.JobStateFailed, state)
	assert.True(t, errors.Is(err, encerr.ErrEngineRuntime))

	var records []map[string]interface{}
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		if rec["@level"] == "error" {
			records = append(records, rec)
		}
	}
	require.Len(t, records, 1)
	assert.Equal(t, "invalid codec parameters", records[0]["description"])
	assert.Equal(t, "", records[0]["stdout"])
	assert.Equal(t, "x265 [error]: ...", records[0]["stderr"])
}

func TestInvoke_ClampAndPassThroughDecrease(t *testing.T) {
	eng := &enginetest.Engine{Script: enginetest.Script{Events: []engine.Event{
		enginetest.Progress(-5),
		enginetest.Progress(33.5),
		enginetest.Progress(20.2),
		{Type: engine.EventProgress, Percent: 40},
		enginetest.Progress(120),
		enginetest.End(),
	}}}
	inv := New(eng, nil, Options{})

	ch := control.New()
	_, err := inv.Invoke(context.Background(), "job-1", richPlan("x264"), ch)
	require.NoError(t, err)

	msgs := texts(t, ch)
	require.Len(t, msgs, 5)
	assert.Equal(t, []string{"Encoding: 0%", "Encoding: 34%", "Encoding: 20%", "Encoding: 100%"}, msgs[:4])
}

func TestInvoke_LogOnlyProfile(t *testing.T) {
	script := enginetest.Script{Events: []engine.Event{enginetest.Progress(50), enginetest.End()}}

	t.Run("log only", func(t *testing.T) {
		var buf bytes.Buffer
		logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Info})
		inv := New(&enginetest.Engine{Script: script}, logger, Options{UniformReporting: false})

		plan := richPlan("vp9")
		plan.RichReporting = false

		ch := control.New()
		h, err := inv.Invoke(context.Background(), "job-1", plan, ch)
		require.NoError(t, err)

		assert.Empty(t, texts(t, ch))
		state, _ := waitHandle(t, h)
		assert.Equal(t, types.JobStateCompleted, state)
		assert.Contains(t, buf.String(), "Encoding: 50%")
		assert.Contains(t, buf.String(), "Encoding finished after")
	})

	t.Run("uniform", func(t *testing.T) {
		inv := New(&enginetest.Engine{Script: script}, nil, Options{UniformReporting: true})

		plan := richPlan("vp9")
		plan.RichReporting = false

		ch := control.New()
		_, err := inv.Invoke(context.Background(), "job-1", plan, ch)
		require.NoError(t, err)

		msgs := texts(t, ch)
		require.Len(t, msgs, 2)
		assert.Equal(t, "Encoding: 50%", msgs[0])
	})
}

func TestInvoke_StopWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	eng := &enginetest.Engine{Script: enginetest.Script{
		Events:   []engine.Event{enginetest.Progress(10), enginetest.Progress(20)},
		Gate:     gate,
		HoldOpen: true,
	}}
	inv := New(eng, nil, Options{})

	ch := control.New()
	h, err := inv.Invoke(context.Background(), "job-1", richPlan("x264"), ch)
	require.NoError(t, err)

	gate <- struct{}{}
	first := <-ch.Messages()
	assert.Equal(t, "Encoding: 10%", first.Text())

	assert.True(t, ch.RequestStop())

	// nothing follows the kill
	assert.Empty(t, texts(t, ch))
	state, err := waitHandle(t, h)
	assert.Equal(t, types.JobStateCancelled, state)
	assert.NoError(t, err)
	assert.Equal(t, 1, eng.Processes()[0].KillCalls())

	// stop after the terminal state is a no-op
	assert.False(t, ch.RequestStop())
}

func TestInvoke_StopLatchedBeforeInvoke(t *testing.T) {
	eng := &enginetest.Engine{Script: enginetest.Script{
		Events: []engine.Event{enginetest.Progress(10), enginetest.End()},
		Gate:   make(chan struct{}),
	}}
	inv := New(eng, nil, Options{})

	ch := control.New()
	require.True(t, ch.RequestStop())

	h, err := inv.Invoke(context.Background(), "job-1", richPlan("vp9"), ch)
	require.NoError(t, err)

	assert.Empty(t, texts(t, ch))
	state, _ := waitHandle(t, h)
	assert.Equal(t, types.JobStateCancelled, state)
}

func TestInvoke_KillFailureKeepsNaturalOutcome(t *testing.T) {
	gate := make(chan struct{})
	eng := &enginetest.Engine{Script: enginetest.Script{
		Events:  []engine.Event{enginetest.Progress(50), enginetest.End()},
		Gate:    gate,
		KillErr: errors.New("operation not permitted"),
	}}
	inv := New(eng, nil, Options{})

	ch := control.New()
	h, err := inv.Invoke(context.Background(), "job-1", richPlan("x264"), ch)
	require.NoError(t, err)

	require.True(t, ch.RequestStop())
	require.Eventually(t, func() bool { return eng.Processes()[0].KillCalls() == 1 }, 2*time.Second, 5*time.Millisecond)

	gate <- struct{}{}
	gate <- struct{}{}

	assert.Empty(t, texts(t, ch))
	state, _ := waitHandle(t, h)
	assert.Equal(t, types.JobStateCompleted, state)
}

func TestInvoke_StopAfterEngineExitedKeepsDone(t *testing.T) {
	gate := make(chan struct{})
	eng := &enginetest.Engine{Script: enginetest.Script{
		Events:  []engine.Event{enginetest.End()},
		Gate:    gate,
		KillErr: engine.ErrProcessExited,
	}}
	clock := &stepClock{base: time.Unix(1700000000, 0), step: 3 * time.Second}
	inv := New(eng, nil, Options{Now: clock.Now})

	ch := control.New()
	h, err := inv.Invoke(context.Background(), "job-1", richPlan("x265"), ch)
	require.NoError(t, err)

	require.True(t, ch.RequestStop())
	require.Eventually(t, func() bool { return eng.Processes()[0].KillCalls() == 1 }, 2*time.Second, 5*time.Millisecond)
	gate <- struct{}{}

	assert.Equal(t, []string{"Encoding finished after 3 s"}, texts(t, ch))
	state, err := waitHandle(t, h)
	assert.Equal(t, types.JobStateCompleted, state)
	assert.NoError(t, err)
}

func TestInvoke_StopAfterEngineFailedKeepsError(t *testing.T) {
	gate := make(chan struct{})
	eng := &enginetest.Engine{Script: enginetest.Script{
		Events:  []engine.Event{enginetest.Failure("ffmpeg exited with code 1", "", "")},
		Gate:    gate,
		KillErr: engine.ErrProcessExited,
	}}
	inv := New(eng, nil, Options{})

	ch := control.New()
	h, err := inv.Invoke(context.Background(), "job-1", richPlan("x264"), ch)
	require.NoError(t, err)

	require.True(t, ch.RequestStop())
	require.Eventually(t, func() bool { return eng.Processes()[0].KillCalls() == 1 }, 2*time.Second, 5*time.Millisecond)
	gate <- struct{}{}

	assert.Equal(t, []string{"An error occurred during encoding. ffmpeg exited with code 1"}, texts(t, ch))
	state, _ := waitHandle(t, h)
	assert.Equal(t, types.JobStateFailed, state)
}

func TestInvoke_ContextCancel(t *testing.T) {
	eng := &enginetest.Engine{Script: enginetest.Script{HoldOpen: true}}
	inv := New(eng, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	ch := control.New()
	h, err := inv.Invoke(ctx, "job-1", richPlan("x264"), ch)
	require.NoError(t, err)

	cancel()
	assert.Empty(t, texts(t, ch))
	state, _ := waitHandle(t, h)
	assert.Equal(t, types.JobStateCancelled, state)
}

func TestInvoke_UnknownPercentNotEmitted(t *testing.T) {
	eng := &enginetest.Engine{Script: enginetest.Script{Events: []engine.Event{
		{Type: engine.EventProgress, Known: false},
		enginetest.End(),
	}}}
	inv := New(eng, nil, Options{})

	ch := control.New()
	_, err := inv.Invoke(context.Background(), "job-1", richPlan("x264"), ch)
	require.NoError(t, err)

	msgs := texts(t, ch)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Encoding finished after")
}

func TestInvoke_SpawnFailure(t *testing.T) {
	eng := &enginetest.Engine{SpawnErr: errors.New("exec: \"ffmpeg\": executable file not found in $PATH")}
	inv := New(eng, nil, Options{})

	ch := control.New()
	h, err := inv.Invoke(context.Background(), "job-1", richPlan("x264"), ch)
	assert.Nil(t, h)
	require.Error(t, err)
	assert.True(t, errors.Is(err, encerr.ErrEngineSpawn))
	assert.False(t, ch.Finished())
	ch.Finish(nil)
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0, clampPercent(-1))
	assert.Equal(t, 0, clampPercent(0.4))
	assert.Equal(t, 1, clampPercent(0.5))
	assert.Equal(t, 100, clampPercent(250))
}
