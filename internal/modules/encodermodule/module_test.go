package encodermodule

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine/enginetest"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/profile"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

func TestModule_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)

	eng := &enginetest.Engine{Script: enginetest.Script{Events: []engine.Event{
		enginetest.Progress(42), enginetest.End(),
	}}}
	cfg := types.DefaultConfig()
	cfg.MediaRoot = "/media"
	cfg.CleanupInterval = 0

	m := NewModule(Options{Config: cfg, Engine: eng}, hclog.NewNullLogger())
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, []string{"vp9", "x264", "x265"}, m.Profiles().IDs())
	assert.Same(t, profile.Default(), m.Profiles())

	router := gin.New()
	m.RegisterRoutes(router)

	body := `{"inputFolder":"in","inputAsset":"a.mov","outputFolder":"out","outputAsset":"a.webm",
		"videoEncoder":"vp9","videoBitrate":"1500","videoSize":"640x360",
		"audioEncoder":"libopus","audioBitrate":"96k","audioFrequency":"48000"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/encoder/jobs", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		jobs := m.Manager().List()
		return len(jobs) == 1 && jobs[0].State == types.JobStateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// uniform reporting relays vp9 messages too
	info, err := m.Manager().Get(m.Manager().List()[0].JobID)
	require.NoError(t, err)
	require.Len(t, info.Messages, 2)
	assert.Equal(t, "Encoding: 42%", info.Messages[0].Message)

	plans := eng.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, "/media/in/a.mov", plans[0].InputPath)
	assert.Equal(t, "/media/out/a.webm", plans[0].OutputPath)
	assert.True(t, plans[0].HasArgPair("-c:v", "libvpx-vp9"))
	assert.True(t, plans[0].HasArgPair("-b:v", "1500k"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))
}

func TestModule_RoutesBeforeInit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewModule(Options{}, nil)

	router := gin.New()
	m.RegisterRoutes(router)
	assert.Empty(t, router.Routes())
	assert.NoError(t, m.Shutdown(context.Background()))
}
