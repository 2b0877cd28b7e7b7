package ffmpeg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, ok := ParseDuration("  Duration: 00:01:23.45, start: 0.000000, bitrate: 1234 kb/s")
	require.True(t, ok)
	assert.Equal(t, time.Minute+23*time.Second+450*time.Millisecond, d)

	_, ok = ParseDuration("Stream #0:0: Video: h264")
	assert.False(t, ok)
}

func TestParseTime(t *testing.T) {
	d, ok := ParseTime("frame= 1234 fps=25.0 q=28.0 size=  10240kB time=00:00:51.20 bitrate=1638.4kbits/s speed=1.05x")
	require.True(t, ok)
	assert.Equal(t, 51*time.Second+200*time.Millisecond, d)

	_, ok = ParseTime("frame=    0 fps=0.0 q=0.0 size=       0kB time=N/A bitrate=N/A")
	assert.False(t, ok)
}

func TestProgressParser_Feed(t *testing.T) {
	p := NewProgressParser(0)

	// progress before a duration is known
	_, known, ok := p.Feed("frame=1 time=00:00:01.00 bitrate=1k")
	assert.True(t, ok)
	assert.False(t, known)

	_, _, ok = p.Feed("  Duration: 00:00:10.00, start: 0.000000, bitrate: 1 kb/s")
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, p.Total())

	percent, known, ok := p.Feed("frame=50 time=00:00:05.50 bitrate=1k")
	require.True(t, ok)
	assert.True(t, known)
	assert.InDelta(t, 55.0, percent, 0.001)

	_, _, ok = p.Feed("Press [q] to stop, [?] for help")
	assert.False(t, ok)
}

func TestProgressParser_PresetTotal(t *testing.T) {
	p := NewProgressParser(4 * time.Second)
	percent, known, ok := p.Feed("time=00:00:05.00")
	require.True(t, ok)
	assert.True(t, known)
	assert.InDelta(t, 125.0, percent, 0.001)
}
