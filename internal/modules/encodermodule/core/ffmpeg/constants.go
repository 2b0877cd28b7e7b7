// Package ffmpeg builds ffmpeg command lines for encoding jobs and reads
// ffmpeg's stderr for progress.
package ffmpeg

// Common FFmpeg argument constants
var (
	GlobalArgs = struct {
		HideBanner []string
		Overwrite  []string
	}{
		HideBanner: []string{"-hide_banner"},
		Overwrite:  []string{"-y"},
	}

	InputArgs = struct {
		Input []string
	}{
		Input: []string{"-i"},
	}

	VideoEncodingArgs = struct {
		Codec   []string
		Bitrate []string
		Size    []string
	}{
		Codec:   []string{"-c:v"},
		Bitrate: []string{"-b:v"},
		Size:    []string{"-s"},
	}

	AudioEncodingArgs = struct {
		Codec      []string
		Bitrate    []string
		SampleRate []string
	}{
		Codec:      []string{"-c:a"},
		Bitrate:    []string{"-b:a"},
		SampleRate: []string{"-ar"},
	}
)

// Encoder names per profile id.
const (
	EncoderX265 = "libx265"
	EncoderVP9  = "libvpx-vp9"
	EncoderX264 = "libx264"
)
