package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

var (
	durationRegex = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+(?:\.\d+)?)`)
	timeRegex     = regexp.MustCompile(`time=\s*(-?\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// ParseDuration extracts the input duration from an ffmpeg banner line.
// Format: "  Duration: 00:01:23.45, start: 0.000000, bitrate: 1234 kb/s"
func ParseDuration(line string) (time.Duration, bool) {
	match := durationRegex.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	return clockToDuration(match[1], match[2], match[3]), true
}

// ParseTime extracts the encoded position from an ffmpeg stats line.
// Format: "frame= 1234 fps=25.0 q=28.0 size=  10240kB time=00:00:51.20 bitrate=1638.4kbits/s speed=1.05x"
func ParseTime(line string) (time.Duration, bool) {
	match := timeRegex.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	return clockToDuration(match[1], match[2], match[3]), true
}

func clockToDuration(h, m, s string) time.Duration {
	hours, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	secs, _ := strconv.ParseFloat(s, 64)
	return time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs*float64(time.Second))
}

// ProgressParser turns a stream of stderr lines into percent readings.
// It is not safe for concurrent use.
type ProgressParser struct {
	total time.Duration
}

// NewProgressParser creates a parser. A non-zero total skips waiting for
// the Duration banner.
func NewProgressParser(total time.Duration) *ProgressParser {
	return &ProgressParser{total: total}
}

// Total returns the duration seen so far, or zero.
func (p *ProgressParser) Total() time.Duration {
	return p.total
}

// Feed consumes one line. ok is false when the line carries no progress.
// known is false when progress was reported before any duration was seen.
// percent is raw and may exceed 100.
func (p *ProgressParser) Feed(line string) (percent float64, known bool, ok bool) {
	if p.total == 0 {
		if d, found := ParseDuration(line); found && d > 0 {
			p.total = d
			return 0, false, false
		}
	}

	current, found := ParseTime(line)
	if !found {
		return 0, false, false
	}
	if p.total <= 0 {
		return 0, false, true
	}
	return float64(current) / float64(p.total) * 100, true, true
}
