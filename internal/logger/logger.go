// Package logger builds the service's structured hclog loggers.
package logger

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Options configures the root logger.
type Options struct {
	Name   string
	Level  string // trace, debug, info, warn, error
	Format string // json or text
	Output string // stdout, stderr or a file path
}

// New creates the root logger. An unknown level falls back to info. The
// returned closer releases a log file and is a no-op otherwise.
func New(opts Options) (hclog.Logger, io.Closer, error) {
	out, closer, err := openOutput(opts.Output)
	if err != nil {
		return nil, nil, err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      ParseLevel(opts.Level),
		Output:     out,
		JSONFormat: strings.EqualFold(opts.Format, "json"),
	})
	return logger, closer, nil
}

// ParseLevel maps a level name to an hclog level, defaulting to info.
func ParseLevel(level string) hclog.Level {
	if l := hclog.LevelFromString(level); l != hclog.NoLevel {
		return l
	}
	return hclog.Info
}

// StandardWriter adapts logger for libraries that write plain log lines,
// such as gin's request logger. Levels are inferred from line prefixes.
func StandardWriter(logger hclog.Logger) io.Writer {
	return logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})
}

// RedirectStdLog sends the standard library logger through logger.
func RedirectStdLog(logger hclog.Logger) {
	log.SetFlags(0)
	log.SetOutput(StandardWriter(logger))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
