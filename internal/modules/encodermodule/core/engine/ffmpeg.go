package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/ffmpeg"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// FFmpegConfig configures the ffmpeg engine.
type FFmpegConfig struct {
	// Binary is the executable to run, resolved through PATH.
	Binary string
	// OutputLines is how many trailing stdout and stderr lines are kept.
	OutputLines int
}

// FFmpeg runs plans with the ffmpeg binary.
type FFmpeg struct {
	config   FFmpegConfig
	registry *Registry
	logger   hclog.Logger
}

// NewFFmpeg creates an ffmpeg engine. Processes are tracked in registry.
func NewFFmpeg(config FFmpegConfig, registry *Registry, logger hclog.Logger) *FFmpeg {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.Binary == "" {
		config.Binary = "ffmpeg"
	}
	if config.OutputLines <= 0 {
		config.OutputLines = 100
	}
	if registry == nil {
		registry = NewRegistry(logger, 0)
	}
	return &FFmpeg{
		config:   config,
		registry: registry,
		logger:   logger.Named("engine"),
	}
}

// Registry exposes the process registry backing this engine.
func (f *FFmpeg) Registry() *Registry {
	return f.registry
}

// Start implements Engine
func (f *FFmpeg) Start(ctx context.Context, jobID string, plan *types.InvocationPlan) (Process, error) {
	cmd := exec.Command(f.config.Binary, plan.Args...)
	// Own process group so the whole tree can be signalled
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := newTailBuffer(f.config.OutputLines)
	cmd.Stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, encerr.SpawnError("start", err).WithJob(jobID)
	}

	if err := cmd.Start(); err != nil {
		return nil, encerr.SpawnError("start", err).
			WithJob(jobID).
			WithDetail("binary", f.config.Binary)
	}

	p := &ffmpegProcess{
		cmd:      cmd,
		jobID:    jobID,
		registry: f.registry,
		logger:   f.logger.With("job_id", jobID, "pid", cmd.Process.Pid),
		events:   make(chan Event, 16),
		exited:   make(chan struct{}),
		stdout:   stdout,
		stderr:   newTailBuffer(f.config.OutputLines),
	}

	if err := f.registry.Register(p.PID(), jobID, p.exited); err != nil {
		p.logger.Warn("failed to register process", "error", err)
	}

	p.logger.Info("engine started", "binary", f.config.Binary, "profile", plan.Profile)

	go p.run(ctx, stderr)

	return p, nil
}

// maxStderrLine bounds a single stderr line. Longer lines stop progress
// parsing but the stream is still drained.
const maxStderrLine = 1 << 20

type ffmpegProcess struct {
	cmd      *exec.Cmd
	jobID    string
	registry *Registry
	logger   hclog.Logger

	events chan Event
	exited chan struct{}

	stdout *tailBuffer
	stderr *tailBuffer

	killOnce sync.Once
	killErr  error
}

func (p *ffmpegProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *ffmpegProcess) Events() <-chan Event {
	return p.events
}

// Kill stops the process through the registry. It is idempotent and returns
// once the process has been reaped. ErrProcessExited means the process ended
// by itself, either before the signal or by finishing successfully anyway.
func (p *ffmpegProcess) Kill() error {
	p.killOnce.Do(func() {
		select {
		case <-p.exited:
			p.killErr = ErrProcessExited
			return
		default:
		}

		if _, ok := p.registry.Get(p.PID()); ok {
			p.killErr = p.registry.Terminate(p.PID())
		} else {
			// Registration failed at start
			p.killErr = p.cmd.Process.Kill()
			if p.killErr == nil {
				<-p.exited
			}
		}

		select {
		case <-p.exited:
			if p.killErr != nil || p.cmd.ProcessState.Success() {
				p.killErr = ErrProcessExited
			}
		default:
		}
	})
	return p.killErr
}

func (p *ffmpegProcess) run(ctx context.Context, stderr io.Reader) {
	defer close(p.events)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.logger.Debug("context cancelled, stopping engine")
			if err := p.Kill(); err != nil {
				p.logger.Debug("failed to stop engine on cancel", "error", err)
			}
		case <-stop:
		}
	}()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	scanner.Split(scanLines)

	parser := ffmpeg.NewProgressParser(0)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.stderr.Add(line)

		percent, known, ok := parser.Feed(line)
		if !ok {
			continue
		}
		p.events <- Event{Type: EventProgress, Percent: percent, Known: known}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("stderr scanner stopped, discarding the rest", "error", err)
		// Keep the pipe drained or the engine blocks writing and never exits
		if _, err := io.Copy(io.Discard, stderr); err != nil && !errors.Is(err, os.ErrClosed) {
			p.logger.Debug("failed to drain stderr", "error", err)
		}
	}

	waitErr := p.cmd.Wait()
	close(p.exited)
	p.registry.Unregister(p.PID())

	if waitErr == nil {
		p.logger.Debug("engine exited")
		p.events <- Event{Type: EventEnd}
		return
	}

	p.events <- Event{
		Type:   EventError,
		Err:    p.exitError(waitErr),
		Stdout: p.stdout.String(),
		Stderr: p.stderr.String(),
	}
}

func (p *ffmpegProcess) exitError(waitErr error) error {
	last := p.stderr.Last()

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return fmt.Errorf("ffmpeg was killed by signal: %s", status.Signal())
		}
		if last != "" {
			return fmt.Errorf("ffmpeg exited with code %d: %s", exitErr.ExitCode(), last)
		}
		return fmt.Errorf("ffmpeg exited with code %d", exitErr.ExitCode())
	}
	return waitErr
}
