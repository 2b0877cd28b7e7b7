package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/session"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// Exit codes for the run command
const (
	exitCompleted = 0
	exitFailed    = 1
	exitCancelled = 2
)

// run executes one job and writes its outbound envelopes to stdout as JSON
// lines. SIGINT, SIGTERM or a STOP_ENCODING envelope on stdin stops it.
func run(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to a YAML or JSON config file")
	jobPath := fs.String("job", "", "path to a JSON job specification")
	stdinControl := fs.Bool("stdin-control", true, "accept control envelopes on stdin")
	_ = fs.Parse(args)

	if *jobPath == "" {
		fmt.Fprintln(os.Stderr, "run: -job is required")
		fs.Usage()
		return exitFailed
	}

	spec, err := readSpec(*jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return exitFailed
	}

	cm, appLogger, closer, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return exitFailed
	}
	defer closer.Close()

	module := encodermodule.NewModule(moduleOptions(cm.GetConfig(), false), appLogger)
	if err := module.Init(context.Background()); err != nil {
		appLogger.Error("failed to initialize encoder module", "error", err)
		return exitFailed
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cm.GetConfig().Server.ShutdownTimeout)
		defer cancel()
		if err := module.Shutdown(ctx); err != nil {
			appLogger.Error("encoder module shutdown error", "error", err)
		}
	}()

	state, err := runJob(module.Manager(), spec, os.Stdout, controlInput(*stdinControl), appLogger)
	if err != nil {
		appLogger.Error("job could not run", "error", err)
		return exitFailed
	}
	return exitCodeFor(state)
}

func controlInput(enabled bool) io.Reader {
	if !enabled {
		return nil
	}
	return os.Stdin
}

func readSpec(path string) (types.JobSpecification, error) {
	var spec types.JobSpecification

	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("failed to read job specification: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse job specification: %w", err)
	}
	return spec, nil
}

// runJob submits spec, relays its messages to out and returns the final
// state. control, if set, is read for inbound envelopes.
func runJob(m *session.Manager, spec types.JobSpecification, out io.Writer, control io.Reader, logger hclog.Logger) (types.JobState, error) {
	info, err := m.Submit(context.Background(), spec)
	if err != nil {
		return "", err
	}
	jobID := info.JobID
	logger = logger.With("job_id", jobID)

	msgs, cancel, err := m.Subscribe(jobID)
	if err != nil {
		return "", err
	}
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	finished := make(chan struct{})
	defer close(finished)

	go func() {
		for {
			select {
			case sig := <-signals:
				logger.Info("stop requested by signal", "signal", sig.String())
				_, _ = m.Stop(jobID)
			case <-finished:
				return
			}
		}
	}()

	if control != nil {
		go readControl(m, jobID, control, logger)
	}

	enc := json.NewEncoder(out)
	for msg := range msgs {
		if err := enc.Encode(msg.Envelope()); err != nil {
			logger.Warn("failed to write control message", "error", err)
		}
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelWait()

	final, err := m.Wait(ctx, jobID)
	if err != nil {
		return "", err
	}
	return final.State, nil
}

// readControl delivers envelopes read line by line from r until EOF.
func readControl(m *session.Manager, jobID string, r io.Reader, logger hclog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		env, err := types.ParseEnvelope(line)
		if err != nil {
			logger.Warn("invalid control envelope on stdin", "error", err)
			continue
		}
		if _, err := m.Deliver(jobID, env); err != nil {
			logger.Warn("control envelope rejected", "error", err)
		}
	}
}

func exitCodeFor(state types.JobState) int {
	switch state {
	case types.JobStateCompleted:
		return exitCompleted
	case types.JobStateCancelled:
		return exitCancelled
	default:
		return exitFailed
	}
}
