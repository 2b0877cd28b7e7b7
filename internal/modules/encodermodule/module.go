// Package encodermodule runs transcoding jobs on a local ffmpeg engine and
// exposes them to controllers.
//
// A job flows through:
//
//	JobSpecification → Profile (plan builder) → Invoker (ffmpeg) → Control channel
//
// The module owns:
// - The profile registry (x265, vp9, x264)
// - The engine process registry and graceful termination
// - The job runner state machine and the session manager
// - Optional status mirroring to Redis and Kafka
// - Optional stop requests consumed from a Kafka control topic
package encodermodule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/api"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/engine"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/invoker"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/paths"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/profile"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/remote"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/runner"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/session"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/sinks"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

const (
	// ModuleID is the unique identifier for the encoder module
	ModuleID = "system.encoder"

	// ModuleName is the display name for the encoder module
	ModuleName = "Encoder"

	// ModuleVersion is the version of the encoder module
	ModuleVersion = "1.0.0"
)

// Options carries the module configuration and optional collaborators.
type Options struct {
	Config *types.Config

	// Redis and Kafka enable status sinks when non-nil
	Redis *sinks.RedisConfig
	Kafka *sinks.KafkaConfig

	// Control enables the Kafka stop-request consumer when non-nil
	Control *remote.Config

	// Engine replaces the ffmpeg engine; used by tests
	Engine engine.Engine
}

// Module wires the encoder components together.
type Module struct {
	options  Options
	logger   hclog.Logger
	profiles *profile.Registry
	registry *engine.Registry
	manager  *session.Manager
	consumer *remote.Consumer

	consumerCancel context.CancelFunc
	consumerDone   chan struct{}
	shutdownOnce   sync.Once
}

// NewModule creates a new encoder module
func NewModule(options Options, logger hclog.Logger) *Module {
	if options.Config == nil {
		options.Config = types.DefaultConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Module{
		options: options,
		logger:  logger.Named("encoder"),
	}
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// GetVersion returns the module version
func (m *Module) GetVersion() string {
	return ModuleVersion
}

// Init builds the pipeline and starts the optional sinks and consumer.
func (m *Module) Init(ctx context.Context) error {
	cfg := m.options.Config
	m.logger.Info("initializing encoder module",
		"ffmpeg", cfg.FFmpegPath,
		"uniform_reporting", cfg.UniformReporting,
		"max_concurrent_jobs", cfg.MaxConcurrentJobs)

	m.profiles = profile.Init(m.logger)

	eng := m.options.Engine
	if eng == nil {
		m.registry = engine.GetRegistry(m.logger, cfg.KillGracePeriod)
		eng = engine.NewFFmpeg(engine.FFmpegConfig{
			Binary:      cfg.FFmpegPath,
			OutputLines: cfg.OutputLines,
		}, m.registry, m.logger)
	}

	var resolver paths.Resolver = paths.Default()
	if cfg.MediaRoot != "" {
		resolver = paths.BaseResolver{Root: cfg.MediaRoot}
	}

	inv := invoker.New(eng, m.logger, invoker.Options{UniformReporting: cfg.UniformReporting})
	r := runner.New(m.profiles, resolver, inv, m.logger)

	statusSinks, err := m.openSinks(ctx)
	if err != nil {
		return err
	}

	sessionConfig := session.DefaultConfig()
	sessionConfig.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	sessionConfig.RetentionPeriod = cfg.RetentionPeriod
	sessionConfig.CleanupInterval = cfg.CleanupInterval
	m.manager = session.NewManager(r, sessionConfig, m.logger, statusSinks...)

	if m.options.Control != nil {
		m.consumer = remote.NewConsumer(*m.options.Control, m.manager, m.logger)
		m.startConsumer()
	}

	m.logger.Info("encoder module initialized", "profiles", m.profiles.IDs(), "sinks", len(statusSinks))
	return nil
}

func (m *Module) openSinks(ctx context.Context) ([]session.StatusSink, error) {
	var out []session.StatusSink

	if m.options.Redis != nil {
		tracker, err := sinks.NewRedisTracker(ctx, *m.options.Redis, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect status tracker: %w", err)
		}
		out = append(out, tracker)
	}
	if m.options.Kafka != nil {
		out = append(out, sinks.NewKafkaPublisher(*m.options.Kafka, m.logger))
	}

	return out, nil
}

func (m *Module) startConsumer() {
	ctx, cancel := context.WithCancel(context.Background())
	m.consumerCancel = cancel
	m.consumerDone = make(chan struct{})

	go func() {
		defer close(m.consumerDone)
		if err := m.consumer.Run(ctx); err != nil {
			m.logger.Error("control consumer stopped", "error", err)
		}
	}()
}

// RegisterRoutes registers all encoder module HTTP routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if m.manager == nil {
		m.logger.Error("cannot register routes: module not initialized")
		return
	}

	var processes api.ProcessLister
	if m.registry != nil {
		processes = m.registry
	}

	api.RegisterRoutes(router, api.NewAPIHandler(m.manager, m.profiles, processes, m.logger))
	m.logger.Info("encoder module routes registered")
}

// Manager returns the session manager. It is nil before Init.
func (m *Module) Manager() *session.Manager {
	return m.manager
}

// Profiles returns the profile registry. It is nil before Init.
func (m *Module) Profiles() *profile.Registry {
	return m.profiles
}

// SetLogLevel changes the module log level at runtime.
func (m *Module) SetLogLevel(level hclog.Level) {
	m.logger.SetLevel(level)
}

// Shutdown stops every job, then any engine process left behind, then the
// consumer.
func (m *Module) Shutdown(ctx context.Context) error {
	var errs []error

	m.shutdownOnce.Do(func() {
		m.logger.Info("shutting down encoder module")

		if m.consumer != nil {
			m.consumerCancel()
			<-m.consumerDone
			if err := m.consumer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("control consumer: %w", err))
			}
		}

		if m.manager != nil {
			if err := m.manager.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("session manager: %w", err))
			}
		}

		if m.registry != nil {
			if err := m.registry.KillAll(ctx); err != nil {
				errs = append(errs, fmt.Errorf("process registry: %w", err))
			}
		}
	})

	return errors.Join(errs...)
}
