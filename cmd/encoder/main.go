// Command encoder runs transcoding jobs on a local ffmpeg engine.
//
// Usage:
//
//	encoder [serve] [-config encoder.yaml]
//	encoder run -job job.json [-config encoder.yaml]
//	encoder profiles
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/config"
	"github.com/syborg2290/video-encoder/internal/logger"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/profile"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/remote"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/sinks"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	if len(args) == 0 || (strings.HasPrefix(args[0], "-") && args[0] != "-h" && args[0] != "-help") {
		return serve(args)
	}

	switch args[0] {
	case "serve":
		return serve(args[1:])
	case "run":
		return run(args[1:])
	case "profiles":
		return listProfiles(os.Stdout)
	case "help", "-h", "-help":
		usage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage(os.Stderr)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  encoder [serve] [-config path]        run the controller API")
	fmt.Fprintln(w, "  encoder run -job path [-config path]  run one job and stream its control messages")
	fmt.Fprintln(w, "  encoder profiles                      list encoding profiles")
}

func listProfiles(w io.Writer) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(profile.Default().Profiles()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to list profiles: %v\n", err)
		return 1
	}
	return 0
}

func defaultConfigPath() string {
	if path := os.Getenv("ENCODER_CONFIG_PATH"); path != "" {
		return path
	}
	if _, err := os.Stat("./encoder.yaml"); err == nil {
		return "./encoder.yaml"
	}
	return ""
}

// bootstrap loads the configuration and builds the root logger from it.
func bootstrap(configPath string) (*config.ConfigManager, hclog.Logger, io.Closer, error) {
	cm := config.NewConfigManager(nil)
	if err := cm.LoadConfig(configPath); err != nil {
		return nil, nil, nil, err
	}

	cfg := cm.GetConfig()
	appLogger, closer, err := logger.New(logger.Options{
		Name:   "encoder",
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	cm.SetLogger(appLogger)
	return cm, appLogger, closer, nil
}

// moduleOptions maps the service configuration onto the encoder module.
// withControl enables the Kafka stop-request consumer.
func moduleOptions(cfg *config.Config, withControl bool) encodermodule.Options {
	opts := encodermodule.Options{
		Config: &types.Config{
			FFmpegPath:        cfg.Engine.FFmpegPath,
			KillGracePeriod:   cfg.Engine.KillGracePeriod,
			OutputLines:       cfg.Engine.OutputLines,
			MediaRoot:         cfg.Encoder.MediaRoot,
			UniformReporting:  cfg.Encoder.UniformReporting,
			MaxConcurrentJobs: cfg.Encoder.MaxConcurrentJobs,
			RetentionPeriod:   cfg.Encoder.RetentionPeriod,
			CleanupInterval:   cfg.Encoder.CleanupInterval,
		},
	}

	if cfg.Redis.Enabled {
		opts.Redis = &sinks.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		}
	}

	if cfg.Kafka.Enabled {
		if cfg.Kafka.StatusTopic != "" {
			opts.Kafka = &sinks.KafkaConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.StatusTopic,
			}
		}
		if withControl && cfg.Kafka.ControlTopic != "" {
			opts.Control = &remote.Config{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.ControlTopic,
				GroupID: cfg.Kafka.GroupID,
			}
		}
	}

	return opts
}
