// Package config loads the encoder service configuration from defaults, an
// optional YAML or JSON file and ENCODER_* environment variables, and
// reloads it when the file changes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Config holds the complete service configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Engine configuration
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Job execution configuration
	Encoder EncoderConfig `yaml:"encoder" json:"encoder"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Status tracking in Redis
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// Status events and stop requests over Kafka
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"ENCODER_HOST"`
	Port            int           `yaml:"port" json:"port" env:"ENCODER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"ENCODER_READ_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"ENCODER_SHUTDOWN_TIMEOUT"`
	EnableCORS      bool          `yaml:"enable_cors" json:"enable_cors" env:"ENCODER_ENABLE_CORS"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins" env:"ENCODER_ALLOWED_ORIGINS"`
}

// EngineConfig holds ffmpeg process configuration
type EngineConfig struct {
	FFmpegPath      string        `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"ENCODER_FFMPEG_PATH"`
	KillGracePeriod time.Duration `yaml:"kill_grace_period" json:"kill_grace_period" env:"ENCODER_KILL_GRACE_PERIOD"`
	OutputLines     int           `yaml:"output_lines" json:"output_lines" env:"ENCODER_OUTPUT_LINES"`
}

// EncoderConfig holds job execution configuration
type EncoderConfig struct {
	UniformReporting  bool          `yaml:"uniform_reporting" json:"uniform_reporting" env:"ENCODER_UNIFORM_REPORTING"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs" env:"ENCODER_MAX_CONCURRENT_JOBS"`
	RetentionPeriod   time.Duration `yaml:"retention_period" json:"retention_period" env:"ENCODER_RETENTION_PERIOD"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"ENCODER_CLEANUP_INTERVAL"`
	MediaRoot         string        `yaml:"media_root" json:"media_root" env:"ENCODER_MEDIA_ROOT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"ENCODER_LOG_LEVEL"`
	Format string `yaml:"format" json:"format" env:"ENCODER_LOG_FORMAT"`
	Output string `yaml:"output" json:"output" env:"ENCODER_LOG_OUTPUT"`
}

// RedisConfig holds Redis status tracker configuration
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" env:"ENCODER_REDIS_ENABLED"`
	Addr      string        `yaml:"addr" json:"addr" env:"ENCODER_REDIS_ADDR"`
	Password  string        `yaml:"password" json:"-" env:"ENCODER_REDIS_PASSWORD"`
	DB        int           `yaml:"db" json:"db" env:"ENCODER_REDIS_DB"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix" env:"ENCODER_REDIS_KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" json:"ttl" env:"ENCODER_REDIS_TTL"`
}

// KafkaConfig holds Kafka publisher and consumer configuration
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled" env:"ENCODER_KAFKA_ENABLED"`
	Brokers      []string `yaml:"brokers" json:"brokers" env:"ENCODER_KAFKA_BROKERS"`
	StatusTopic  string   `yaml:"status_topic" json:"status_topic" env:"ENCODER_KAFKA_STATUS_TOPIC"`
	ControlTopic string   `yaml:"control_topic" json:"control_topic" env:"ENCODER_KAFKA_CONTROL_TOPIC"`
	GroupID      string   `yaml:"group_id" json:"group_id" env:"ENCODER_KAFKA_GROUP_ID"`
}

// ConfigManager manages service configuration with hot-reload support
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	logger     hclog.Logger
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

// NewConfigManager creates a new configuration manager
func NewConfigManager(logger hclog.Logger) *ConfigManager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ConfigManager{
		config:   DefaultConfig(),
		watchers: make([]ConfigWatcher, 0),
		logger:   logger.Named("config"),
	}
}

// DefaultConfig returns the default service configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			EnableCORS:      true,
			AllowedOrigins:  []string{"*"},
		},
		Engine: EngineConfig{
			FFmpegPath:      "ffmpeg",
			KillGracePeriod: 5 * time.Second,
			OutputLines:     100,
		},
		Encoder: EncoderConfig{
			UniformReporting:  true,
			MaxConcurrentJobs: 0, // Unlimited
			RetentionPeriod:   1 * time.Hour,
			CleanupInterval:   10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "job",
			TTL:       24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			StatusTopic:  "encoder.status",
			ControlTopic: "encoder.control",
			GroupID:      "video-encoder",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := *cm.config
	cm.configPath = configPath

	// Start with default configuration
	newConfig := DefaultConfig()

	// Load from file if it exists
	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
		cm.logger.Info("configuration loaded from file", "path", configPath)
	}

	// Override with environment variables
	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = newConfig

	// Notify watchers of config change
	for _, watcher := range cm.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// Return a copy to prevent external modifications
	configCopy := *cm.config
	return &configCopy
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// SaveConfig saves the current configuration to file
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	return saveToFile(cm.configPath, cm.config)
}

// Watch reloads the configuration whenever the loaded file is written or
// replaced, until ctx ends. A reload that fails validation keeps the
// previous configuration.
func (cm *ConfigManager) Watch(ctx context.Context) error {
	cm.mu.RLock()
	path := cm.configPath
	cm.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no config path set")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory; editors often replace the file instead of writing it
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	cm.logger.Info("watching configuration file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := cm.LoadConfig(path); err != nil {
				cm.logger.Error("configuration reload failed", "path", path, "error", err)
				continue
			}
			cm.logger.Info("configuration reloaded", "path", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cm.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}

	if strings.TrimSpace(c.Engine.FFmpegPath) == "" {
		return &ValidationError{Field: "engine.ffmpeg_path", Message: "is required"}
	}

	if c.Engine.OutputLines < 1 {
		return &ValidationError{Field: "engine.output_lines", Message: "must be at least 1"}
	}

	if c.Encoder.MaxConcurrentJobs < 0 {
		return &ValidationError{Field: "encoder.max_concurrent_jobs", Message: "must not be negative"}
	}

	if hclog.LevelFromString(c.Logging.Level) == hclog.NoLevel {
		return &ValidationError{Field: "logging.level", Message: "unknown level " + strconv.Quote(c.Logging.Level)}
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return &ValidationError{Field: "logging.format", Message: "must be json or text"}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return &ValidationError{Field: "redis.addr", Message: "is required when redis is enabled"}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return &ValidationError{Field: "kafka.brokers", Message: "is required when kafka is enabled"}
	}

	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error in field '" + e.Field + "': " + e.Message
}

// Helper methods

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func saveToFile(path string, config *Config) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		// Handle nested structs recursively
		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SetLogger replaces the logger used for load and reload messages.
func (cm *ConfigManager) SetLogger(logger hclog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger.Named("config")
}
