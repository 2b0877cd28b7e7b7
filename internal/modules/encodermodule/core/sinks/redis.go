// Package sinks mirrors job status changes to external systems.
package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// RedisClient is the subset of *redis.Client the tracker needs.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisConfig configures the Redis status tracker.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisTracker keeps a live status hash per job at <prefix>:<jobID>.
type RedisTracker struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	logger hclog.Logger
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(ctx context.Context, config RedisConfig, logger hclog.Logger) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return NewRedisTrackerWithClient(client, config, logger), nil
}

// NewRedisTrackerWithClient wraps an existing client.
func NewRedisTrackerWithClient(client RedisClient, config RedisConfig, logger hclog.Logger) *RedisTracker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "job"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return &RedisTracker{
		client: client,
		prefix: config.KeyPrefix,
		ttl:    config.TTL,
		logger: logger.Named("redis-tracker"),
	}
}

// Key returns the hash key for a job.
func (t *RedisTracker) Key(jobID string) string {
	return fmt.Sprintf("%s:%s", t.prefix, jobID)
}

// Publish implements session.StatusSink
func (t *RedisTracker) Publish(ctx context.Context, update types.StatusUpdate) error {
	key := t.Key(update.JobID)

	fields := []interface{}{
		"status", string(update.State),
		"profile", update.Profile,
		"updated_at", update.Timestamp.UTC().Format(time.RFC3339),
	}
	if update.Type != "" {
		fields = append(fields,
			"type", string(update.Type),
			"message", update.Message,
		)
	}
	if update.State.IsTerminal() {
		fields = append(fields, "completed_at", update.Timestamp.UTC().Format(time.RFC3339))
	}

	if err := t.client.HSet(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if err := t.client.Expire(ctx, key, t.ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}

	t.logger.Trace("job status mirrored", "key", key, "status", update.State)
	return nil
}

// Close implements session.StatusSink
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
