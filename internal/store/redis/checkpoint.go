// Package redis stores engine snapshot checkpoints in Redis. Redis is the
// fast path of the restore chain; SQLite holds the durable copy.
package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const (
	snapshotKey        = "tickcore:engine:snapshot"
	defaultSnapshotTTL = 24 * time.Hour
)

// Config configures the checkpoint store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Checkpoint saves and loads engine snapshots.
type Checkpoint struct {
	client *goredis.Client
	log    *slog.Logger
}

// Client returns the underlying Redis client for health checks.
func (c *Checkpoint) Client() *goredis.Client { return c.client }

// New creates a Checkpoint store and pings the server.
func New(cfg Config, log *slog.Logger) (*Checkpoint, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}

	log.Info("redis connected", slog.String("addr", cfg.Addr))
	return &Checkpoint{client: client, log: log}, nil
}

// Close releases the client.
func (c *Checkpoint) Close() error { return c.client.Close() }

// Save stores an engine snapshot with a TTL. A stale Redis snapshot past the
// TTL falls through to the SQLite copy.
func (c *Checkpoint) Save(ctx context.Context, data []byte) error {
	if err := c.client.Set(ctx, snapshotKey, data, defaultSnapshotTTL).Err(); err != nil {
		return errors.Wrap(err, "redis set snapshot")
	}
	return nil
}

// Load returns the latest snapshot, or nil if none is stored.
func (c *Checkpoint) Load(ctx context.Context) ([]byte, error) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get snapshot")
	}
	return data, nil
}
