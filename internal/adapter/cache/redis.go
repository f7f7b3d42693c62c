// Package cache stores per-attempt similarity scores in Redis hashes.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	Namespace   string
	TTL         time.Duration // lifetime of one result hash (default 10m)
	DialTimeout time.Duration
}

// ScoreCache implements port.ScoreCache with one Redis hash per result.
type ScoreCache struct {
	client    goredis.UniversalClient
	namespace string
	ttl       time.Duration
}

var _ port.ScoreCache = (*ScoreCache)(nil)

// New connects to Redis and verifies the connection.
func New(cfg Config) (*ScoreCache, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.Namespace, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, namespace string, ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ScoreCache{client: client, namespace: namespace, ttl: ttl}
}

func (c *ScoreCache) hashKey(resultHash string) string {
	if c.namespace == "" {
		return "similar:" + resultHash
	}
	return c.namespace + ":similar:" + resultHash
}

// RecordScores writes all entries in one pipeline and sets the hash TTL.
// Later entries for the same product overwrite earlier ones.
func (c *ScoreCache) RecordScores(ctx context.Context, resultHash string, entries []domain.ScoredProduct) error {
	if len(entries) == 0 {
		return nil
	}
	key := c.hashKey(resultHash)

	pipe := c.client.Pipeline()
	for _, e := range entries {
		pipe.HSet(ctx, key, port.ScoreKey(e.Origin, e.ProductID), strconv.FormatFloat(e.Score, 'f', -1, 64))
	}
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record scores: %w", err)
	}
	return nil
}

// ReadScores returns every score stored under resultHash.
func (c *ScoreCache) ReadScores(ctx context.Context, resultHash string) (map[string]float64, error) {
	vals, err := c.client.HGetAll(ctx, c.hashKey(resultHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read scores: %w", err)
	}
	if len(vals) == 0 {
		return nil, port.ErrCacheMiss
	}

	scores := make(map[string]float64, len(vals))
	for field, raw := range vals {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			slog.Warn("ignoring unparsable cached score", "field", field, "value", raw)
			continue
		}
		scores[field] = v
	}
	return scores, nil
}

// Ping checks Redis connectivity.
func (c *ScoreCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *ScoreCache) Close() error {
	return c.client.Close()
}
