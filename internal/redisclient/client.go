package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/refresh_stats.lua
var refreshStatsScript string

var (
	_ service.Locker           = (*Client)(nil)
	_ service.IdempotencyStore = (*Client)(nil)
	_ service.StatsCache       = (*Client)(nil)
)

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	statsScript   *redis.Script
	statsTTL      time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, statsTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb, statsTTL), nil
}

func newClient(rdb *redis.Client, statsTTL time.Duration) *Client {
	if statsTTL <= 0 {
		statsTTL = 10 * time.Minute
	}
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		statsScript:   redis.NewScript(refreshStatsScript),
		statsTTL:      statsTTL,
	}
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(key string) string { return "idempotency:" + key }
func lockKey(key string) string        { return "lock:" + key }
func statsKey(itemID string) string    { return "stats:item:" + itemID }

// ClaimIdempotencyKey reserves a checkout key; false means another request holds it
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

// ReleaseIdempotencyKey frees a key whose checkout did not produce an order
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// AcquireLock acquires a distributed lock and returns the owner token
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Result(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// GetItemStats returns cached stats, or nil on a miss
func (c *Client) GetItemStats(ctx context.Context, itemID string) (*models.ItemStats, error) {
	data, err := c.rdb.HGet(ctx, statsKey(itemID), "data").Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read item stats: %w", err)
	}

	var stats models.ItemStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode item stats: %w", err)
	}
	return &stats, nil
}

// SetItemStats caches stats unless a newer snapshot is already stored
func (c *Client) SetItemStats(ctx context.Context, stats *models.ItemStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode item stats: %w", err)
	}

	_, err = c.statsScript.Run(ctx, c.rdb, []string{statsKey(stats.ItemID)},
		data, stats.RefreshedAt.UnixNano(), int(c.statsTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("refresh stats script failed: %w", err)
	}
	return nil
}
