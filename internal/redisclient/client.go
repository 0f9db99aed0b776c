package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/admit_attempt.lua
var admitAttemptScript string

//go:embed scripts/record_attempt.lua
var recordAttemptScript string

type Client struct {
	rdb          *redis.Client
	admitScript  *redis.Script
	recordScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
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

	return &Client{
		rdb:          rdb,
		admitScript:  redis.NewScript(admitAttemptScript),
		recordScript: redis.NewScript(recordAttemptScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AdmitAttempt runs the sliding-window admission script for one identity.
// windows holds (duration, limit) pairs, shortest first. It returns the
// 1-based index of the first saturated window, or 0 if the attempt is
// admitted. The prune-count sequence runs atomically inside Redis, so
// concurrent instances share one consistent view of the counters.
func (c *Client) AdmitAttempt(ctx context.Context, identity string, now time.Time, windows [][2]int64) (int, error) {
	key := fmt.Sprintf("attempts:%s", identity)

	horizon := windows[len(windows)-1][0]
	args := make([]interface{}, 0, 2+2*len(windows))
	args = append(args, now.UnixMilli(), horizon)
	for _, w := range windows {
		args = append(args, w[0], w[1])
	}

	result, err := c.admitScript.Run(ctx, c.rdb, []string{key}, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("admit attempt script failed: %w", err)
	}

	idx, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return int(idx), nil
}

// RecordAttempt appends one admitted attempt for the identity and refreshes
// the key TTL to the prune horizon.
func (c *Client) RecordAttempt(ctx context.Context, identity, member string, at time.Time, horizonMillis int64) error {
	key := fmt.Sprintf("attempts:%s", identity)

	_, err := c.recordScript.Run(ctx, c.rdb, []string{key}, at.UnixMilli(), member, horizonMillis).Result()
	if err != nil {
		return fmt.Errorf("record attempt script failed: %w", err)
	}
	return nil
}
