package velocity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTracker keeps per-card timestamps in Redis sorted sets so multiple
// service nodes observe the same velocity state. Scores are Unix
// nanoseconds; members carry a UUID suffix so identical timestamps from
// different transactions are retained separately.
type RedisTracker struct {
	client    *redis.Client
	window    time.Duration
	retention time.Duration
}

// recordScript appends, prunes and counts in a single atomic round trip.
// KEYS[1] = card key
// ARGV[1] = score (unix nanos), ARGV[2] = member,
// ARGV[3] = retention cutoff, ARGV[4] = window start (exclusive),
// ARGV[5] = retention TTL in milliseconds
var recordScript = redis.NewScript(`
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[3])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[4], ARGV[1])
`)

// NewRedisTracker creates a Redis-backed tracker.
func NewRedisTracker(addr, password string, db int, window, retention time.Duration) (*RedisTracker, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisTracker{
		client:    client,
		window:    window,
		retention: retention,
	}, nil
}

// RecordAndCount implements Tracker.
func (t *RedisTracker) RecordAndCount(ctx context.Context, cardNumber string, ts time.Time) (int, error) {
	if cardNumber == "" {
		return 0, fmt.Errorf("cardNumber is required")
	}

	key := "fraudguard:velocity:" + cardNumber
	score := ts.UnixNano()
	member := strconv.FormatInt(score, 10) + ":" + uuid.New().String()
	cutoff := ts.Add(-t.retention).UnixNano()
	windowStart := ts.Add(-t.window).UnixNano()

	count, err := recordScript.Run(ctx, t.client, []string{key},
		score, member, cutoff, windowStart, t.retention.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("velocity record failed: %w", err)
	}
	return int(count), nil
}

// Ping checks Redis connectivity.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
