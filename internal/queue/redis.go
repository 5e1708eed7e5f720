package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SmillingSword/news-reynra/internal/config"
)

// connectTimeout bounds the initial ping.
const connectTimeout = 5 * time.Second

// RedisBackend stores each queue as a sorted set scored by availability in
// unix milliseconds. Members are JSON-encoded tasks.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg config.QueueConfig) (*RedisBackend, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisBackend(client, cfg.Prefix), nil
}

func newRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "reynra"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) key(queue string) string {
	return b.prefix + ":queue:" + queue
}

func (b *RedisBackend) Enqueue(ctx context.Context, t *Task) error {
	if t.Queue != QueueHigh {
		t.Queue = QueueDefault
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", t.ID, err)
	}
	z := redis.Z{Score: float64(t.AvailableAt.UnixMilli()), Member: string(data)}
	if err := b.client.ZAdd(ctx, b.key(t.Queue), z).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", t.ID, err)
	}
	return nil
}

// Dequeue claims a due task with ZREM so that concurrent consumers never
// receive the same member twice.
func (b *RedisBackend) Dequeue(ctx context.Context, now time.Time) (*Task, error) {
	max := strconv.FormatInt(now.UnixMilli(), 10)
	for _, q := range Queues {
		key := b.key(q)
		for {
			members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
				Min: "-inf", Max: max, Offset: 0, Count: 1,
			}).Result()
			if err != nil {
				return nil, fmt.Errorf("dequeue %s: %w", q, err)
			}
			if len(members) == 0 {
				break
			}
			removed, err := b.client.ZRem(ctx, key, members[0]).Result()
			if err != nil {
				return nil, fmt.Errorf("claim from %s: %w", q, err)
			}
			if removed == 0 {
				// another consumer won the race
				continue
			}
			var t Task
			if err := json.Unmarshal([]byte(members[0]), &t); err != nil {
				return nil, fmt.Errorf("decoding task from %s: %w", q, err)
			}
			return &t, nil
		}
	}
	return nil, nil
}

func (b *RedisBackend) Len(ctx context.Context) (int, error) {
	total := 0
	for _, q := range Queues {
		n, err := b.client.ZCard(ctx, b.key(q)).Result()
		if err != nil {
			return 0, fmt.Errorf("len %s: %w", q, err)
		}
		total += int(n)
	}
	return total, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
