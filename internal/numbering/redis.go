package numbering

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

const sequenceKey = "txn:sequence"

// RedisIssuer issues numbers from a shared Redis counter so that multiple
// terminals never hand out the same transaction number.
type RedisIssuer struct {
	client *redis.Client
}

func NewRedisIssuer(addr string, password string, db int) *RedisIssuer {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisIssuer{client: client}
}

func (r *RedisIssuer) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisIssuer) Close() error {
	return r.client.Close()
}

func (r *RedisIssuer) Next(ctx context.Context) (string, error) {
	seq, err := r.client.Incr(ctx, sequenceKey).Result()
	if err != nil {
		return "", err
	}
	return Format(seq), nil
}
