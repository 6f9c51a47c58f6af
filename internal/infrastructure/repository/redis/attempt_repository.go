package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

type AttemptRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewClient creates a Redis client and checks connectivity.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func NewAttemptRepository(client redis.UniversalClient, ttl time.Duration) *AttemptRepository {
	return &AttemptRepository{client: client, ttl: ttl}
}

func (r *AttemptRepository) IncrementAttempt(ctx context.Context, eventID string) (int, error) {
	key := attemptKey(eventID)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, domain.WrapError(domain.ErrTemporary, "increment attempt", err)
	}
	return int(incr.Val()), nil
}

func (r *AttemptRepository) AttemptCount(ctx context.Context, eventID string) (int, error) {
	n, err := r.client.Get(ctx, attemptKey(eventID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.WrapError(domain.ErrTemporary, "attempt count", err)
	}
	return n, nil
}

func attemptKey(eventID string) string {
	return "attempts:" + eventID
}
