// Package redis holds the Redis-backed resume-state store. Only the two
// scalars worth surviving a restart mid-attempt live here: the current
// question index and the seconds remaining. Everything else is re-derived
// from the durable attempt and answer records on reload.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (p *ProgressStore) SaveProgress(ctx context.Context, attemptID string, questionIndex, timeRemaining int) error {
	key := p.key(attemptID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, "index", questionIndex, "remaining", timeRemaining)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *ProgressStore) LoadProgress(ctx context.Context, attemptID string) (int, int, bool, error) {
	fields, err := p.client.HGetAll(ctx, p.key(attemptID)).Result()
	if err != nil {
		return 0, 0, false, err
	}
	if len(fields) == 0 {
		return 0, 0, false, nil
	}
	index, err := strconv.Atoi(fields["index"])
	if err != nil {
		return 0, 0, false, err
	}
	remaining, err := strconv.Atoi(fields["remaining"])
	if err != nil {
		return 0, 0, false, err
	}
	return index, remaining, true, nil
}

func (p *ProgressStore) ClearProgress(ctx context.Context, attemptID string) error {
	return p.client.Del(ctx, p.key(attemptID)).Err()
}

func (p *ProgressStore) key(attemptID string) string {
	return "attempt:progress:" + attemptID
}
