package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/engine"
)

// SessionCache keeps the restorable state of live attempts in Redis: the
// engine checkpoint, the dealt paper and the taker's active attempt pointer.
// It also feeds the persistence queues and the monitor channel.
type SessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionCache creates a new SessionCache. Entries expire after ttl.
func NewSessionCache(rdb *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, ttl: ttl}
}

// SaveCheckpoint stores the latest checkpoint of an attempt.
func (c *SessionCache) SaveCheckpoint(ctx context.Context, cp engine.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.SessionCheckpointKey(cp.SessionID), data, c.ttl).Err()
}

// LoadCheckpoint returns nil when the attempt has no checkpoint.
func (c *SessionCache) LoadCheckpoint(ctx context.Context, attemptID string) (*engine.Checkpoint, error) {
	var cp engine.Checkpoint
	found, err := c.getJSON(ctx, config.CacheKey.SessionCheckpointKey(attemptID), &cp)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

// SavePaper stores the question list an attempt was dealt.
func (c *SessionCache) SavePaper(ctx context.Context, attemptID string, paper *Paper) error {
	data, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.SessionPaperKey(attemptID), data, c.ttl).Err()
}

// LoadPaper returns nil when the paper has expired or was never stored.
func (c *SessionCache) LoadPaper(ctx context.Context, attemptID string) (*Paper, error) {
	var paper Paper
	found, err := c.getJSON(ctx, config.CacheKey.SessionPaperKey(attemptID), &paper)
	if err != nil || !found {
		return nil, err
	}
	return &paper, nil
}

// SetActive points the taker at their unlocked attempt.
func (c *SessionCache) SetActive(ctx context.Context, takerID int, attemptID string) error {
	return c.rdb.Set(ctx, config.CacheKey.TakerActiveSessionKey(takerID), attemptID, c.ttl).Err()
}

// ActiveAttempt returns the taker's unlocked attempt id, or "" when unknown.
func (c *SessionCache) ActiveAttempt(ctx context.Context, takerID int) (string, error) {
	id, err := c.rdb.Get(ctx, config.CacheKey.TakerActiveSessionKey(takerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// Release drops the paper and the active pointer of a locked attempt. The
// locked checkpoint stays until its TTL runs out.
func (c *SessionCache) Release(ctx context.Context, takerID int, attemptID string) error {
	return c.rdb.Del(ctx,
		config.CacheKey.SessionPaperKey(attemptID),
		config.CacheKey.TakerActiveSessionKey(takerID),
	).Err()
}

// Clear forgets everything cached for an attempt.
func (c *SessionCache) Clear(ctx context.Context, takerID int, attemptID string) error {
	return c.rdb.Del(ctx,
		config.CacheKey.SessionCheckpointKey(attemptID),
		config.CacheKey.SessionPaperKey(attemptID),
		config.CacheKey.TakerActiveSessionKey(takerID),
	).Err()
}

// Enqueue pushes a JSON payload onto a persistence queue.
func (c *SessionCache) Enqueue(ctx context.Context, queue string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queue, err)
	}
	return c.rdb.RPush(ctx, queue, data).Err()
}

// Publish sends a monitor event to the category's channel.
func (c *SessionCache) Publish(ctx context.Context, category string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	return c.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(category), data).Err()
}

func (c *SessionCache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
