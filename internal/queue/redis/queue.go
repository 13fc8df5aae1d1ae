// Package redis implements the pending queue on Redis.
//
// Layout: a sorted set per state ("<prefix>:pending", "<prefix>:consumed")
// scored by capture time, plus one hash per message at "<prefix>:msg:<id>".
// The oldest unconsumed message is the lowest-scored member of the pending
// set. Consuming a message moves its index entry to the consumed set but
// keeps the hash, so consumed messages remain a durable audit trail;
// deleting removes both.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/welanie/dealpipe/internal/product"
)

// Config controls the Redis connection and key namespace.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Queue is a Redis-backed pending queue.
type Queue struct {
	client *redis.Client
	prefix string
}

// NewQueue connects to Redis and verifies the connection.
func NewQueue(ctx context.Context, cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewQueueWithClient(client, cfg.KeyPrefix), nil
}

// NewQueueWithClient wraps an existing client (primarily for testing).
func NewQueueWithClient(client *redis.Client, prefix string) *Queue {
	if prefix == "" {
		prefix = "dealpipe"
	}
	return &Queue{client: client, prefix: prefix}
}

// Close releases the underlying client.
func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) pendingKey() string  { return q.prefix + ":pending" }
func (q *Queue) consumedKey() string { return q.prefix + ":consumed" }
func (q *Queue) msgKey(id string) string {
	return fmt.Sprintf("%s:msg:%s", q.prefix, id)
}

// Enqueue stores the message hash and indexes it by capture time.
func (q *Queue) Enqueue(ctx context.Context, msg product.RawMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	capturedAt := msg.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	imagesJSON, err := json.Marshal(msg.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.msgKey(msg.ID), map[string]any{
		"text":        msg.Text,
		"images":      string(imagesJSON),
		"image":       msg.Image,
		"captured_at": capturedAt.Format(time.RFC3339Nano),
		"consumed":    "0",
	})
	pipe.ZAdd(ctx, q.pendingKey(), redis.Z{
		Score:  float64(capturedAt.UnixMilli()),
		Member: msg.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// FetchOldestUnconsumed reads the lowest-scored pending member and loads
// its hash. A dangling index entry (hash deleted out of band) is dropped
// from the index and reported as an empty queue.
func (q *Queue) FetchOldestUnconsumed(ctx context.Context) (product.RawMessage, error) {
	ids, err := q.client.ZRange(ctx, q.pendingKey(), 0, 0).Result()
	if err != nil {
		return product.RawMessage{}, fmt.Errorf("read pending index: %w", err)
	}
	if len(ids) == 0 {
		return product.RawMessage{}, product.ErrNoPending
	}
	id := ids[0]
	fields, err := q.client.HGetAll(ctx, q.msgKey(id)).Result()
	if err != nil {
		return product.RawMessage{}, fmt.Errorf("read message %s: %w", id, err)
	}
	if len(fields) == 0 {
		if err := q.client.ZRem(ctx, q.pendingKey(), id).Err(); err != nil {
			return product.RawMessage{}, fmt.Errorf("drop dangling index entry %s: %w", id, err)
		}
		return product.RawMessage{}, product.ErrNoPending
	}
	return q.parseMessage(id, fields)
}

func (q *Queue) parseMessage(id string, fields map[string]string) (product.RawMessage, error) {
	msg := product.RawMessage{
		ID:       id,
		Text:     fields["text"],
		Image:    fields["image"],
		Consumed: fields["consumed"] == "1",
	}
	if raw := fields["images"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.Images); err != nil {
			return product.RawMessage{}, fmt.Errorf("unmarshal images for %s: %w", id, err)
		}
	}
	if raw := fields["captured_at"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return product.RawMessage{}, fmt.Errorf("parse captured_at for %s: %w", id, err)
		}
		msg.CapturedAt = ts
	}
	return msg, nil
}

// MarkConsumed flips the consumed flag and moves the index entry to the
// consumed set. The message hash stays.
func (q *Queue) MarkConsumed(ctx context.Context, id string) error {
	score, err := q.client.ZScore(ctx, q.pendingKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("message %s is not pending", id)
	}
	if err != nil {
		return fmt.Errorf("read pending score for %s: %w", id, err)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.msgKey(id), "consumed", "1")
	pipe.ZRem(ctx, q.pendingKey(), id)
	pipe.ZAdd(ctx, q.consumedKey(), redis.Z{Score: score, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark %s consumed: %w", id, err)
	}
	return nil
}

// Delete removes the message and its index entries entirely.
func (q *Queue) Delete(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.pendingKey(), id)
	pipe.ZRem(ctx, q.consumedKey(), id)
	pipe.Del(ctx, q.msgKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}
