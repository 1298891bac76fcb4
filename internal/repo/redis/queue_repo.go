package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultQueuePrefix = "subscriptions:jobs"

// QueuedJob is the payload stored on the queue lists.
type QueuedJob struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Lease is a pulled job together with the raw entry needed to acknowledge it.
type Lease struct {
	Job QueuedJob
	raw string
}

// QueueRepo is an at-least-once job queue on two Redis lists. Pull moves an entry from the
// ready list to the processing list atomically; Ack removes it. Entries left in processing by
// a crashed worker are moved back by Recover.
type QueueRepo struct {
	client *goredis.Client
	prefix string
}

func NewQueueRepo(client *goredis.Client, prefix string) *QueueRepo {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultQueuePrefix
	}
	return &QueueRepo{client: client, prefix: prefix}
}

func (r *QueueRepo) readyKey() string      { return r.prefix + ":ready" }
func (r *QueueRepo) processingKey() string { return r.prefix + ":processing" }
func (r *QueueRepo) dedupeKey(key string) string {
	return r.prefix + ":dedupe:" + key
}

// Enqueue pushes job unless dedupeKey was already used within dedupeTTL. It reports whether
// the job was queued.
func (r *QueueRepo) Enqueue(ctx context.Context, job QueuedJob, dedupeKey string, dedupeTTL time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(job.Name) == "" {
		return false, fmt.Errorf("job name is required")
	}

	if dedupeKey != "" {
		if dedupeTTL <= 0 {
			dedupeTTL = time.Hour
		}
		ok, err := r.client.SetNX(ctx, r.dedupeKey(dedupeKey), job.ID, dedupeTTL).Result()
		if err != nil {
			return false, fmt.Errorf("reserve job dedupe key: %w", err)
		}
		if !ok {
			return false, nil
		}
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal queued job: %w", err)
	}
	if err := r.client.LPush(ctx, r.readyKey(), raw).Err(); err != nil {
		return false, fmt.Errorf("push queued job: %w", err)
	}
	return true, nil
}

// Pull takes the oldest ready job. ok is false when the queue is empty.
func (r *QueueRepo) Pull(ctx context.Context) (Lease, bool, error) {
	if r.client == nil {
		return Lease{}, false, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.LMove(ctx, r.readyKey(), r.processingKey(), "RIGHT", "LEFT").Result()
	if errors.Is(err, goredis.Nil) {
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, fmt.Errorf("pull queued job: %w", err)
	}

	var job QueuedJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		_ = r.client.LRem(ctx, r.processingKey(), 1, raw).Err()
		return Lease{}, false, fmt.Errorf("decode queued job: %w", err)
	}
	return Lease{Job: job, raw: raw}, true, nil
}

func (r *QueueRepo) Ack(ctx context.Context, lease Lease) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.LRem(ctx, r.processingKey(), 1, lease.raw).Err(); err != nil {
		return fmt.Errorf("ack queued job: %w", err)
	}
	return nil
}

// Recover moves every processing entry back to the ready list and returns how many moved.
func (r *QueueRepo) Recover(ctx context.Context) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	moved := 0
	for {
		_, err := r.client.LMove(ctx, r.processingKey(), r.readyKey(), "RIGHT", "RIGHT").Result()
		if errors.Is(err, goredis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover queued job: %w", err)
		}
		moved++
	}
}

func (r *QueueRepo) Pending(ctx context.Context) (ready int64, processing int64, err error) {
	if r.client == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}
	ready, err = r.client.LLen(ctx, r.readyKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("count ready jobs: %w", err)
	}
	processing, err = r.client.LLen(ctx, r.processingKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("count processing jobs: %w", err)
	}
	return ready, processing, nil
}
