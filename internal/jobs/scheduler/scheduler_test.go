package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redisrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/redis"
)

func newTestScheduler(t *testing.T) (*Scheduler, *redisrepo.QueueRepo) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	queue := redisrepo.NewQueueRepo(client, "test:jobs")
	return New(queue, Config{MaxAttempts: 3, BackoffInitial: time.Millisecond}, nil), queue
}

func assertDrained(t *testing.T, queue *redisrepo.QueueRepo) {
	t.Helper()
	ready, processing, err := queue.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if ready != 0 || processing != 0 {
		t.Fatalf("expected empty queue, got ready=%d processing=%d", ready, processing)
	}
}

func TestEnqueueDedupesPerTick(t *testing.T) {
	s, queue := newTestScheduler(t)
	ctx := context.Background()
	tick := time.Date(2026, time.March, 10, 10, 0, 12, 0, time.UTC)

	first, err := s.Enqueue(ctx, JobWarn7Days, tick)
	if err != nil || !first {
		t.Fatalf("expected first enqueue to queue, got %v err=%v", first, err)
	}
	dup, err := s.Enqueue(ctx, JobWarn7Days, tick.Add(30*time.Second))
	if err != nil || dup {
		t.Fatalf("expected same-minute enqueue to be dropped, got %v err=%v", dup, err)
	}
	other, err := s.Enqueue(ctx, JobExpire, tick)
	if err != nil || !other {
		t.Fatalf("expected a different job on the same tick to queue, got %v err=%v", other, err)
	}

	ready, _, err := queue.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if ready != 2 {
		t.Fatalf("expected 2 ready jobs, got %d", ready)
	}
}

func TestRunOnceRetriesUntilSuccess(t *testing.T) {
	s, queue := newTestScheduler(t)
	ctx := context.Background()

	calls := 0
	if err := s.Register(JobExpire, "", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is starting up")
		}
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := s.Enqueue(ctx, JobExpire, time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	processed, err := s.RunOnce(ctx)
	if err != nil || !processed {
		t.Fatalf("expected a job to be processed, got %v err=%v", processed, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	assertDrained(t, queue)
}

func TestRunOnceAcksExhaustedJob(t *testing.T) {
	s, queue := newTestScheduler(t)
	ctx := context.Background()

	calls := 0
	if err := s.Register(JobWarn1Day, "", func(context.Context) error {
		calls++
		return errors.New("telegram unavailable")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := s.Enqueue(ctx, JobWarn1Day, time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := s.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	assertDrained(t, queue)

	processed, err := s.RunOnce(ctx)
	if err != nil || processed {
		t.Fatalf("expected empty queue after exhausted job, got %v err=%v", processed, err)
	}
}

func TestRunOnceDropsUnknownJob(t *testing.T) {
	s, queue := newTestScheduler(t)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, redisrepo.QueuedJob{ID: "1", Name: "reindex"}, "", 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	processed, err := s.RunOnce(ctx)
	if err != nil || !processed {
		t.Fatalf("expected unknown job to be taken, got %v err=%v", processed, err)
	}
	assertDrained(t, queue)
}

func TestRegisterValidatesInput(t *testing.T) {
	s, _ := newTestScheduler(t)
	noop := func(context.Context) error { return nil }

	if err := s.Register(JobExpire, "not a cron spec", noop); err == nil {
		t.Fatalf("expected invalid spec to be rejected")
	}
	if err := s.Register(JobExpire, "0 * * * *", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register(JobExpire, "0 * * * *", noop); err == nil {
		t.Fatalf("expected duplicate registration to be rejected")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestScheduler(t)
	done := make(chan struct{}, 1)
	if err := s.Register(JobRedeliver, "", func(context.Context) error {
		done <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := s.Enqueue(ctx, JobRedeliver, time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("queued job did not run")
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
