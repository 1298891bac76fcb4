package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newRateRepo(t *testing.T) (*miniredis.Miniredis, *RateRepo) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, NewRateRepo(client)
}

func TestIncrementWindowCountsAndExpires(t *testing.T) {
	mr, repo := newRateRepo(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, ttl, err := repo.IncrementWindow(ctx, "rate:test", time.Minute)
		if err != nil {
			t.Fatalf("increment #%d: %v", want, err)
		}
		if count != want {
			t.Fatalf("count: got %d want %d", count, want)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Fatalf("unexpected ttl %s", ttl)
		}
	}

	mr.FastForward(time.Minute + time.Second)

	count, _, err := repo.IncrementWindow(ctx, "rate:test", time.Minute)
	if err != nil {
		t.Fatalf("increment after window: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a fresh window, got count %d", count)
	}
}

func TestIncrementWindowRepairsMissingTTL(t *testing.T) {
	mr, repo := newRateRepo(t)
	if err := mr.Set("rate:orphan", "5"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	count, ttl, err := repo.IncrementWindow(context.Background(), "rate:orphan", time.Hour)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 6 || ttl != time.Hour {
		t.Fatalf("unexpected window: count=%d ttl=%s", count, ttl)
	}
	if mr.TTL("rate:orphan") <= 0 {
		t.Fatalf("expected ttl to be set on orphan key")
	}
}

func TestRateRepoRejectsBadInput(t *testing.T) {
	_, repo := newRateRepo(t)
	if _, _, err := repo.IncrementWindow(context.Background(), "", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, _, err := repo.IncrementWindow(context.Background(), "rate:x", 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if _, _, err := NewRateRepo(nil).IncrementWindow(context.Background(), "rate:x", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
