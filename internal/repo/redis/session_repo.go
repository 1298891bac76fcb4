package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const revokedSessionPrefix = "dashboard:revoked:"

// SessionRepo keeps a denylist of logged-out dashboard sessions until their tokens expire.
type SessionRepo struct {
	client *goredis.Client
}

func NewSessionRepo(client *goredis.Client) *SessionRepo {
	return &SessionRepo{client: client}
}

func (r *SessionRepo) Revoke(ctx context.Context, sid string, until time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return nil
	}

	if err := r.client.Set(ctx, revokedSessionKey(sid), until.UTC().Unix(), ttlFor(until)).Err(); err != nil {
		return fmt.Errorf("revoke dashboard session: %w", err)
	}
	return nil
}

func (r *SessionRepo) IsRevoked(ctx context.Context, sid string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	n, err := r.client.Exists(ctx, revokedSessionKey(sid)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return n > 0, nil
}

func revokedSessionKey(sid string) string {
	return revokedSessionPrefix + sid
}

func ttlFor(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
