package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyChallenge = "otp:challenge:%s"

// replaceScript: ARGV = cutoff_ms, code_hash, issued_ms, expires_ms, ttl_ms
var replaceScript = redis.NewScript(`
local issued = redis.call('HGET', KEYS[1], 'issued_at')
if issued and tonumber(issued) > tonumber(ARGV[1]) then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'code_hash', ARGV[2], 'issued_at', ARGV[3], 'expires_at', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// consumeScript: ARGV = issued_ms, consumed_ms
var consumeScript = redis.NewScript(`
local issued = redis.call('HGET', KEYS[1], 'issued_at')
if not issued or issued ~= ARGV[1] then
	return 0
end
if redis.call('HEXISTS', KEYS[1], 'consumed_at') == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'consumed_at', ARGV[2])
return 1
`)

type RedisStore struct {
	rdb *redis.Client
	// retention keeps consumed challenges around long enough for IsVerified.
	retention time.Duration
}

func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, retention: retention}
}

func (s *RedisStore) key(phone string) string {
	return fmt.Sprintf(keyChallenge, phone)
}

func (s *RedisStore) Replace(ctx context.Context, c *Challenge, cooldownCutoff time.Time) error {
	ttl := c.ExpiresAt.Sub(c.IssuedAt) + s.retention

	ok, err := replaceScript.Run(ctx, s.rdb, []string{s.key(c.Phone)},
		cooldownCutoff.UnixMilli(),
		c.CodeHash,
		c.IssuedAt.UnixMilli(),
		c.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis replace challenge: %w", err)
	}
	if ok == 0 {
		return ErrRateLimited
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, phone string) (*Challenge, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(phone)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get challenge: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	issued, err := parseMillis(vals["issued_at"])
	if err != nil {
		return nil, err
	}
	expires, err := parseMillis(vals["expires_at"])
	if err != nil {
		return nil, err
	}

	c := &Challenge{
		Phone:     phone,
		CodeHash:  vals["code_hash"],
		IssuedAt:  issued,
		ExpiresAt: expires,
	}
	if raw, ok := vals["consumed_at"]; ok {
		consumed, err := parseMillis(raw)
		if err != nil {
			return nil, err
		}
		c.ConsumedAt = &consumed
	}
	return c, nil
}

func (s *RedisStore) Consume(ctx context.Context, phone string, issuedAt, at time.Time) (bool, error) {
	ok, err := consumeScript.Run(ctx, s.rdb, []string{s.key(phone)},
		strconv.FormatInt(issuedAt.UnixMilli(), 10),
		at.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis consume challenge: %w", err)
	}
	return ok == 1, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt otp timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
