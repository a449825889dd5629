package limiter

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter backed by Redis INCR/EXPIRE.
// Keys: login:fail:<email>:<ip> (counter), login:block:<email>:<ip> (unix ms until).
type Redis struct {
	rdb    redis.Cmdable
	policy Policy
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb redis.Cmdable, p Policy) *Redis {
	return &Redis{rdb: rdb, policy: p}
}

func keys(email string, ipHash []byte) (fail, block string) {
	suffix := email + ":" + hex.EncodeToString(ipHash)
	return "login:fail:" + suffix, "login:block:" + suffix
}

// Allow reports whether a block key is active.
func (l *Redis) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	_, block := keys(email, ipHash)
	v, err := l.rdb.Get(ctx, block).Result()
	if errors.Is(err, redis.Nil) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, 0, err
	}
	until := time.UnixMilli(ms)
	if until.After(time.Now()) {
		return false, time.Until(until), nil
	}
	return true, 0, nil
}

// Success clears both counters.
func (l *Redis) Success(ctx context.Context, email string, ipHash []byte) error {
	fail, block := keys(email, ipHash)
	return l.rdb.Del(ctx, fail, block).Err()
}

// Failure increments the window counter and blocks at the threshold.
func (l *Redis) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	fail, block := keys(email, ipHash)
	n, err := l.rdb.Incr(ctx, fail).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, fail, l.policy.Window).Err(); err != nil {
			return false, 0, err
		}
	}
	if n < int64(l.policy.MaxFails) {
		return false, 0, nil
	}
	until := time.Now().Add(l.policy.BlockFor)
	if err := l.rdb.Set(ctx, block, strconv.FormatInt(until.UnixMilli(), 10), l.policy.BlockFor).Err(); err != nil {
		return false, 0, err
	}
	if err := l.rdb.Del(ctx, fail).Err(); err != nil {
		return false, 0, err
	}
	return true, l.policy.BlockFor, nil
}
