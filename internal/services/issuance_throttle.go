package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIssuanceThrottle allows one issuance per channel and identifier per cooldown.
// Keys carry a digest of the identifier so Redis never holds addresses or numbers.
type RedisIssuanceThrottle struct {
	rdb      *redis.Client
	cooldown time.Duration
	prefix   string
}

func NewRedisIssuanceThrottle(rdb *redis.Client, cooldown time.Duration) *RedisIssuanceThrottle {
	return &RedisIssuanceThrottle{rdb: rdb, cooldown: cooldown, prefix: "reset:issue"}
}

func (t *RedisIssuanceThrottle) key(channel, identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return t.prefix + ":" + channel + ":" + hex.EncodeToString(sum[:])
}

func (t *RedisIssuanceThrottle) Allow(ctx context.Context, channel string, identifier string) (bool, error) {
	if t.cooldown <= 0 {
		return true, nil
	}
	return t.rdb.SetNX(ctx, t.key(channel, identifier), 1, t.cooldown).Result()
}
