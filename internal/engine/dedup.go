package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper is the short-lived window keyed on the caller-supplied idempotency
// key. It is the boundary defense against duplicate external requests (an
// HTTP client retrying); the operation-log unique token remains the defense
// against duplicate internal retries.
type Deduper interface {
	// Reserve claims key for token. When another call already holds the key
	// (including one whose index mutation is still in flight), Reserve
	// returns that call's token and fresh=false.
	Reserve(ctx context.Context, tenantID, key, token string) (winner string, fresh bool, err error)

	// Release drops the reservation, but only while it still holds token.
	// The writer calls it whenever a reserved token never became durable, so
	// a retry of the same key is not answered with a token that references
	// nothing.
	Release(ctx context.Context, tenantID, key, token string) error
}

// RedisDeduper implements the window with SETNX + TTL, keys shaped
// idem:{tenant}:{key} so two tenants can reuse the same caller key.
type RedisDeduper struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
}

func NewRedisDeduper(rdb *redis.Client, prefix string, window time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "idem:"
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RedisDeduper{rdb: rdb, prefix: prefix, window: window}
}

// compare-and-delete so a release after the window expired cannot remove a
// newer reservation that reused the key
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (d *RedisDeduper) Reserve(ctx context.Context, tenantID, key, token string) (string, bool, error) {
	rkey := d.prefix + tenantID + ":" + key

	ok, err := d.rdb.SetNX(ctx, rkey, token, d.window).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return token, true, nil
	}

	winner, err := d.rdb.Get(ctx, rkey).Result()
	if err == redis.Nil {
		// key expired between SETNX and GET; rare enough to treat as fresh
		return token, true, nil
	}
	if err != nil {
		return "", false, err
	}
	return winner, false, nil
}

func (d *RedisDeduper) Release(ctx context.Context, tenantID, key, token string) error {
	rkey := d.prefix + tenantID + ":" + key
	return releaseScript.Run(ctx, d.rdb, []string{rkey}, token).Err()
}
