package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// releaseTimeout bounds the unlock round trip, which runs on a fresh context.
const releaseTimeout = 5 * time.Second

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockManager implements domain.LockManager with SET NX PX. Lock values name
// the holding process ("host/pid/uuid") so a stuck lock can be traced.
//
//	lock:{key} - string, holder token, TTL = lease
type LockManager struct {
	rdb   *redis.Client
	owner string
}

func NewLockManager(c *Client) *LockManager {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &LockManager{rdb: c.Underlying(), owner: fmt.Sprintf("%s/%d", host, os.Getpid())}
}

// Acquire takes key for ttl. The returned release func is idempotent. When
// someone else holds the lock the error wraps domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k := "lock:" + key
	token := lm.owner + "/" + uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(rctx, lm.rdb, []string{k}, token).Err()
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
