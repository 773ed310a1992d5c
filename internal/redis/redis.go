// Package redis provides the shared build lock used when several engine
// instances serve the same channels.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/lock"
)

func NewClient(address, username, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     address,
		Username: username,
		Password: password,
		DB:       0,
	})
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of *redis.Client the lock needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// BuildLock is a lock.Locker backed by SET NX PX.
type BuildLock struct {
	rdb Client
}

var _ lock.Locker = (*BuildLock)(nil)

func NewBuildLock(rdb Client) *BuildLock {
	return &BuildLock{rdb: rdb}
}

func (b *BuildLock) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	token := uuid.NewString()
	ok, err := b.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, lock.ErrLocked
	}
	return &lease{rdb: b.rdb, key: key, token: token}, nil
}

type lease struct {
	rdb   Client
	key   string
	token string
}

func (l *lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		log.Warn().Str("key", l.key).Msg("build lock expired before release")
	}
	return nil
}
