// Package lock guards a schedule build range against concurrent builds.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned by Acquire when another holder owns the key.
var ErrLocked = errors.New("lock: already held")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]localEntry
	next uint64
	now  func() time.Time
}

type localEntry struct {
	token   uint64
	expires time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), now: time.Now}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}

	l.next++
	l.held[key] = localEntry{token: l.next, expires: now.Add(ttl)}
	return &localLease{l: l, key: key, token: l.next}, nil
}

type localLease struct {
	l     *Local
	key   string
	token uint64
}

// Release drops the key only if this lease still owns it.
func (ls *localLease) Release(context.Context) error {
	ls.l.mu.Lock()
	defer ls.l.mu.Unlock()
	if e, ok := ls.l.held[ls.key]; ok && e.token == ls.token {
		delete(ls.l.held, ls.key)
	}
	return nil
}
