// Package lock provides named job locks: process-local, Postgres session
// advisory locks and Redis keys.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Local is a process-local named lock. The ttl is ignored.
type Local struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

// NewLocal constructs a local locker.
func NewLocal() *Local {
	return &Local{locks: xsync.NewMapOf[string, *sync.Mutex]()}
}

// TryLock acquires name without blocking.
func (l *Local) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	mu, _ := l.locks.LoadOrStore(name, &sync.Mutex{})
	if !mu.TryLock() {
		return nil, false, nil
	}
	return mu.Unlock, true, nil
}
