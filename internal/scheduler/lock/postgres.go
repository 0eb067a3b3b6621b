package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Postgres holds session advisory locks on a dedicated connection per lock.
type Postgres struct {
	db     *sql.DB
	prefix string
	logger *zap.Logger
}

// NewPostgres constructs a Postgres locker. Lock keys are hashtext(prefix+name).
func NewPostgres(db *sql.DB, prefix string, logger *zap.Logger) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("job lock: nil db")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, prefix: prefix, logger: logger}, nil
}

// TryLock takes pg_try_advisory_lock on a pinned connection. The ttl is
// ignored; the lock ends with unlock or with the session.
func (p *Postgres) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, false, err
	}
	key := p.prefix + name

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, err
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.release(ctx, conn, key)
	}
	return unlock, true, nil
}

// pinnedConn is the part of *sql.Conn that release needs.
type pinnedConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Raw(f func(driverConn any) error) error
	Close() error
}

// release unlocks key on conn. When the unlock fails the session may still
// hold the lock, so the connection is discarded instead of returned to the pool.
func (p *Postgres) release(ctx context.Context, conn pinnedConn, key string) {
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
		p.logger.Warn("job lock release failed; discarding connection", zap.String("lock", key), zap.Error(err))
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = conn.Close()
}
