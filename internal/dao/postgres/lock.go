package postgres

import (
	"context"
	"hash/fnv"

	dbutil "github.com/flarebyte/datamove/internal/dao/dbutil"
	"github.com/flarebyte/datamove/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker holds a session advisory lock on a dedicated connection,
// so imports are serialized across every process sharing the database.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
	key  int64
}

// LockKey derives the advisory lock key for a store identity.
func LockKey(identity string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("datamove:import:" + identity))
	return int64(h.Sum64())
}

func NewAdvisoryLocker(pool *pgxpool.Pool, identity string) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, key: LockKey(identity)}
}

func (l *AdvisoryLocker) TryLock(ctx context.Context) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, dbutil.ErrWrap("lock.acquire_conn", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, dbutil.ErrWrap("lock.try", err, dbutil.ParamSummary("key", l.key))
	}
	if !ok {
		conn.Release()
		return nil, store.ErrLocked
	}
	return func() {
		// the request context may already be cancelled
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
		conn.Release()
	}, nil
}
