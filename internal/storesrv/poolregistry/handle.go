package poolregistry

import (
	"context"
	"database/sql"
	"sync"

	"github.com/merchantry/merchantry/internal/common/apperrors"
)

// Handle is a per-request view onto one tenant's pool. Handles are cheap
// and must not be retained across requests; the registry owns the pool
// behind them.
type Handle struct {
	pool *pool
	opts Options
}

// StorageRef returns the backing store this handle executes against.
func (h *Handle) StorageRef() string {
	return h.pool.storageRef
}

// Rows is the result of a Query. Closing it releases the underlying
// connection back to the pool.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Query acquires a connection (blocking up to the acquisition timeout) and
// runs the statement. The connection is held until the returned Rows is
// closed. The statement itself runs detached from ctx cancellation: an
// aborted request lets its in-flight query finish and release cleanly.
func (h *Handle) Query(ctx context.Context, statement string, params ...any) (Rows, apperrors.Error) {
	conn, err := h.pool.acquire(ctx, h.opts.AcquireTimeout)
	if err != nil {
		return nil, err
	}
	rows, qerr := conn.QueryContext(context.WithoutCancel(ctx), statement, params...)
	if qerr != nil {
		h.pool.release(conn)
		h.pool.metrics.queryFailed()
		return nil, ErrQuery.New("query failed on " + h.pool.storageRef).Err(qerr)
	}
	return &pooledRows{rows: rows, pool: h.pool, conn: conn}, nil
}

// Exec acquires a connection, runs the statement, and releases the
// connection whether the statement succeeded or failed.
func (h *Handle) Exec(ctx context.Context, statement string, params ...any) (sql.Result, apperrors.Error) {
	conn, err := h.pool.acquire(ctx, h.opts.AcquireTimeout)
	if err != nil {
		return nil, err
	}
	defer h.pool.release(conn)
	res, xerr := conn.ExecContext(context.WithoutCancel(ctx), statement, params...)
	if xerr != nil {
		h.pool.metrics.queryFailed()
		return nil, ErrQuery.New("statement failed on " + h.pool.storageRef).Err(xerr)
	}
	return res, nil
}

// Ping verifies the backing store is reachable through the pool.
func (h *Handle) Ping(ctx context.Context) apperrors.Error {
	conn, err := h.pool.acquire(ctx, h.opts.AcquireTimeout)
	if err != nil {
		return err
	}
	defer h.pool.release(conn)
	if perr := conn.PingContext(context.WithoutCancel(ctx)); perr != nil {
		return ErrQuery.New("ping failed on " + h.pool.storageRef).Err(perr)
	}
	return nil
}

// Stats returns the pool's acquisition and return counts.
func (h *Handle) Stats() (requests, returns uint64) {
	return h.pool.stats()
}

// pooledRows ties the lifetime of an acquired connection to the rows read
// from it.
type pooledRows struct {
	rows *sql.Rows
	pool *pool
	conn Conn
	once sync.Once
}

func (r *pooledRows) Next() bool {
	if r.rows == nil {
		return false
	}
	return r.rows.Next()
}

func (r *pooledRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *pooledRows) Err() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Err()
}

func (r *pooledRows) Close() error {
	var err error
	if r.rows != nil {
		err = r.rows.Close()
	}
	r.once.Do(func() {
		r.pool.release(r.conn)
	})
	return err
}
