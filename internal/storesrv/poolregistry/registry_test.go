package poolregistry

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB is a bounded in-memory pool: Conn blocks on a semaphore the way
// database/sql blocks on max open connections.
type fakeDB struct {
	mu       sync.Mutex
	sem      chan struct{}
	execGate chan struct{}
	execing  int32
	closed   bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{sem: make(chan struct{}, 100)}
}

func (d *fakeDB) Conn(ctx context.Context) (Conn, error) {
	select {
	case d.sem <- struct{}{}:
		return &fakeConn{db: d}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDB) PingContext(ctx context.Context) error { return nil }

func (d *fakeDB) SetMaxOpenConns(n int) {
	d.mu.Lock()
	d.sem = make(chan struct{}, n)
	d.mu.Unlock()
}

func (d *fakeDB) SetMaxIdleConns(n int) {}

func (d *fakeDB) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDB) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	atomic.AddInt32(&c.db.execing, 1)
	defer atomic.AddInt32(&c.db.execing, -1)
	if c.db.execGate != nil {
		<-c.db.execGate
	}
	return nil, nil
}

func (c *fakeConn) PingContext(ctx context.Context) error { return nil }

func (c *fakeConn) Close() error {
	<-c.db.sem
	return nil
}

// fakeFactory counts opens and hands out one fakeDB per storage ref.
type fakeFactory struct {
	mu        sync.Mutex
	opens     int
	failOpens int // fail this many opens, then succeed
	dbs       map[string]*fakeDB
	delay     time.Duration
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{dbs: make(map[string]*fakeDB)}
}

func (f *fakeFactory) Open(ctx context.Context, storageRef string) (DB, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpens > 0 {
		f.failOpens--
		return nil, errors.New("backend unavailable")
	}
	f.opens++
	db := newFakeDB()
	f.dbs[storageRef] = db
	return db, nil
}

func (f *fakeFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func testOptions() Options {
	return Options{
		MaxOpenConns:   2,
		MaxIdleConns:   1,
		AcquireTimeout: 200 * time.Millisecond,
		DrainGrace:     time.Second,
	}
}

func TestGetHandleCreatesPoolLazily(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	registry := New(factory, testOptions())

	assert.Equal(t, 0, registry.PoolCount())

	h, err := registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)
	assert.Equal(t, "store_acme_x1", h.StorageRef())
	assert.Equal(t, 1, factory.openCount())
	assert.Equal(t, 1, registry.PoolCount())

	// second access reuses the pool
	_, err = registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.openCount())

	// a different tenant gets its own pool
	_, err = registry.GetHandle(ctx, "store_globex_x1")
	require.NoError(t, err)
	assert.Equal(t, 2, factory.openCount())
	assert.Equal(t, 2, registry.PoolCount())
}

func TestGetHandleConcurrentFirstAccess(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	factory.delay = 20 * time.Millisecond // widen the creation race window
	registry := New(factory, testOptions())

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := registry.GetHandle(ctx, "store_acme_x1")
			if err != nil {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
	}
	// exactly one pool was created despite the race
	assert.Equal(t, 1, factory.openCount())
	assert.Equal(t, 1, registry.PoolCount())
}

func TestExecReleasesConnection(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	registry := New(factory, testOptions())

	h, err := registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)

	_, err = h.Exec(ctx, "UPDATE products SET stock_count = stock_count - 1 WHERE product_id = $1", "p1")
	require.NoError(t, err)

	requests, returns := h.Stats()
	assert.Equal(t, uint64(1), requests)
	assert.Equal(t, uint64(1), returns)
}

func TestQueryRowsReleaseOnClose(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	registry := New(factory, testOptions())

	h, err := registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)

	rows, err := h.Query(ctx, "SELECT product_id FROM products")
	require.NoError(t, err)

	requests, returns := h.Stats()
	assert.Equal(t, uint64(1), requests)
	assert.Equal(t, uint64(0), returns)

	require.NoError(t, rows.Close())
	_, returns = h.Stats()
	assert.Equal(t, uint64(1), returns)
}

func TestPoolExhaustion(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	registry := New(factory, testOptions()) // max 2 conns

	h, err := registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)

	db := factory.dbs["store_acme_x1"]
	db.execGate = make(chan struct{})

	// hold both connections in long-running statements
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, execErr := h.Exec(ctx, "SELECT pg_sleep(60)")
			assert.NoError(t, execErr)
		}()
	}
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&db.execing) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// the next acquisition times out rather than blocking indefinitely
	start := time.Now()
	_, err = h.Exec(ctx, "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.True(t, err.Retryable())
	assert.Less(t, time.Since(start), 2*time.Second)

	close(db.execGate)
	wg.Wait()
}

func TestGetHandleOpenFailureLeavesNoResidue(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	factory.failOpens = 1
	registry := New(factory, testOptions())

	_, err := registry.GetHandle(ctx, "store_acme_x1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolCreate)
	assert.Equal(t, 0, registry.PoolCount())

	// the per-key creation lock is released and removed on failure
	registry.mu.Lock()
	creating := len(registry.creating)
	registry.mu.Unlock()
	assert.Equal(t, 0, creating)

	// a later attempt for the same storage ref can succeed
	h, err := registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)
	assert.Equal(t, "store_acme_x1", h.StorageRef())
	assert.Equal(t, 1, registry.PoolCount())
}

func TestEvict(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	registry := New(factory, testOptions())

	h, err := registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)
	require.Equal(t, 1, registry.PoolCount())

	require.NoError(t, asError(registry.Evict(ctx, "store_acme_x1")))
	assert.Equal(t, 0, registry.PoolCount())
	assert.True(t, factory.dbs["store_acme_x1"].isClosed())

	// no new acquisitions through a stale handle
	_, err = h.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrPoolClosed)

	// evicting an absent pool is a no-op
	require.NoError(t, asError(registry.Evict(ctx, "store_acme_x1")))

	// a fresh pool can be created for the same storage ref
	_, err = registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)
	assert.Equal(t, 2, factory.openCount())
}

func TestCloseAll(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	factory := newFakeFactory()
	registry := New(factory, testOptions())

	_, err := registry.GetHandle(ctx, "store_acme_x1")
	require.NoError(t, err)
	_, err = registry.GetHandle(ctx, "store_globex_x1")
	require.NoError(t, err)

	require.NoError(t, asError(registry.CloseAll(ctx)))
	assert.Equal(t, 0, registry.PoolCount())
	assert.True(t, factory.dbs["store_acme_x1"].isClosed())
	assert.True(t, factory.dbs["store_globex_x1"].isClosed())

	_, err = registry.GetHandle(ctx, "store_acme_x1")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

// asError converts a typed nil apperrors.Error into a plain nil error for
// assert.NoError.
func asError(err interface{ Error() string }) error {
	if err == nil {
		return nil
	}
	return err.(error)
}
