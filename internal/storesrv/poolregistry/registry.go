// Package poolregistry caches one bounded connection pool per tenant
// backing store. Pools are created lazily on first access, shared by
// concurrent requests, and closed explicitly on tenant deletion or process
// shutdown. The registry is the exclusive owner of every pool; callers hold
// a Handle only for the duration of one request.
package poolregistry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/merchantry/merchantry/internal/common/apperrors"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// MaxOpenConns bounds each tenant pool independently; a surge of
	// traffic to one tenant cannot starve another tenant's pool.
	MaxOpenConns int
	MaxIdleConns int
	// AcquireTimeout bounds how long a caller may block waiting for a free
	// connection before failing with ErrPoolExhausted.
	AcquireTimeout time.Duration
	// DrainGrace bounds how long Evict and CloseAll wait for in-flight
	// queries before closing the underlying pool.
	DrainGrace time.Duration
	// Metrics receives registry instrumentation. Nil disables it.
	Metrics *Metrics
}

// Registry is the keyed cache of tenant pools.
type Registry struct {
	mu       sync.Mutex
	pools    map[string]*pool
	creating map[string]*sync.Mutex
	factory  Factory
	opts     Options
	closed   bool
}

// New returns an empty Registry that creates pools with the given factory.
func New(factory Factory, opts Options) *Registry {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 3 * time.Second
	}
	if opts.DrainGrace <= 0 {
		opts.DrainGrace = 10 * time.Second
	}
	return &Registry{
		pools:    make(map[string]*pool),
		creating: make(map[string]*sync.Mutex),
		factory:  factory,
		opts:     opts,
	}
}

// GetHandle returns the handle for a tenant's pool, creating the pool on
// first access. Creation is guarded per key: when many requests race to be
// first for a storage ref, exactly one pool is created and the rest share it.
func (r *Registry) GetHandle(ctx context.Context, storageRef string) (*Handle, apperrors.Error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if p, ok := r.pools[storageRef]; ok {
		r.mu.Unlock()
		return &Handle{pool: p, opts: r.opts}, nil
	}
	keyLock, ok := r.creating[storageRef]
	if !ok {
		keyLock = &sync.Mutex{}
		r.creating[storageRef] = keyLock
	}
	r.mu.Unlock()

	keyLock.Lock()
	defer keyLock.Unlock()

	// another creator may have won the key lock first
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if p, ok := r.pools[storageRef]; ok {
		r.mu.Unlock()
		return &Handle{pool: p, opts: r.opts}, nil
	}
	r.mu.Unlock()

	db, err := r.factory.Open(ctx, storageRef)
	if err != nil {
		r.mu.Lock()
		delete(r.creating, storageRef)
		r.mu.Unlock()
		log.Ctx(ctx).Error().Err(err).Str("storage_ref", storageRef).Msg("failed to open pool")
		return nil, ErrPoolCreate.New("failed to open pool for " + storageRef).Err(err)
	}
	db.SetMaxOpenConns(r.opts.MaxOpenConns)
	db.SetMaxIdleConns(r.opts.MaxIdleConns)

	p := newPool(storageRef, db, r.opts.Metrics)

	r.mu.Lock()
	if r.closed {
		delete(r.creating, storageRef)
		r.mu.Unlock()
		db.Close()
		return nil, ErrRegistryClosed
	}
	r.pools[storageRef] = p
	delete(r.creating, storageRef)
	r.mu.Unlock()

	r.opts.Metrics.poolCreated()
	log.Ctx(ctx).Info().Str("storage_ref", storageRef).Msg("created tenant pool")
	return &Handle{pool: p, opts: r.opts}, nil
}

// Evict drains and closes one tenant's pool. In-flight queries get the
// drain grace period to finish; no new acquisitions are granted once
// eviction begins. Evicting a storage ref with no pool is a no-op.
func (r *Registry) Evict(ctx context.Context, storageRef string) apperrors.Error {
	r.mu.Lock()
	p, ok := r.pools[storageRef]
	if ok {
		delete(r.pools, storageRef)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	p.close(ctx, r.opts.DrainGrace)
	r.opts.Metrics.poolEvicted()
	log.Ctx(ctx).Info().Str("storage_ref", storageRef).Msg("evicted tenant pool")
	return nil
}

// CloseAll drains and closes every pool. Used on process shutdown; the
// registry accepts no new work afterwards.
func (r *Registry) CloseAll(ctx context.Context) apperrors.Error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pools := make([]*pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.pools = make(map[string]*pool)
	r.mu.Unlock()

	for _, p := range pools {
		p.close(ctx, r.opts.DrainGrace)
		r.opts.Metrics.poolEvicted()
	}
	log.Ctx(ctx).Info().Int("pools", len(pools)).Msg("closed all tenant pools")
	return nil
}

// PoolCount returns the number of live pools.
func (r *Registry) PoolCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// pool wraps one tenant's DB with drain bookkeeping.
type pool struct {
	storageRef string
	db         DB
	metrics    *Metrics
	createdAt  time.Time

	mu       sync.Mutex
	closed   bool
	lastUsed time.Time

	inflight sync.WaitGroup
	requests uint64
	returns  uint64
}

func newPool(storageRef string, db DB, metrics *Metrics) *pool {
	return &pool{
		storageRef: storageRef,
		db:         db,
		metrics:    metrics,
		createdAt:  time.Now(),
	}
}

// acquire obtains a connection, blocking up to acquireTimeout. The timeout
// applies to acquisition only; the returned connection is not bound to ctx.
func (p *pool) acquire(ctx context.Context, acquireTimeout time.Duration) (Conn, apperrors.Error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed.New("pool is closed: " + p.storageRef)
	}
	p.inflight.Add(1)
	p.requests++
	p.lastUsed = time.Now()
	p.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		p.inflight.Done()
		if errors.Is(err, context.DeadlineExceeded) {
			p.metrics.poolExhausted()
			return nil, ErrPoolExhausted.New("acquisition timed out for " + p.storageRef).Err(err)
		}
		return nil, ErrQuery.New("failed to acquire connection for " + p.storageRef).Err(err)
	}
	p.metrics.connAcquired()
	return conn, nil
}

// release returns a connection to the pool whether or not the statement
// that used it succeeded.
func (p *pool) release(conn Conn) {
	conn.Close()
	p.mu.Lock()
	p.returns++
	p.mu.Unlock()
	p.inflight.Done()
}

// Stats returns the number of connection acquisitions and returns.
func (p *pool) stats() (requests, returns uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests, p.returns
}

// close marks the pool closed, waits up to grace for in-flight queries,
// then closes the underlying DB. Queries still running when the grace
// expires fail through the driver when the DB closes under them.
func (p *pool) close(ctx context.Context, grace time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Ctx(ctx).Warn().Str("storage_ref", p.storageRef).Msg("drain grace expired with queries in flight")
	}
	if err := p.db.Close(); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("storage_ref", p.storageRef).Msg("failed to close pool")
	}
}
