// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/memvault-dev/memvault/internal/metrics"
	"github.com/memvault-dev/memvault/internal/store"
)

var _ store.Handle = (*Handle)(nil)

type openFunc func(ctx context.Context, mode store.Mode) (*physConn, error)

// PoolStats is a snapshot of pool occupancy and reuse counters.
type PoolStats struct {
	Capacity       int   `json:"pool_size_configured"`
	AvailableRead  int   `json:"pool_available_read"`
	AvailableWrite int   `json:"pool_available_write"`
	Hits           int64 `json:"pool_hits"`
	Misses         int64 `json:"pool_misses"`
}

// Pool keeps two bounded stacks of idle connections, one per mode. A
// connection handed to a caller is never in an idle stack. Capacity 0
// disables pooling: every Acquire opens and every release closes.
type Pool struct {
	open     openFunc
	capacity int
	logger   *slog.Logger

	mu     sync.Mutex
	idle   map[store.Mode][]*physConn
	hits   int64
	misses int64
}

// NewPool returns a pool that opens connections with open.
func NewPool(capacity int, open openFunc, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		open:     open,
		capacity: max(capacity, 0),
		logger:   logger,
		idle: map[store.Mode][]*physConn{
			store.ModeReadOnly: nil,
			store.ModeWrite:    nil,
		},
	}
}

// Acquire pops an idle connection for mode (a hit) or opens a new one (a
// miss). Misses are only counted when pooling is enabled.
func (p *Pool) Acquire(ctx context.Context, mode store.Mode) (*Handle, error) {
	if p.capacity > 0 {
		p.mu.Lock()
		stack := p.idle[mode]
		if n := len(stack); n > 0 {
			pc := stack[n-1]
			stack[n-1] = nil
			p.idle[mode] = stack[:n-1]
			p.hits++
			p.mu.Unlock()
			metrics.PoolAcquireTotal.WithLabelValues(mode.String(), metrics.ResultHit).Inc()
			return &Handle{pc: pc, pool: p}, nil
		}
		p.misses++
		p.mu.Unlock()
		metrics.PoolAcquireTotal.WithLabelValues(mode.String(), metrics.ResultMiss).Inc()
	}

	pc, err := p.open(ctx, mode)
	if err != nil {
		return nil, err
	}
	return &Handle{pc: pc, pool: p}, nil
}

// release returns pc to its idle stack, or closes it when the stack is full
// or pooling is disabled.
func (p *Pool) release(pc *physConn) {
	if p.capacity > 0 {
		p.mu.Lock()
		if len(p.idle[pc.mode]) < p.capacity {
			p.idle[pc.mode] = append(p.idle[pc.mode], pc)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
	p.closePhysical(pc)
}

// CloseAll drains both idle stacks and closes every connection in them.
// It is safe to call on an empty pool and more than once.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	var drained []*physConn
	for mode, stack := range p.idle {
		drained = append(drained, stack...)
		p.idle[mode] = nil
	}
	p.mu.Unlock()

	for _, pc := range drained {
		p.closePhysical(pc)
	}
}

// Stats returns a consistent snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Capacity:       p.capacity,
		AvailableRead:  len(p.idle[store.ModeReadOnly]),
		AvailableWrite: len(p.idle[store.ModeWrite]),
		Hits:           p.hits,
		Misses:         p.misses,
	}
}

// Enabled reports whether pooling is on.
func (p *Pool) Enabled() bool { return p.capacity > 0 }

func (p *Pool) closePhysical(pc *physConn) {
	metrics.ConnectionsClosedTotal.WithLabelValues(pc.mode.String()).Inc()
	if err := pc.close(); err != nil {
		p.logger.Debug("connection close failed", "conn_id", pc.id, "mode", pc.mode.String(), "error", err)
	}
}

// Handle is a connection checked out of a Pool. It must not be used after
// Close; every query method then reports sql.ErrConnDone.
type Handle struct {
	pc       *physConn
	pool     *Pool
	released atomic.Bool
}

// Mode reports whether the handle is writable or immutable read-only.
func (h *Handle) Mode() store.Mode { return h.pc.mode }

// ID identifies the underlying physical connection. Two handles with the
// same ID share one connection, which happens only through pool reuse.
func (h *Handle) ID() uint64 { return h.pc.id }

func (h *Handle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if h.released.Load() {
		return nil, sql.ErrConnDone
	}
	return h.pc.conn.ExecContext(ctx, query, args...)
}

func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if h.released.Load() {
		return nil, sql.ErrConnDone
	}
	return h.pc.conn.QueryContext(ctx, query, args...)
}

func (h *Handle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if h.released.Load() {
		return closedConn().QueryRowContext(ctx, query, args...)
	}
	return h.pc.conn.QueryRowContext(ctx, query, args...)
}

func (h *Handle) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if h.released.Load() {
		return nil, sql.ErrConnDone
	}
	return h.pc.conn.BeginTx(ctx, opts)
}

// Raw exposes the driver connection, for the online backup API.
func (h *Handle) Raw(f func(driverConn any) error) error {
	if h.released.Load() {
		return sql.ErrConnDone
	}
	return h.pc.conn.Raw(f)
}

// Close releases the handle to its pool. Only the first call has an effect
// and close failures are swallowed, so Close always returns nil.
func (h *Handle) Close() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	h.pool.release(h.pc)
	return nil
}

// closedConn is a connection that has already been closed. sql.Row has no
// exported constructor, so a released handle routes QueryRow here to get a
// row whose Scan reports sql.ErrConnDone.
var closedConn = sync.OnceValue(func() *sql.Conn {
	db := sql.OpenDB(nopConnector{})
	conn, err := db.Conn(context.Background())
	if err != nil {
		panic(err)
	}
	_ = conn.Close()
	_ = db.Close()
	return conn
})

type nopConnector struct{}

func (nopConnector) Connect(context.Context) (driver.Conn, error) { return nopConn{}, nil }

func (nopConnector) Driver() driver.Driver { return nopDriver{} }

type nopDriver struct{}

func (nopDriver) Open(string) (driver.Conn, error) { return nopConn{}, nil }

type nopConn struct{}

func (nopConn) Prepare(string) (driver.Stmt, error) { return nil, sql.ErrConnDone }

func (nopConn) Close() error { return nil }

func (nopConn) Begin() (driver.Tx, error) { return nil, sql.ErrConnDone }
