package datastore

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// DefaultWaitTimeout bounds how long Acquire waits for a busy pool.
const DefaultWaitTimeout = 20 * time.Second

var (
	ErrPoolTimeout = errors.New("datastore: timed out waiting for a free connection")
	ErrPoolClosed  = errors.New("datastore: connection pool is closed")
)

// Conn is a pinned database connection. *sql.Conn satisfies it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

type Dialer func(ctx context.Context) (Conn, error)

// ConnectionPool hands out at most Capacity connections.
// Connections are dialled lazily and reused after Release.
type ConnectionPool struct {
	WaitTimeout time.Duration

	dial  Dialer
	slots chan struct{}
	idle  chan Conn
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	inUse int64
	waits int64
}

type PoolStats struct {
	Capacity int
	InUse    int
	Idle     int
	Waits    int64
}

func NewConnectionPool(capacity int, dial Dialer) *ConnectionPool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &ConnectionPool{
		WaitTimeout: DefaultWaitTimeout,
		dial:        dial,
		slots:       make(chan struct{}, capacity),
		idle:        make(chan Conn, capacity),
		done:        make(chan struct{}),
	}
	for i := 0; i < capacity; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Acquire returns an idle connection, dials a new one while
// below capacity, or blocks until a connection is released.
// It fails with ErrPoolTimeout after WaitTimeout and with the
// context error when ctx ends first.
func (p *ConnectionPool) Acquire(ctx context.Context) (Conn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	select {
	case c := <-p.idle:
		return p.checkout(c), nil
	default:
	}

	select {
	case <-p.slots:
		return p.open(ctx)
	default:
	}

	atomic.AddInt64(&p.waits, 1)
	timer := time.NewTimer(p.WaitTimeout)
	defer timer.Stop()

	select {
	case c := <-p.idle:
		return p.checkout(c), nil
	case <-p.slots:
		return p.open(ctx)
	case <-timer.C:
		return nil, ErrPoolTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}
}

func (p *ConnectionPool) checkout(c Conn) Conn {
	atomic.AddInt64(&p.inUse, 1)
	return c
}

func (p *ConnectionPool) open(ctx context.Context) (Conn, error) {
	c, err := p.dial(ctx)
	if err != nil {
		p.slots <- struct{}{}
		return nil, errors.Wrap(err, "opening connection")
	}
	return p.checkout(c), nil
}

// Release returns c to the pool. A non-nil useErr marks the
// connection as suspect: it is pinged and discarded when the
// ping fails, freeing its slot for a fresh dial.
func (p *ConnectionPool) Release(c Conn, useErr error) {
	if c == nil {
		return
	}
	atomic.AddInt64(&p.inUse, -1)

	if useErr != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.PingContext(ctx)
		cancel()
		if err != nil {
			p.discard(c)
			return
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.Close()
		return
	}
	p.idle <- c
}

func (p *ConnectionPool) discard(c Conn) {
	c.Close()
	p.slots <- struct{}{}
}

func (p *ConnectionPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes idle connections and wakes blocked callers.
// Connections still checked out are closed on Release.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	var firstErr error
	for {
		select {
		case c := <-p.idle:
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}

func (p *ConnectionPool) Stats() PoolStats {
	return PoolStats{
		Capacity: cap(p.slots),
		InUse:    int(atomic.LoadInt64(&p.inUse)),
		Idle:     len(p.idle),
		Waits:    atomic.LoadInt64(&p.waits),
	}
}
