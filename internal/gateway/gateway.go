// Package gateway owns the database connection and runs built statements
// under a bounded timeout, normalizing driver outcomes into domain results
// and classified errors.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sqlgate/internal/domain"
)

var errGatewayClosed = errors.New("gateway closed while connecting")

// DefaultTimeout bounds a statement when neither the caller nor the gateway
// configuration supplies a timeout.
const DefaultTimeout = 180 * time.Second

// State is the connection lifecycle state.
type State int

// Connection states. Connecting is entered on the first statement after
// construction or after Close; Connected falls back to Disconnected on Close
// or when the driver reports a broken connection.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Opener establishes the underlying database handle.
type Opener func(ctx context.Context) (*sql.DB, error)

// Gateway holds the single shared connection. It is safe for concurrent use;
// concurrent first callers share one connect attempt.
type Gateway struct {
	open    Opener
	timeout time.Duration
	logger  *slog.Logger

	flight singleflight.Group

	mu    sync.RWMutex
	state State
	db    *sql.DB
	// gen is bumped by Close; a connect that started under an older
	// generation discards its handle.
	gen uint64
}

// New creates a Gateway in the Disconnected state. A non-positive timeout
// selects DefaultTimeout.
func New(open Opener, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{open: open, timeout: timeout, logger: logger}
}

// Timeout returns the default statement timeout.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

// State reports the current connection state.
func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Connect establishes the connection. It is a no-op while Connected.
func (g *Gateway) Connect(ctx context.Context) error {
	_, err := g.conn(ctx)
	return err
}

// conn returns the live handle, connecting first if necessary.
func (g *Gateway) conn(ctx context.Context) (*sql.DB, error) {
	g.mu.RLock()
	if g.state == StateConnected {
		db := g.db
		g.mu.RUnlock()
		return db, nil
	}
	g.mu.RUnlock()

	ch := g.flight.DoChan("connect", func() (any, error) {
		g.mu.Lock()
		if g.state == StateConnected {
			db := g.db
			g.mu.Unlock()
			return db, nil
		}
		g.state = StateConnecting
		gen := g.gen
		g.mu.Unlock()

		// The attempt is shared, so it must not die with the first caller.
		db, err := g.open(context.WithoutCancel(ctx))

		g.mu.Lock()
		defer g.mu.Unlock()
		if err != nil {
			if g.gen == gen {
				g.state = StateDisconnected
			}
			g.logger.Error("database connect failed", "error", err)
			return nil, domain.ErrConnection(err)
		}
		if g.gen != gen {
			_ = db.Close()
			g.logger.Info("connect finished after close, handle discarded")
			return nil, domain.ErrConnection(errGatewayClosed)
		}
		g.db = db
		g.state = StateConnected
		g.logger.Info("database connected")
		return db, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sql.DB), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the connection. Closing a closed gateway is a no-op. A
// connect still in flight when Close runs fails with a Connection error and
// its handle is closed.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gen++
	if g.db == nil {
		g.state = StateDisconnected
		return nil
	}
	err := g.db.Close()
	g.db = nil
	g.state = StateDisconnected
	g.logger.Info("database connection closed")
	return err
}

// markBroken drops db if it is still the live handle, so the next statement
// reconnects.
func (g *Gateway) markBroken(db *sql.DB) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db != db || db == nil {
		return
	}
	_ = db.Close()
	g.db = nil
	g.state = StateDisconnected
	g.logger.Warn("database connection marked for reconnect")
}

// Ping verifies the connection, connecting first if necessary.
func (g *Gateway) Ping(ctx context.Context) error {
	db, err := g.conn(ctx)
	if err != nil {
		return err
	}
	_, err = race(ctx, g.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	}, nil)
	if errors.Is(err, errTimedOut) {
		return domain.ErrQueryTimeout("database ping timed out after %s", g.timeout)
	}
	if err != nil {
		return domain.ErrConnection(err)
	}
	return nil
}
