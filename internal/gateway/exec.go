package gateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"sqlgate/internal/domain"
)

// errTimedOut is returned by race when the timer wins.
var errTimedOut = errors.New("statement timed out")

type outcome[T any] struct {
	val T
	err error
}

// race runs fn against a timer. When the timer fires first, fn's context is
// cancelled and race returns errTimedOut without waiting for fn; if fn later
// finishes with an error, abandoned (when non-nil) receives it. The timer is
// stopped as soon as fn wins.
func race[T any](parent context.Context, timeout time.Duration, fn func(context.Context) (T, error), abandoned func(error)) (T, error) {
	ctx, cancel := context.WithCancel(parent)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome[T]{val: v, err: err}
	}()

	var zero T
	select {
	case o := <-done:
		cancel()
		return o.val, o.err
	case <-timer.C:
		cancel()
		if abandoned != nil {
			go func() {
				if o := <-done; o.err != nil {
					abandoned(o.err)
				}
			}()
		}
		return zero, errTimedOut
	case <-parent.Done():
		cancel()
		return zero, parent.Err()
	}
}

func (g *Gateway) effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return g.timeout
	}
	return timeout
}

// Query runs a read statement and returns all rows. A non-positive timeout
// selects the gateway default.
func (g *Gateway) Query(ctx context.Context, st domain.Statement, timeout time.Duration) ([]domain.Row, error) {
	db, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}
	timeout = g.effectiveTimeout(timeout)

	start := time.Now()
	rows, err := race(ctx, timeout, func(ctx context.Context) ([]domain.Row, error) {
		r, err := db.QueryContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return nil, err
		}
		defer r.Close() //nolint:errcheck
		return scanRows(r)
	}, g.onAbandoned(db, st))

	if err != nil {
		return nil, g.fail(db, err, st, timeout)
	}
	g.logger.Debug("query completed", "table", st.Table, "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}

// QueryRow runs a read statement and returns its first row, or nil when the
// statement produced no rows.
func (g *Gateway) QueryRow(ctx context.Context, st domain.Statement, timeout time.Duration) (domain.Row, error) {
	rows, err := g.Query(ctx, st, timeout)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Exec runs a write or DDL statement.
//
// A QueryTimeout from Exec does not mean the write was rolled back: the
// database may still apply it after the caller has been told it timed out.
func (g *Gateway) Exec(ctx context.Context, st domain.Statement, timeout time.Duration) (domain.ExecResult, error) {
	db, err := g.conn(ctx)
	if err != nil {
		return domain.ExecResult{}, err
	}
	timeout = g.effectiveTimeout(timeout)

	start := time.Now()
	res, err := race(ctx, timeout, func(ctx context.Context) (domain.ExecResult, error) {
		r, err := db.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return domain.ExecResult{}, err
		}
		return execResult(r), nil
	}, g.onAbandoned(db, st))

	if err != nil {
		return domain.ExecResult{}, g.fail(db, err, st, timeout)
	}
	g.logger.Debug("statement executed", "table", st.Table, "rows_affected", res.RowsAffected, "duration", time.Since(start))
	return res, nil
}

// fail classifies err and drops db, the handle the statement ran on, when the
// driver reports it as unusable.
func (g *Gateway) fail(db *sql.DB, err error, st domain.Statement, timeout time.Duration) error {
	if errors.Is(err, errTimedOut) {
		g.logger.Warn("statement timed out", "table", st.Table, "timeout", timeout)
		return domain.ErrQueryTimeout("query timed out after %s", timeout)
	}
	if errors.Is(err, driver.ErrBadConn) {
		g.markBroken(db)
	}
	return Classify(err, st.Table)
}

func (g *Gateway) onAbandoned(db *sql.DB, st domain.Statement) func(error) {
	return func(err error) {
		if errors.Is(err, driver.ErrBadConn) {
			g.markBroken(db)
			return
		}
		if !errors.Is(err, context.Canceled) {
			g.logger.Debug("abandoned statement failed", "table", st.Table, "error", err)
		}
	}
}

func execResult(r sql.Result) domain.ExecResult {
	var out domain.ExecResult
	if n, err := r.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := r.LastInsertId(); err == nil {
		out.LastInsertID = &id
	}
	return out
}

// scanRows reads all rows into column-keyed maps. Byte slices become strings
// so rows serialize as readable JSON.
func scanRows(rows *sql.Rows) ([]domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []domain.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
