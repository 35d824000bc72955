package dbexec

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
)

// TxExecutor runs queries inside a caller-owned transaction.
// The transaction is never committed or rolled back here.
//
// database/sql transactions are bound to a single connection, so concurrent
// queries are serialized and each result set is fully read before the next
// statement starts.
type TxExecutor struct {
	tx *sql.Tx
	mu sync.Mutex
}

// NewTxExecutor wraps an open transaction.
func NewTxExecutor(tx *sql.Tx) *TxExecutor {
	return &TxExecutor{tx: tx}
}

func (e *TxExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.tx == nil {
		return nil, sql.ErrTxDone
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return bufferRows(rows)
}

// CountingExecutor counts the statements issued through an inner executor.
type CountingExecutor struct {
	inner   QueryExecutor
	queries atomic.Int64
}

// NewCountingExecutor wraps inner.
func NewCountingExecutor(inner QueryExecutor) *CountingExecutor {
	return &CountingExecutor{inner: inner}
}

func (e *CountingExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	e.queries.Add(1)
	return e.inner.QueryContext(ctx, query, args...)
}

// Queries returns the number of statements issued so far.
func (e *CountingExecutor) Queries() int64 {
	return e.queries.Load()
}

// Reset zeroes the counter.
func (e *CountingExecutor) Reset() {
	e.queries.Store(0)
}

// bufferedRows is a fully-read result set.
type bufferedRows struct {
	values [][]any
	idx    int
}

func bufferRows(rows *sql.Rows) (*bufferedRows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &bufferedRows{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out.values = append(out.values, values)
	}
	return out, rows.Err()
}

func (r *bufferedRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}
	r.idx++
	return true
}

func (r *bufferedRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.values) {
		return sql.ErrNoRows
	}
	row := r.values[r.idx-1]
	if len(dest) != len(row) {
		return errScanWidth
	}
	for i, value := range row {
		p, ok := dest[i].(*any)
		if !ok {
			return errScanDest
		}
		*p = value
	}
	return nil
}

func (r *bufferedRows) Err() error   { return nil }
func (r *bufferedRows) Close() error { return nil }
