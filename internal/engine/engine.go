// Package engine defines the contracts between the workbench and the
// embedded analytic engine.
package engine

import (
	"context"
	"io"
)

// Table is a fully materialized query result with random row/column access.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t Table) RowCount() int {
	return len(t.Rows)
}

func (t Table) Value(row, col int) any {
	if row < 0 || row >= len(t.Rows) {
		return nil
	}
	if col < 0 || col >= len(t.Rows[row]) {
		return nil
	}
	return t.Rows[row][col]
}

// Batch is one chunk of a streamed result. All batches of a stream share the
// same column schema and cover contiguous rows in order.
type Batch struct {
	Columns []string
	Rows    [][]any
}

func (b Batch) NumRows() int {
	return len(b.Rows)
}

func (b Batch) Value(row, col int) any {
	if row < 0 || row >= len(b.Rows) {
		return nil
	}
	if col < 0 || col >= len(b.Rows[row]) {
		return nil
	}
	return b.Rows[row][col]
}

// BatchStream iterates a streamed result in the database/sql rows style:
//
//	for stream.Next() {
//		batch := stream.Batch()
//		...
//	}
//	err := stream.Err()
//
// A caller that stops consuming and closes the stream cancels the export;
// already-produced batches stay valid.
type BatchStream interface {
	Next() bool
	Batch() Batch
	Err() error
	Close() error
}

// TableInfo describes one registered view backed by an imported file.
type TableInfo struct {
	Name string
	Path string
}

// Engine is the embedded analytic engine surface the workbench consumes.
// Register is the byte-addressed import primitive: it materializes the
// reader's content under the given batch-relative path and exposes it to SQL.
type Engine interface {
	Register(ctx context.Context, path string, r io.Reader, size int64) error
	Reset(ctx context.Context) error
	Query(ctx context.Context, sql string, rowLimit int) (Table, error)
	QueryStream(ctx context.Context, sql string) (BatchStream, error)
	Execute(ctx context.Context, sql string) error
	Tables(ctx context.Context) ([]TableInfo, error)
}
