package duckdb

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type row struct {
	ID    int64  `parquet:"id"`
	Value string `parquet:"value"`
}

func buildParquet(rows []row) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[row](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	session := NewSession(Config{WorkDir: t.TempDir(), BatchSize: 2})
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestRegisterParquetAndQuery(t *testing.T) {
	parquetBytes, err := buildParquet([]row{{ID: 1, Value: "a"}, {ID: 2, Value: "b"}})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}

	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Register(ctx, "data/events.parquet", bytes.NewReader(parquetBytes), int64(len(parquetBytes))); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	table, err := session.Query(ctx, "SELECT COUNT(*) AS c FROM events;", 0)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if table.RowCount() != 1 {
		t.Fatalf("rows = %d", table.RowCount())
	}
	if table.Value(0, 0) != int64(2) {
		t.Fatalf("count = %#v", table.Value(0, 0))
	}
}

func TestRegisterCSVAndQueryWithRowLimit(t *testing.T) {
	csvBytes := []byte("id,name\n1,alpha\n2,beta\n3,gamma\n")
	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Register(ctx, "people.csv", bytes.NewReader(csvBytes), int64(len(csvBytes))); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	table, err := session.Query(ctx, "SELECT * FROM people ORDER BY id", 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if table.RowCount() != 2 {
		t.Fatalf("rows = %d, want row limit applied", table.RowCount())
	}
	if len(table.Columns) != 2 {
		t.Fatalf("columns = %v", table.Columns)
	}
}

func TestQueryStreamChunksRowsIntoBatches(t *testing.T) {
	csvBytes := []byte("id\n1\n2\n3\n4\n5\n")
	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Register(ctx, "nums.csv", bytes.NewReader(csvBytes), int64(len(csvBytes))); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	stream, err := session.QueryStream(ctx, "SELECT id FROM nums ORDER BY id")
	if err != nil {
		t.Fatalf("QueryStream() error = %v", err)
	}
	defer func() { _ = stream.Close() }()

	total := 0
	batches := 0
	for stream.Next() {
		batch := stream.Batch()
		if len(batch.Columns) != 1 || batch.Columns[0] != "id" {
			t.Fatalf("batch columns = %v", batch.Columns)
		}
		if batch.NumRows() == 0 || batch.NumRows() > 2 {
			t.Fatalf("batch rows = %d, want within batch size 2", batch.NumRows())
		}
		total += batch.NumRows()
		batches++
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if total != 5 {
		t.Fatalf("total rows = %d, want 5", total)
	}
	if batches != 3 {
		t.Fatalf("batches = %d, want 3", batches)
	}
}

func TestResetDropsRegisteredViews(t *testing.T) {
	csvBytes := []byte("id\n1\n")
	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Register(ctx, "one.csv", bytes.NewReader(csvBytes), int64(len(csvBytes))); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := session.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := session.Query(ctx, "SELECT * FROM one", 0); err == nil {
		t.Fatal("expected query against dropped view to fail")
	}
	infos, err := session.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("tables = %v, want none", infos)
	}
}

func TestViewNamesDeduplicateAcrossDirectories(t *testing.T) {
	csvBytes := []byte("id\n1\n")
	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Register(ctx, "a.csv", bytes.NewReader(csvBytes), int64(len(csvBytes))); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := session.Register(ctx, "sub/a.csv", bytes.NewReader(csvBytes), int64(len(csvBytes))); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	infos, err := session.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("tables = %d, want 2", len(infos))
	}
	if infos[0].Name == infos[1].Name {
		t.Fatalf("duplicate view name %q", infos[0].Name)
	}
	if infos[1].Name != "a_2" {
		t.Fatalf("second view = %q, want a_2", infos[1].Name)
	}
}

func TestRegisterRejectsTruncatedContent(t *testing.T) {
	session := newTestSession(t)
	ctx := context.Background()
	if err := session.Register(ctx, "short.csv", strings.NewReader("id\n1\n"), 64); err == nil {
		t.Fatal("expected error when fewer bytes arrive than the listing reported")
	}
	infos, err := session.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("tables = %+v", infos)
	}
}

func TestRegisterRejectsUnsupportedExtension(t *testing.T) {
	session := newTestSession(t)
	err := session.Register(context.Background(), "notes.txt", strings.NewReader("x"), 1)
	if err == nil {
		t.Fatal("expected error for unsupported file type")
	}
}

func TestSanitizeIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"events", "events"},
		{"My File-2024", "my_file_2024"},
		{"2024data", "t_2024data"},
		{"", "t"},
	}
	for _, tt := range tests {
		if got := sanitizeIdent(tt.in); got != tt.want {
			t.Fatalf("sanitizeIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
