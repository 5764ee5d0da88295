package format

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/querydeck/querydeck/internal/engine"
)

type sliceStream struct {
	batches []engine.Batch
	index   int
	err     error
	closed  bool
}

func (s *sliceStream) Next() bool {
	if s.index >= len(s.batches) {
		return false
	}
	s.index++
	return true
}

func (s *sliceStream) Batch() engine.Batch {
	return s.batches[s.index-1]
}

func (s *sliceStream) Err() error {
	return s.err
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func TestCellFormatsScalarValues(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{[]byte("bytes"), "bytes"},
		{int64(9007199254740993), "9007199254740993"},
		{int32(-7), "-7"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{3.5, "3.5"},
		{true, "true"},
		{time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "2024-03-01T12:30:00Z"},
		{map[string]any{"a": int64(1)}, `{"a":1}`},
		{[]any{int64(1), "x"}, `[1,"x"]`},
	}
	for _, tt := range tests {
		if got := Cell(tt.in); got != tt.want {
			t.Fatalf("Cell(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPreviewCapsRows(t *testing.T) {
	table := engine.Table{Columns: []string{"n"}}
	for i := 0; i < 500; i++ {
		table.Rows = append(table.Rows, []any{int64(i)})
	}

	preview := Preview(table, 0)
	if len(preview.Rows) != DefaultPreviewRows {
		t.Fatalf("rows = %d, want %d", len(preview.Rows), DefaultPreviewRows)
	}
	if preview.Rows[0][0] != "0" || preview.Rows[199][0] != "199" {
		t.Fatalf("unexpected preview boundaries: %q .. %q", preview.Rows[0][0], preview.Rows[199][0])
	}

	small := Preview(table, 3)
	if len(small.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(small.Rows))
	}
}

func TestPreviewKeepsRowWidthConsistent(t *testing.T) {
	table := engine.Table{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{int64(1), "x"}, {nil, nil}},
	}
	preview := Preview(table, 10)
	for i, row := range preview.Rows {
		if len(row) != len(preview.Columns) {
			t.Fatalf("row %d width = %d, want %d", i, len(row), len(preview.Columns))
		}
	}
	if preview.Rows[1][0] != "" || preview.Rows[1][1] != "" {
		t.Fatalf("null cells = %q, %q, want empty", preview.Rows[1][0], preview.Rows[1][1])
	}
}

func TestWriteCSVRoundTripsQuotedFields(t *testing.T) {
	stream := &sliceStream{batches: []engine.Batch{
		{
			Columns: []string{"name", "note"},
			Rows: [][]any{
				{"plain", "a,b"},
				{`say "hi"`, "line1\nline2"},
			},
		},
	}}

	var out bytes.Buffer
	summary, err := WriteCSV(context.Background(), stream, func(chunk []byte) error {
		out.Write(chunk)
		return nil
	}, CSVOptions{})
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if summary.Rows != 2 || summary.Columns != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if !strings.HasSuffix(out.String(), "\r\n") {
		t.Fatal("output should end with CRLF")
	}

	records, err := csv.NewReader(bytes.NewReader(out.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("re-parse error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}
	if records[0][0] != "name" || records[0][1] != "note" {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][1] != "a,b" {
		t.Fatalf("comma field = %q", records[1][1])
	}
	if records[2][0] != `say "hi"` || records[2][1] != "line1\nline2" {
		t.Fatalf("quoted fields = %v", records[2])
	}
}

func TestWriteCSVFlushesOnThresholdWithoutSplittingRows(t *testing.T) {
	batch := engine.Batch{Columns: []string{"v"}}
	for i := 0; i < 50; i++ {
		batch.Rows = append(batch.Rows, []any{strings.Repeat("x", 40)})
	}
	stream := &sliceStream{batches: []engine.Batch{batch}}

	var chunks [][]byte
	summary, err := WriteCSV(context.Background(), stream, func(chunk []byte) error {
		chunks = append(chunks, chunk)
		return nil
	}, CSVOptions{FlushBytes: 100})
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want multiple flushes", len(chunks))
	}
	if summary.Chunks != len(chunks) {
		t.Fatalf("summary.Chunks = %d, want %d", summary.Chunks, len(chunks))
	}
	for i, chunk := range chunks {
		if !bytes.HasSuffix(chunk, []byte("\r\n")) {
			t.Fatalf("chunk %d does not end on a row boundary", i)
		}
	}
}

func TestWriteCSVHeaderFromFirstBatchOnly(t *testing.T) {
	stream := &sliceStream{batches: []engine.Batch{
		{Columns: []string{"a"}, Rows: [][]any{{int64(1)}}},
		{Columns: []string{"a"}, Rows: [][]any{{int64(2)}}},
	}}
	var out bytes.Buffer
	summary, err := WriteCSV(context.Background(), stream, func(chunk []byte) error {
		out.Write(chunk)
		return nil
	}, CSVOptions{})
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if summary.Rows != 2 {
		t.Fatalf("rows = %d", summary.Rows)
	}
	if got := out.String(); got != "a\r\n1\r\n2\r\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestWriteCSVNoHeaderOption(t *testing.T) {
	stream := &sliceStream{batches: []engine.Batch{
		{Columns: []string{"a"}, Rows: [][]any{{int64(1)}}},
	}}
	var out bytes.Buffer
	if _, err := WriteCSV(context.Background(), stream, func(chunk []byte) error {
		out.Write(chunk)
		return nil
	}, CSVOptions{NoHeader: true}); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if got := out.String(); got != "1\r\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestWriteCSVEmptyStreamFailsWithNoSchema(t *testing.T) {
	stream := &sliceStream{}
	calls := 0
	_, err := WriteCSV(context.Background(), stream, func([]byte) error {
		calls++
		return nil
	}, CSVOptions{})
	if !errors.Is(err, ErrNoSchema) {
		t.Fatalf("error = %v, want ErrNoSchema", err)
	}
	if calls != 0 {
		t.Fatalf("sink calls = %d, want 0", calls)
	}
}

func TestWriteCSVSchemaOnlyBatchStillWritesHeader(t *testing.T) {
	stream := &sliceStream{batches: []engine.Batch{{Columns: []string{"a", "b"}}}}
	var out bytes.Buffer
	summary, err := WriteCSV(context.Background(), stream, func(chunk []byte) error {
		out.Write(chunk)
		return nil
	}, CSVOptions{})
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if summary.Rows != 0 || summary.Columns != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := out.String(); got != "a,b\r\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestWriteCSVStopsWhenSinkFails(t *testing.T) {
	batch := engine.Batch{Columns: []string{"v"}}
	for i := 0; i < 10; i++ {
		batch.Rows = append(batch.Rows, []any{strings.Repeat("y", 40)})
	}
	stream := &sliceStream{batches: []engine.Batch{batch}}
	sinkErr := errors.New("consumer gone")
	_, err := WriteCSV(context.Background(), stream, func([]byte) error {
		return sinkErr
	}, CSVOptions{FlushBytes: 50})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("error = %v, want sink error", err)
	}
}
