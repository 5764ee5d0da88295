package format

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/querydeck/querydeck/internal/engine"
)

// ErrNoSchema reports an export that observed zero batches: there is no
// header to write, so the export fails instead of producing an empty file.
var ErrNoSchema = errors.New("format: no result schema observed")

// DefaultFlushBytes is the chunk threshold for CSV exports.
const DefaultFlushBytes = 1_000_000

type CSVOptions struct {
	// NoHeader suppresses the column-name line.
	NoHeader bool
	// FlushBytes overrides the chunk threshold; <= 0 means DefaultFlushBytes.
	FlushBytes int
}

type CSVSummary struct {
	Rows    int64
	Columns int
	Chunks  int
}

// ChunkSink receives completed CSV chunks in order. A chunk always ends on a
// row boundary. Returning an error stops the export.
type ChunkSink func(chunk []byte) error

// WriteCSV drains a batch stream into CSV chunks. The header comes from the
// first batch; every row of every batch becomes one line under the shared
// cell rule. The buffer is flushed once it reaches the threshold and once
// more at end of stream. Counts cover the full export, not the preview cap.
func WriteCSV(ctx context.Context, stream engine.BatchStream, sink ChunkSink, opts CSVOptions) (CSVSummary, error) {
	if sink == nil {
		return CSVSummary{}, errors.New("format: chunk sink is required")
	}
	flushAt := opts.FlushBytes
	if flushAt <= 0 {
		flushAt = DefaultFlushBytes
	}

	var buf bytes.Buffer
	summary := CSVSummary{}
	sawSchema := false

	flush := func() error {
		if buf.Len() == 0 {
			return nil
		}
		chunk := make([]byte, buf.Len())
		copy(chunk, buf.Bytes())
		buf.Reset()
		summary.Chunks++
		return sink(chunk)
	}

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch := stream.Batch()
		if !sawSchema {
			sawSchema = true
			summary.Columns = len(batch.Columns)
			if !opts.NoHeader {
				writeRecord(&buf, batch.Columns)
			}
		}
		for r := 0; r < batch.NumRows(); r++ {
			fields := make([]string, len(batch.Columns))
			for c := range batch.Columns {
				fields[c] = Cell(batch.Value(r, c))
			}
			writeRecord(&buf, fields)
			summary.Rows++
			if buf.Len() >= flushAt {
				if err := flush(); err != nil {
					return summary, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return summary, err
	}
	if !sawSchema {
		return CSVSummary{}, ErrNoSchema
	}
	if err := flush(); err != nil {
		return summary, err
	}
	return summary, nil
}

func writeRecord(buf *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(escapeField(field))
	}
	buf.WriteString("\r\n")
}

// A field is quoted only when it contains a quote, comma, or line break;
// inner quotes are doubled.
func escapeField(field string) string {
	if !strings.ContainsAny(field, "\",\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
