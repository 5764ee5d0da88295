package collect

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/parquet-go/parquet-go"
)

type sampleRow struct {
	ID   int64  `parquet:"id"`
	Name string `parquet:"name"`
}

func buildParquet(t *testing.T, rows []sampleRow) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[sampleRow](&buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet rows: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

func paths(batch Batch) []string {
	out := make([]string, 0, len(batch.Files))
	for _, file := range batch.Files {
		out = append(out, file.Path)
	}
	return out
}

func TestCollectFiltersByExtensionRecursively(t *testing.T) {
	parquetData := buildParquet(t, []sampleRow{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
	fsys := fstest.MapFS{
		"a.parquet": {Data: parquetData},
		"a.txt":     {Data: []byte("notes")},
		"sub/b.csv": {Data: []byte("x\n1\n")},
	}

	batch, err := Collect(context.Background(), fsys, ".")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	got := paths(batch)
	want := []string{"a.parquet", "sub/b.csv"}
	if len(got) != len(want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths = %v, want %v", got, want)
		}
	}
}

func TestCollectRecordsParquetMetadata(t *testing.T) {
	parquetData := buildParquet(t, []sampleRow{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}})
	fsys := fstest.MapFS{"events.parquet": {Data: parquetData}}

	batch, err := Collect(context.Background(), fsys, ".")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(batch.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(batch.Files))
	}
	file := batch.Files[0]
	if file.RowCount != 3 {
		t.Fatalf("RowCount = %d, want 3", file.RowCount)
	}
	if len(file.Columns) != 2 || file.Columns[0] != "id" || file.Columns[1] != "name" {
		t.Fatalf("Columns = %v", file.Columns)
	}
	if file.MediaType != "application/vnd.apache.parquet" {
		t.Fatalf("MediaType = %q", file.MediaType)
	}
	if file.Size != int64(len(parquetData)) {
		t.Fatalf("Size = %d, want %d", file.Size, len(parquetData))
	}
}

func TestCollectIgnoresExtensionCase(t *testing.T) {
	fsys := fstest.MapFS{
		"DATA.CSV":        {Data: []byte("a\n1\n")},
		"nested/X.Ndjson": {Data: []byte(`{"a":1}` + "\n")},
	}
	batch, err := Collect(context.Background(), fsys, ".")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(batch.Files) != 2 {
		t.Fatalf("files = %v", paths(batch))
	}
}

func TestCollectOpensCollectedFiles(t *testing.T) {
	fsys := fstest.MapFS{"rows.csv": {Data: []byte("a,b\n1,2\n")}}
	batch, err := Collect(context.Background(), fsys, ".")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	reader, err := batch.Files[0].Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("content = %q", data)
	}
	if batch.TotalBytes() != int64(len(data)) {
		t.Fatalf("TotalBytes = %d, want %d", batch.TotalBytes(), len(data))
	}
}

type faultyFS struct {
	fs.FS
	failDirs map[string]bool
}

func (f faultyFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if f.failDirs[name] {
		return nil, errors.New("permission denied")
	}
	return fs.ReadDir(f.FS, name)
}

func TestCollectSkipsUnreadableSubdirectories(t *testing.T) {
	fsys := faultyFS{
		FS: fstest.MapFS{
			"ok.csv":          {Data: []byte("a\n")},
			"locked/gone.csv": {Data: []byte("b\n")},
			"open/more.csv":   {Data: []byte("c\n")},
		},
		failDirs: map[string]bool{"locked": true},
	}

	batch, err := Collect(context.Background(), fsys, ".")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	got := paths(batch)
	if len(got) != 2 || got[0] != "ok.csv" || got[1] != "open/more.csv" {
		t.Fatalf("paths = %v", got)
	}
}

func TestCollectFailsOnUnreadableRoot(t *testing.T) {
	fsys := faultyFS{FS: fstest.MapFS{}, failDirs: map[string]bool{".": true}}
	if _, err := Collect(context.Background(), fsys, "."); err == nil {
		t.Fatal("Collect() should fail when the root is unreadable")
	}
}

func TestCollectSelectionFiltersAndDeduplicates(t *testing.T) {
	parquetData := buildParquet(t, []sampleRow{{ID: 7, Name: "x"}})
	batch := CollectSelection([]SelectedFile{
		{Path: "one.csv", Data: []byte("a\n1\n")},
		{Path: "/two.parquet", Data: parquetData},
		{Path: "skip.txt", Data: []byte("no")},
		{Path: "one.csv", Data: []byte("dup\n")},
		{Path: "  ", Data: nil},
	})

	got := paths(batch)
	if len(got) != 2 || got[0] != "one.csv" || got[1] != "two.parquet" {
		t.Fatalf("paths = %v", got)
	}
	if batch.Files[1].RowCount != 1 {
		t.Fatalf("parquet RowCount = %d, want 1", batch.Files[1].RowCount)
	}

	reader, err := batch.Files[0].Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "a\n1\n" {
		t.Fatalf("first selection wins, got %q", data)
	}
}
