// Package collect enumerates importable tabular files from a directory tree
// or a flat selection, producing one import batch of file handles plus
// metadata.
package collect

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// File is one importable file discovered by a collection pass. Path is
// posix-style and unique within the batch. Columns and RowCount are filled
// for parquet files whose footer could be inspected. Open runs under the
// caller's context, not the one the collection pass ran under.
type File struct {
	Path      string
	Size      int64
	MediaType string
	Columns   []string
	RowCount  int64
	Open      func(ctx context.Context) (io.ReadCloser, error)
}

type Batch struct {
	Files []File
}

func (b Batch) TotalBytes() int64 {
	var total int64
	for _, file := range b.Files {
		total += file.Size
	}
	return total
}

// SelectedFile is one entry of a flat file selection, already read into
// memory by the upload path.
type SelectedFile struct {
	Path string
	Data []byte
}

var mediaTypes = map[string]string{
	".parquet": "application/vnd.apache.parquet",
	".csv":     "text/csv",
	".json":    "application/json",
	".ndjson":  "application/x-ndjson",
}

// MediaTypeFor reports the media type for an importable path, matching the
// extension case-insensitively. ok is false for paths off the allow list.
func MediaTypeFor(p string) (mediaType string, ok bool) {
	mediaType, ok = mediaTypes[strings.ToLower(path.Ext(p))]
	return mediaType, ok
}

// Collect walks the tree below root and returns every file whose extension is
// on the allow list, in enumeration order. Unreadable entries and
// subdirectories are skipped without failing the traversal; only an
// unreadable root is an error, since nothing was collected yet.
func Collect(ctx context.Context, fsys fs.FS, root string) (Batch, error) {
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{}
	seen := map[string]struct{}{}
	collectEntries(ctx, fsys, root, "", entries, &batch, seen)
	return batch, ctx.Err()
}

func collectEntries(ctx context.Context, fsys fs.FS, dir, prefix string, entries []fs.DirEntry, batch *Batch, seen map[string]struct{}) {
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		name := entry.Name()
		relPath := name
		if prefix != "" {
			relPath = prefix + "/" + name
		}
		fullPath := path.Join(dir, name)

		switch {
		case entry.IsDir():
			children, err := fs.ReadDir(fsys, fullPath)
			if err != nil {
				continue
			}
			collectEntries(ctx, fsys, fullPath, relPath, children, batch, seen)
		case entry.Type().IsRegular():
			mediaType, ok := mediaTypes[strings.ToLower(path.Ext(name))]
			if !ok {
				continue
			}
			if _, dup := seen[relPath]; dup {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			file := File{
				Path:      relPath,
				Size:      info.Size(),
				MediaType: mediaType,
				Open: func(context.Context) (io.ReadCloser, error) {
					return fsys.Open(fullPath)
				},
			}
			if strings.EqualFold(path.Ext(name), ".parquet") {
				if data, err := fs.ReadFile(fsys, fullPath); err == nil {
					file.Columns, file.RowCount = inspectParquet(data)
				}
			}
			seen[relPath] = struct{}{}
			batch.Files = append(batch.Files, file)
		}
	}
}

// CollectSelection filters a flat file selection through the same allow list.
// Paths already carry any relative directory structure the selection had.
func CollectSelection(files []SelectedFile) Batch {
	batch := Batch{}
	seen := map[string]struct{}{}
	for _, selected := range files {
		relPath := strings.TrimPrefix(strings.TrimSpace(selected.Path), "/")
		if relPath == "" {
			continue
		}
		mediaType, ok := mediaTypes[strings.ToLower(path.Ext(relPath))]
		if !ok {
			continue
		}
		if _, dup := seen[relPath]; dup {
			continue
		}
		data := selected.Data
		file := File{
			Path:      relPath,
			Size:      int64(len(data)),
			MediaType: mediaType,
			Open: func(context.Context) (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		}
		if strings.EqualFold(path.Ext(relPath), ".parquet") {
			file.Columns, file.RowCount = inspectParquet(data)
		}
		seen[relPath] = struct{}{}
		batch.Files = append(batch.Files, file)
	}
	return batch
}

// inspectParquet reads column names and row count from a parquet footer.
// Inspection failures leave the metadata empty; the file is still imported.
func inspectParquet(data []byte) ([]string, int64) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0
	}
	fields := file.Schema().Fields()
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Name())
	}
	return columns, file.NumRows()
}
