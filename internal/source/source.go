// Package source abstracts where an import batch comes from: a local
// directory tree, a flat upload selection, or an object store prefix.
package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/querydeck/querydeck/internal/collect"
)

// Source produces one import batch per Collect call.
type Source interface {
	// Name labels the source in logs and import summaries.
	Name() string
	Collect(ctx context.Context) (collect.Batch, error)
}

// Dir imports every allow-listed file below a local directory.
type Dir struct {
	Path string
}

func (d Dir) Name() string {
	return "dir:" + d.Path
}

func (d Dir) Collect(ctx context.Context) (collect.Batch, error) {
	root := strings.TrimSpace(d.Path)
	if root == "" {
		return collect.Batch{}, fmt.Errorf("source: directory path is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return collect.Batch{}, fmt.Errorf("source: stat %q: %w", root, err)
	}
	if !info.IsDir() {
		return collect.Batch{}, fmt.Errorf("source: %q is not a directory", root)
	}
	return collect.Collect(ctx, os.DirFS(root), ".")
}

// Selection imports a flat set of files already held in memory, typically
// from a multipart upload.
type Selection struct {
	Files []collect.SelectedFile
}

func (s Selection) Name() string {
	return fmt.Sprintf("selection:%d", len(s.Files))
}

func (s Selection) Collect(ctx context.Context) (collect.Batch, error) {
	if err := ctx.Err(); err != nil {
		return collect.Batch{}, err
	}
	return collect.CollectSelection(s.Files), nil
}
