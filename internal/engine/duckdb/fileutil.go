package duckdb

import (
	"fmt"
	"io"
	"os"
)

// materialize writes an imported file's bytes to a scratch path. Collectors
// report the size they listed; a short copy means the source truncated the
// content between listing and read, and no view may be created over it.
func materialize(path string, r io.Reader, size int64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	written, err := io.Copy(file, r)
	if err != nil {
		return err
	}
	if size >= 0 && written != size {
		return fmt.Errorf("wrote %d of %d expected bytes", written, size)
	}
	return nil
}
