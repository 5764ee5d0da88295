package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querydeck/querydeck/internal/engine"
)

const defaultBatchSize = 2048

type Config struct {
	// WorkDir is the parent directory for session scratch files. Empty means
	// the OS temp dir.
	WorkDir   string
	BatchSize int
}

// Session is an embedded in-memory DuckDB handle plus the scratch directory
// holding the bytes of the current import batch. The handle is opened lazily
// on first use; concurrent first uses collapse into a single open.
type Session struct {
	cfg Config

	once    sync.Once
	db      *sql.DB
	dir     string
	openErr error

	mu     sync.Mutex
	views  map[string]string
	order  []string
	nextID int
}

func NewSession(cfg Config) *Session {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Session{cfg: cfg, views: map[string]string{}}
}

func (s *Session) ensure() error {
	s.once.Do(func() {
		dir, err := os.MkdirTemp(s.cfg.WorkDir, "querydeck-session-")
		if err != nil {
			s.openErr = fmt.Errorf("create session work dir: %w", err)
			return
		}
		db, err := sql.Open("duckdb", "")
		if err != nil {
			_ = os.RemoveAll(dir)
			s.openErr = fmt.Errorf("open duckdb: %w", err)
			return
		}
		s.dir = dir
		s.db = db
	})
	return s.openErr
}

// Register materializes the reader's bytes under the session scratch dir and
// exposes them to SQL as a view named after the path stem. The view reader
// function is chosen by extension.
func (s *Session) Register(ctx context.Context, path string, r io.Reader, size int64) error {
	if err := s.ensure(); err != nil {
		return err
	}
	relation, ok := relationFor(path)
	if !ok {
		return fmt.Errorf("unsupported file type: %q", path)
	}

	s.mu.Lock()
	localName := fmt.Sprintf("f%05d%s", s.nextID, strings.ToLower(filepath.Ext(path)))
	s.nextID++
	viewName := s.uniqueViewNameLocked(path)
	s.mu.Unlock()

	localPath := filepath.Join(s.dir, localName)
	if err := materialize(localPath, r, size); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("write local file for %q: %w", path, err)
	}

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s(%s)`,
		quoteIdent(viewName), relation, quoteString(localPath))
	if _, err := s.db.ExecContext(ctx, viewSQL); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("create view for %q: %w", path, err)
	}

	s.mu.Lock()
	s.views[viewName] = path
	s.order = append(s.order, viewName)
	s.mu.Unlock()
	return nil
}

// Reset drops every registered view and deletes the scratch files, leaving an
// empty session behind the same handle.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.ensure(); err != nil {
		return err
	}
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	for _, name := range names {
		if _, err := s.db.ExecContext(ctx, "DROP VIEW IF EXISTS "+quoteIdent(name)); err != nil {
			return fmt.Errorf("drop view %q: %w", name, err)
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list session work dir: %w", err)
	}
	for _, entry := range entries {
		_ = os.Remove(filepath.Join(s.dir, entry.Name()))
	}

	s.mu.Lock()
	s.views = map[string]string{}
	s.order = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) Query(ctx context.Context, sqlText string, rowLimit int) (engine.Table, error) {
	if err := s.ensure(); err != nil {
		return engine.Table{}, err
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return engine.Table{}, fmt.Errorf("sql is required")
	}
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return engine.Table{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return engine.Table{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return engine.Table{}, err
		}
		resultRows = append(resultRows, values)
	}
	if err := rows.Err(); err != nil {
		return engine.Table{}, fmt.Errorf("iterate rows: %w", err)
	}

	return engine.Table{Columns: columns, Rows: resultRows}, nil
}

func (s *Session) QueryStream(ctx context.Context, sqlText string) (engine.BatchStream, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return nil, fmt.Errorf("sql is required")
	}

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return &batchStream{rows: rows, columns: columns, batchSize: s.cfg.BatchSize}, nil
}

func (s *Session) Execute(ctx context.Context, sqlText string) error {
	if err := s.ensure(); err != nil {
		return err
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return fmt.Errorf("sql is required")
	}
	if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

// Tables lists the registered views in registration order.
func (s *Session) Tables(_ context.Context) ([]engine.TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]engine.TableInfo, 0, len(s.order))
	for _, name := range s.order {
		infos = append(infos, engine.TableInfo{Name: name, Path: s.views[name]})
	}
	return infos, nil
}

func (s *Session) Close() error {
	var dbErr error
	if s.db != nil {
		dbErr = s.db.Close()
	}
	if s.dir != "" {
		_ = os.RemoveAll(s.dir)
	}
	return dbErr
}

type batchStream struct {
	rows      *sql.Rows
	columns   []string
	batchSize int

	current engine.Batch
	err     error
	done    bool
}

func (b *batchStream) Next() bool {
	if b.done || b.err != nil {
		return false
	}
	batchRows := make([][]any, 0, b.batchSize)
	for len(batchRows) < b.batchSize && b.rows.Next() {
		values, err := scanRow(b.rows, len(b.columns))
		if err != nil {
			b.err = err
			return false
		}
		batchRows = append(batchRows, values)
	}
	if err := b.rows.Err(); err != nil {
		b.err = fmt.Errorf("iterate rows: %w", err)
		return false
	}
	if len(batchRows) < b.batchSize {
		b.done = true
	}
	if len(batchRows) == 0 {
		return false
	}
	b.current = engine.Batch{Columns: b.columns, Rows: batchRows}
	return true
}

func (b *batchStream) Batch() engine.Batch {
	return b.current
}

func (b *batchStream) Err() error {
	return b.err
}

func (b *batchStream) Close() error {
	return b.rows.Close()
}

func scanRow(rows *sql.Rows, width int) ([]any, error) {
	values := make([]any, width)
	scanTargets := make([]any, width)
	for i := range values {
		scanTargets[i] = &values[i]
	}
	if err := rows.Scan(scanTargets...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return normalizeValues(values), nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func (s *Session) uniqueViewNameLocked(path string) string {
	base := sanitizeIdent(stemOf(path))
	name := base
	for i := 2; ; i++ {
		if _, exists := s.views[name]; !exists {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

func stemOf(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base
}

func sanitizeIdent(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" {
		return "t"
	}
	if name[0] >= '0' && name[0] <= '9' {
		return "t_" + name
	}
	return name
}

func relationFor(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return "read_parquet", true
	case ".csv":
		return "read_csv_auto", true
	case ".json", ".ndjson":
		return "read_json_auto", true
	default:
		return "", false
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
