// Package workbench orchestrates the SQL workbench: it imports batches into
// an engine session, runs the statement under the cursor, and streams CSV
// exports.
package workbench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/querydeck/querydeck/internal/collect"
	"github.com/querydeck/querydeck/internal/engine"
	"github.com/querydeck/querydeck/internal/format"
	"github.com/querydeck/querydeck/internal/observability"
	"github.com/querydeck/querydeck/internal/source"
	"github.com/querydeck/querydeck/internal/statement"
	"github.com/querydeck/querydeck/internal/tabs"
)

var (
	// ErrNoImportableFiles reports a source that yielded nothing on the
	// extension allow list.
	ErrNoImportableFiles = errors.New("workbench: no importable files")
	// ErrEmptyStatement reports a run request whose located statement is blank.
	ErrEmptyStatement = errors.New("workbench: no statement at cursor")
)

// Session is an engine plus the lifecycle of its scratch state.
type Session interface {
	engine.Engine
	Close() error
}

// SessionFactory builds a fresh, empty session. Imports stage into a new
// session and swap it in only after at least one file registered.
type SessionFactory func() Session

type Config struct {
	PreviewRowLimit int
	CSVFlushBytes   int
}

type Service struct {
	cfg        Config
	logger     *slog.Logger
	newSession SessionFactory

	deck  *tabs.Deck
	store tabs.Store

	mu     sync.RWMutex
	active Session
}

// NewService builds a workbench over an initially empty session. store may
// be nil; the deck then lives only in memory.
func NewService(cfg Config, factory SessionFactory, store tabs.Store, logger *slog.Logger) (*Service, error) {
	if factory == nil {
		return nil, fmt.Errorf("workbench: session factory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PreviewRowLimit <= 0 {
		cfg.PreviewRowLimit = format.DefaultPreviewRows
	}
	if cfg.CSVFlushBytes <= 0 {
		cfg.CSVFlushBytes = format.DefaultFlushBytes
	}
	return &Service{
		cfg:        cfg,
		logger:     logger,
		newSession: factory,
		deck:       tabs.NewDeck(),
		store:      store,
		active:     factory(),
	}, nil
}

type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type ImportSummary struct {
	Source     string             `json:"source"`
	Registered int                `json:"registered"`
	TotalBytes int64              `json:"total_bytes"`
	Skipped    []SkippedFile      `json:"skipped,omitempty"`
	Tables     []engine.TableInfo `json:"tables"`
}

// Import collects a batch from the source and registers it into a staging
// session. The staging session replaces the active one only after at least
// one file registered; a failed import leaves the current session untouched.
// Individual files that cannot be read or registered are skipped.
func (s *Service) Import(ctx context.Context, src source.Source) (ImportSummary, error) {
	batch, err := src.Collect(ctx)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("collect from %s: %w", src.Name(), err)
	}
	if len(batch.Files) == 0 {
		return ImportSummary{}, ErrNoImportableFiles
	}

	staging := s.newSession()
	summary := ImportSummary{Source: src.Name()}
	for _, file := range batch.Files {
		if err := ctx.Err(); err != nil {
			_ = staging.Close()
			return ImportSummary{}, err
		}
		if err := s.registerFile(ctx, staging, file); err != nil {
			s.logger.Warn("skipping file", "path", file.Path, "error", err)
			summary.Skipped = append(summary.Skipped, SkippedFile{Path: file.Path, Reason: err.Error()})
			continue
		}
		summary.Registered++
		summary.TotalBytes += file.Size
	}
	if summary.Registered == 0 {
		_ = staging.Close()
		return ImportSummary{}, fmt.Errorf("%w: every file in the batch failed to register", ErrNoImportableFiles)
	}

	summary.Tables, err = staging.Tables(ctx)
	if err != nil {
		_ = staging.Close()
		return ImportSummary{}, fmt.Errorf("list staged tables: %w", err)
	}

	s.mu.Lock()
	previous := s.active
	s.active = staging
	s.mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}

	observability.ObserveImportBatch(summary.Registered, summary.TotalBytes)
	s.logger.Info("import batch registered",
		"source", summary.Source,
		"files", summary.Registered,
		"skipped", len(summary.Skipped),
		"bytes", summary.TotalBytes)
	return summary, nil
}

func (s *Service) registerFile(ctx context.Context, session Session, file collect.File) error {
	reader, err := file.Open(ctx)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() { _ = reader.Close() }()
	return session.Register(ctx, file.Path, reader, file.Size)
}

type RunRequest struct {
	Text      string `json:"text"`
	Cursor    int    `json:"cursor"`
	Selection string `json:"selection"`
	TabID     string `json:"tab_id"`
}

type RunResult struct {
	Statement string        `json:"statement"`
	Columns   []string      `json:"columns"`
	Rows      [][]string    `json:"rows"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated"`
	Elapsed   time.Duration `json:"elapsed_ms"`
}

// Run locates the statement addressed by the request and executes it,
// returning a formatted preview capped at the configured row limit. A
// successful run on a known tab clears its dirty flag.
func (s *Service) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	stmt := statement.Locate(req.Text, req.Cursor, req.Selection)
	if stmt == "" {
		return RunResult{}, ErrEmptyStatement
	}

	// Query one row past the cap so a result of exactly the cap's size is
	// not reported as truncated.
	started := time.Now()
	table, err := s.session().Query(ctx, stmt, s.cfg.PreviewRowLimit+1)
	elapsed := time.Since(started)
	observability.ObserveQuery(elapsed, err != nil)
	if err != nil {
		return RunResult{}, fmt.Errorf("run statement: %w", err)
	}

	if req.TabID != "" {
		if err := s.deck.MarkExecuted(req.TabID); err != nil && !errors.Is(err, tabs.ErrTabNotFound) {
			return RunResult{}, err
		}
	}

	preview := format.Preview(table, s.cfg.PreviewRowLimit)
	return RunResult{
		Statement: stmt,
		Columns:   preview.Columns,
		Rows:      preview.Rows,
		RowCount:  len(preview.Rows),
		Truncated: table.RowCount() > s.cfg.PreviewRowLimit,
		Elapsed:   elapsed,
	}, nil
}

// ExportCSV streams the full result of the addressed statement as CSV
// chunks, without the preview cap.
func (s *Service) ExportCSV(ctx context.Context, req RunRequest, sink format.ChunkSink) (format.CSVSummary, error) {
	stmt := statement.Locate(req.Text, req.Cursor, req.Selection)
	if stmt == "" {
		return format.CSVSummary{}, ErrEmptyStatement
	}

	stream, err := s.session().QueryStream(ctx, stmt)
	if err != nil {
		return format.CSVSummary{}, fmt.Errorf("start export: %w", err)
	}
	defer func() { _ = stream.Close() }()

	summary, err := format.WriteCSV(ctx, stream, sink, format.CSVOptions{FlushBytes: s.cfg.CSVFlushBytes})
	if err != nil {
		return summary, err
	}
	observability.ObserveExport(summary.Rows, summary.Chunks)
	return summary, nil
}

// Statements splits editor text into its statement segments.
func (s *Service) Statements(text string) []statement.Segment {
	return statement.Segments(text)
}

func (s *Service) Tables(ctx context.Context) ([]engine.TableInfo, error) {
	return s.session().Tables(ctx)
}

func (s *Service) session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Service) Deck() *tabs.Deck {
	return s.deck
}

// SaveDeck persists the current deck snapshot.
func (s *Service) SaveDeck(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.deck.Snapshot()); err != nil {
		return fmt.Errorf("save deck: %w", err)
	}
	return nil
}

// RestoreDeck loads the persisted deck if one exists; a missing save keeps
// the in-memory deck.
func (s *Service) RestoreDeck(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	saved, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, tabs.ErrNoSavedDeck) {
			return nil
		}
		return fmt.Errorf("load deck: %w", err)
	}
	deck, err := tabs.Restore(saved)
	if err != nil {
		return err
	}
	s.deck = deck
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	err := s.active.Close()
	s.active = nil
	return err
}
