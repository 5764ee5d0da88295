// Package postgres persists the workbench tab deck in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/querydeck/querydeck/internal/tabs"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("tab store dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open tab store db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping tab store db: %w", err)
	}

	return db, nil
}

// Store keeps a single deck per database, in the workbench_deck and
// workbench_tab tables created by the migrations.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping tab store db: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (tabs.Saved, error) {
	var saved tabs.Saved
	err := s.db.QueryRowContext(ctx, `
SELECT schema_version, active_id
FROM workbench_deck
WHERE deck_id = 1`).Scan(&saved.SchemaVersion, &saved.ActiveID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tabs.Saved{}, tabs.ErrNoSavedDeck
		}
		return tabs.Saved{}, fmt.Errorf("load deck: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT tab_id, name, category, sql_text, dirty, updated_at
FROM workbench_tab
ORDER BY position ASC`)
	if err != nil {
		return tabs.Saved{}, fmt.Errorf("load tabs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tab tabs.Tab
		var category string
		if err := rows.Scan(&tab.ID, &tab.Name, &category, &tab.SQLText, &tab.Dirty, &tab.UpdatedAt); err != nil {
			return tabs.Saved{}, fmt.Errorf("scan tab row: %w", err)
		}
		tab.Category = tabs.Category(category)
		saved.Tabs = append(saved.Tabs, tab)
	}
	if err := rows.Err(); err != nil {
		return tabs.Saved{}, fmt.Errorf("iterate tab rows: %w", err)
	}
	return saved, nil
}

// Save replaces the stored deck wholesale inside one transaction.
func (s *Store) Save(ctx context.Context, saved tabs.Saved) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO workbench_deck (deck_id, schema_version, active_id)
VALUES (1, $1, $2)
ON CONFLICT (deck_id) DO UPDATE
SET schema_version = EXCLUDED.schema_version, active_id = EXCLUDED.active_id`,
		saved.SchemaVersion, saved.ActiveID); err != nil {
		return fmt.Errorf("save deck: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workbench_tab`); err != nil {
		return fmt.Errorf("clear tabs: %w", err)
	}

	for position, tab := range saved.Tabs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO workbench_tab (tab_id, position, name, category, sql_text, dirty, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			tab.ID, position, tab.Name, string(tab.Category), tab.SQLText, tab.Dirty, tab.UpdatedAt); err != nil {
			return fmt.Errorf("save tab %q: %w", tab.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deck save: %w", err)
	}
	return nil
}
