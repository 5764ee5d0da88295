package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/querydeck/querydeck/internal/tabs"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestLoadReturnsSavedDeckInPositionOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT schema_version, active_id
FROM workbench_deck
WHERE deck_id = 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"schema_version", "active_id"}).AddRow(tabs.SchemaVersion, "tab-b"))

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT tab_id, name, category, sql_text, dirty, updated_at
FROM workbench_tab
ORDER BY position ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"tab_id", "name", "category", "sql_text", "dirty", "updated_at"}).
			AddRow("tab-a", "one", "scripts", "SELECT 1", false, now).
			AddRow("tab-b", "two", "bookmarks", "SELECT 2", true, now))

	saved, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved.SchemaVersion != tabs.SchemaVersion || saved.ActiveID != "tab-b" {
		t.Fatalf("saved = %+v", saved)
	}
	if len(saved.Tabs) != 2 || saved.Tabs[0].ID != "tab-a" || saved.Tabs[1].Category != tabs.CategoryBookmark {
		t.Fatalf("tabs = %+v", saved.Tabs)
	}
	assertSQLMock(t, mock)
}

func TestLoadReportsMissingDeck(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT schema_version, active_id
FROM workbench_deck
WHERE deck_id = 1`)).
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Load(context.Background()); !errors.Is(err, tabs.ErrNoSavedDeck) {
		t.Fatalf("error = %v, want ErrNoSavedDeck", err)
	}
	assertSQLMock(t, mock)
}

func TestSaveReplacesDeckInOneTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now().UTC()

	saved := tabs.Saved{
		SchemaVersion: tabs.SchemaVersion,
		ActiveID:      "tab-a",
		Tabs: []tabs.Tab{
			{ID: "tab-a", Name: "one", Category: tabs.CategoryScript, SQLText: "SELECT 1", UpdatedAt: now},
			{ID: "tab-b", Name: "two", Category: tabs.CategoryTemplate, SQLText: "SELECT 2", Dirty: true, UpdatedAt: now},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO workbench_deck (deck_id, schema_version, active_id)
VALUES (1, $1, $2)
ON CONFLICT (deck_id) DO UPDATE
SET schema_version = EXCLUDED.schema_version, active_id = EXCLUDED.active_id`)).
		WithArgs(tabs.SchemaVersion, "tab-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM workbench_tab`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO workbench_tab (tab_id, position, name, category, sql_text, dirty, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`)).
		WithArgs("tab-a", 0, "one", "scripts", "SELECT 1", false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO workbench_tab (tab_id, position, name, category, sql_text, dirty, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`)).
		WithArgs("tab-b", 1, "two", "templates", "SELECT 2", true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Save(context.Background(), saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestSaveRollsBackOnInsertFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	insertErr := errors.New("constraint violation")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO workbench_deck").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM workbench_tab").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO workbench_tab").
		WillReturnError(insertErr)
	mock.ExpectRollback()

	err := store.Save(context.Background(), tabs.Saved{
		SchemaVersion: tabs.SchemaVersion,
		ActiveID:      "tab-a",
		Tabs:          []tabs.Tab{{ID: "tab-a", Name: "one", Category: tabs.CategoryScript}},
	})
	if !errors.Is(err, insertErr) {
		t.Fatalf("error = %v, want insert failure", err)
	}
	assertSQLMock(t, mock)
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{}); err == nil {
		t.Fatal("missing dsn should fail")
	}
}
