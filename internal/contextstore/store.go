package contextstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord summarizes one completed or in-flight run.
type RunRecord struct {
	ID         int64
	Goal       string
	Outcome    string // running, completed, aborted
	Iterations int
	StartedAt  time.Time
	FinishedAt time.Time
}

// TaskRecord is the persisted outcome of one task within a run.
type TaskRecord struct {
	RunID        int64
	TaskID       string
	Name         string
	Category     string
	Status       string
	Attempts     int
	Result       string
	FailReason   string
	SkipReason   string
	ErrorContext string
}

// Store persists run history and caches search results across runs.
type Store interface {
	BeginRun(ctx context.Context, goal string) (int64, error)
	FinishRun(ctx context.Context, runID int64, outcome string, iterations int) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	SaveTask(ctx context.Context, rec TaskRecord) error
	ListRunTasks(ctx context.Context, runID int64) ([]TaskRecord, error)

	CachedSearch(ctx context.Context, query string) (string, bool, error)
	SaveSearch(ctx context.Context, query, formatted string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Allow 2 connections: one for primary queries, one for subqueries
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
