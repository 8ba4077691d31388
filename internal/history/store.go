// Package history records finished runs in SQLite so they can be listed and
// reported on later.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/pipeline/internal/orchestrator"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run is a stored run. Tasks is populated by GetRun only.
type Run struct {
	ID           string
	Pipeline     string
	Status       orchestrator.RunStatus
	QualityScore float64
	AbortReason  string
	WavesRun     int
	WavesPlanned int
	PeakParallel int
	StartedAt    time.Time
	Duration     time.Duration
	Tasks        []TaskRecord
}

// TaskRecord is one stored task outcome.
type TaskRecord struct {
	Name       string
	Status     orchestrator.Status
	SkipReason orchestrator.SkipReason
	Attempts   int
	Wave       int
	Critical   bool
	ExitCode   int
	Error      string
	StartedAt  time.Time // Zero for tasks that never started
	Duration   time.Duration
}

// Store defines the run history interface.
type Store interface {
	SaveRun(ctx context.Context, pipeline string, res *orchestrator.RunResult) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the history database at dbPath, creating
// parent directories as needed.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the DSN; it is set by PRAGMA in open.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates a private in-memory store for testing.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	// Each store gets its own named database so parallel tests stay isolated.
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

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
