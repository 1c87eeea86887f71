package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/pacrec/pacrec/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed run journal.
type Store struct {
	db   *sql.DB
	path string
}

// Config holds journal configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a journal store instance. Init must be called before use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	return &Store{path: cfg.Path}, nil
}

// Init opens the database in WAL mode and applies migrations.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping journal database: %w", err)
	}

	// Connection-level setting, the DSN parameter alone is not enough for
	// every pooled connection.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	if s.db == nil {
		return fmt.Errorf("journal not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RecordRun persists a completed run and its executed actions.
func (s *Store) RecordRun(ctx context.Context, req *engine.Request, outcome *engine.Outcome, startedAt time.Time) error {
	if s.db == nil {
		return fmt.Errorf("journal not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, requested, state, changed, failed, msg, handler, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		renderRequest(req),
		string(req.State),
		outcome.Changed,
		outcome.Failed,
		outcome.Msg,
		outcome.Handler,
		startedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for _, result := range outcome.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO actions (id, run_id, backend, operation, targets, changed, message, duration_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ActionID,
			outcome.RunID,
			result.Backend.String(),
			string(result.Operation),
			strings.Join(result.Targets, " "),
			result.Changed,
			result.Message,
			result.Duration.Nanoseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to record action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}
	return nil
}

// GetRun retrieves one run with its actions.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, []Action, error) {
	if s.db == nil {
		return nil, nil, fmt.Errorf("journal not initialized")
	}

	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requested, state, changed, failed, msg, handler, started_at, completed_at
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Requested, &run.State, &run.Changed, &run.Failed,
		&run.Msg, &run.Handler, &run.StartedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, backend, operation, targets, changed, message, duration_ns
		FROM actions WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		var durationNs int64
		if err := rows.Scan(&a.ID, &a.RunID, &a.Backend, &a.Operation,
			&a.Targets, &a.Changed, &a.Message, &durationNs); err != nil {
			return nil, nil, fmt.Errorf("failed to scan action: %w", err)
		}
		a.Duration = time.Duration(durationNs)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate actions: %w", err)
	}

	return &run, actions, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("journal not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requested, state, changed, failed, msg, handler, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Requested, &r.State, &r.Changed, &r.Failed,
			&r.Msg, &r.Handler, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// renderRequest renders a request summary for the journal record.
func renderRequest(req *engine.Request) string {
	switch {
	case req.Upgrade:
		return "upgrade"
	case len(req.Names) > 0:
		return strings.Join(req.Names, " ")
	case req.UpdateCache:
		return "update_cache"
	default:
		return ""
	}
}
