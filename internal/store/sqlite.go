package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/docsched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Job CRUD ---

func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "id", j.ID)

	exclusive := 0
	if j.Exclusive {
		exclusive = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, exclusive, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Type, exclusive, string(j.State),
		j.CreatedAt.Format(time.RFC3339Nano), j.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, type, exclusive, state, created_at, updated_at
		 FROM jobs WHERE id = ?`, id))
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*model.Job, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, exclusive, state, created_at, updated_at
		 FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// ListJobsByState returns jobs in the given state, oldest first. The
// ordering is what makes the queue pull FIFO across restarts.
func (s *SQLiteStore) ListJobsByState(ctx context.Context, state model.JobState) ([]*model.Job, error) {
	s.logger.Debug("sql", "op", "list_by_state", "table", "jobs", "state", state)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, exclusive, state, created_at, updated_at
		 FROM jobs WHERE state = ? ORDER BY created_at, id`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

func (s *SQLiteStore) UpdateJobState(ctx context.Context, id string, state model.JobState) error {
	s.logger.Debug("sql", "op", "update_state", "table", "jobs", "id", id, "state", state)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state=?, updated_at=? WHERE id=?`,
		string(state), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) ResetQueue(ctx context.Context) (int64, error) {
	s.logger.Debug("sql", "op", "reset_queue", "table", "jobs")

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE state IN (?, ?)`,
		string(model.JobStatePending), string(model.JobStateAssigned))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanJob(row scanner) (*model.Job, error) {
	var j model.Job
	var exclusive int
	var state, createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &exclusive, &state, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.Exclusive = exclusive != 0
	j.State = model.JobState(state)
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &j, nil
}

func (s *SQLiteStore) scanJobs(rows *sql.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		var j model.Job
		var exclusive int
		var state, createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.Type, &exclusive, &state, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		j.Exclusive = exclusive != 0
		j.State = model.JobState(state)
		j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}
