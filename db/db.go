package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nijaru/yt-tldr/models"
	"github.com/sirupsen/logrus"
)

const defaultRecentLimit = 50

// RunStore persists the outcome metadata of pipeline executions.
type RunStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

func InitializeDB(dbPath string, logger *logrus.Logger) (*RunStore, error) {
	logger.WithField("path", dbPath).Info("Initializing run log")

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating directory for database: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// sqlite serializes writers; a single connection also keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(30 * time.Minute)

	_, err = conn.Exec(`CREATE TABLE IF NOT EXISTS runs (
                    id INTEGER PRIMARY KEY AUTOINCREMENT,
                    request_id TEXT NOT NULL DEFAULT '',
                    video_id TEXT NOT NULL DEFAULT '',
                    model TEXT NOT NULL DEFAULT '',
                    mode TEXT NOT NULL,
                    outcome TEXT NOT NULL,
                    duration_ms INTEGER NOT NULL,
                    created_at TIMESTAMP NOT NULL
)`)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error creating table: %w", err)
	}

	return &RunStore{db: conn, logger: logger}, nil
}

func (s *RunStore) RecordRun(ctx context.Context, run models.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO runs (request_id, video_id, model, mode, outcome, duration_ms, created_at)
                    VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, run.RequestID, run.VideoID, run.Model, run.Mode, run.Outcome,
		run.DurationMS, run.CreatedAt.UTC())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error executing statement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, request_id, video_id, model, mode, outcome, duration_ms, created_at
                    FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	runs := make([]models.Run, 0, limit)
	for rows.Next() {
		var run models.Run
		if err := rows.Scan(&run.ID, &run.RequestID, &run.VideoID, &run.Model, &run.Mode,
			&run.Outcome, &run.DurationMS, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

func (s *RunStore) Close() error {
	return s.db.Close()
}
