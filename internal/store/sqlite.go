// Package store provides storage backends for analysis results.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given options. The DSN is
// a file path to the database; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertAnalysisResult(ctx context.Context, rec AnalysisRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (id, user_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Payload, rec.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore InsertAnalysisResult failed", "error", err, "user_id", rec.UserID)
		return fmt.Errorf("failed to insert analysis result for %s: %w", rec.UserID, err)
	}
	slog.Debug("SQLiteStore InsertAnalysisResult succeeded", "user_id", rec.UserID, "id", rec.ID)
	return nil
}

func (s *SQLiteStore) ListAnalysisResults(ctx context.Context, userID string, limit, offset int) ([]AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, payload, created_at FROM analysis_results
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		slog.Error("SQLiteStore ListAnalysisResults query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query analysis results for %s: %w", userID, err)
	}
	defer rows.Close()

	var records []AnalysisRecord
	for rows.Next() {
		var rec AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Payload, &rec.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListAnalysisResults scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan analysis result row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis result rows: %w", err)
	}
	slog.Debug("SQLiteStore ListAnalysisResults succeeded", "user_id", userID, "count", len(records))
	return records, nil
}

func (s *SQLiteStore) CountAnalysisResults(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_results WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore CountAnalysisResults failed", "error", err, "user_id", userID)
		return 0, fmt.Errorf("failed to count analysis results for %s: %w", userID, err)
	}
	return count, nil
}

func (s *SQLiteStore) RecentlyAnalyzedUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM analysis_results WHERE created_at >= ? ORDER BY user_id`, since)
	if err != nil {
		slog.Error("SQLiteStore RecentlyAnalyzedUserIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query recently analyzed users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recently analyzed rows: %w", err)
	}
	return userIDs, nil
}

func (s *SQLiteStore) CountUsersAnalyzedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM analysis_results WHERE created_at >= ?`, since).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore CountUsersAnalyzedSince failed", "error", err)
		return 0, fmt.Errorf("failed to count analyzed users: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) LastAnalysisTime(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM analysis_results`).Scan(&last)
	if err != nil {
		slog.Error("SQLiteStore LastAnalysisTime failed", "error", err)
		return nil, fmt.Errorf("failed to query last analysis time: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *SQLiteStore) LastAnalysisTimeForUser(ctx context.Context, userID string) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM analysis_results WHERE user_id = ?`, userID).Scan(&last)
	if err != nil {
		slog.Error("SQLiteStore LastAnalysisTimeForUser failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query last analysis time for %s: %w", userID, err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *SQLiteStore) SeedBlockerStatus(ctx context.Context, row BlockerStatusRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocker_status (blocker_id, user_id, blocker_type, status, notes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.BlockerID, row.UserID, row.BlockerType, row.Status, nilIfEmpty(row.Notes), row.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SeedBlockerStatus failed", "error", err, "blocker_id", row.BlockerID)
		return fmt.Errorf("failed to seed blocker status for %s: %w", row.BlockerID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateBlockerStatus(ctx context.Context, blockerID string, status models.BlockerStatus, notes string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.BlockerStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM blocker_status WHERE blocker_id = ?`, blockerID).Scan(&current)
	if err == sql.ErrNoRows {
		slog.Warn("SQLiteStore UpdateBlockerStatus: unknown blocker id", "blocker_id", blockerID)
		return models.ErrBlockerNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore UpdateBlockerStatus lookup failed", "error", err, "blocker_id", blockerID)
		return fmt.Errorf("failed to look up blocker status for %s: %w", blockerID, err)
	}
	if !models.CanTransitionStatus(current, status) {
		return models.ErrStatusTransition
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE blocker_status SET status = ?, notes = ?, updated_at = ? WHERE blocker_id = ?`,
		status, nilIfEmpty(notes), time.Now(), blockerID)
	if err != nil {
		slog.Error("SQLiteStore UpdateBlockerStatus failed", "error", err, "blocker_id", blockerID)
		return fmt.Errorf("failed to update blocker status for %s: %w", blockerID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	slog.Debug("SQLiteStore UpdateBlockerStatus succeeded", "blocker_id", blockerID, "status", status)
	return nil
}

func (s *SQLiteStore) GetBlockerStatus(ctx context.Context, blockerID string) (*BlockerStatusRow, error) {
	var row BlockerStatusRow
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT blocker_id, user_id, blocker_type, status, notes, updated_at
		 FROM blocker_status WHERE blocker_id = ?`, blockerID).
		Scan(&row.BlockerID, &row.UserID, &row.BlockerType, &row.Status, &notes, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrBlockerNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetBlockerStatus failed", "error", err, "blocker_id", blockerID)
		return nil, fmt.Errorf("failed to get blocker status for %s: %w", blockerID, err)
	}
	row.Notes = notes.String
	return &row, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
