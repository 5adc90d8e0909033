// Package store provides storage backends for analysis results.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) InsertAnalysisResult(ctx context.Context, rec AnalysisRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (id, user_id, payload, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.UserID, rec.Payload, rec.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore InsertAnalysisResult failed", "error", err, "user_id", rec.UserID)
		return fmt.Errorf("failed to insert analysis result for %s: %w", rec.UserID, err)
	}
	slog.Debug("PostgresStore InsertAnalysisResult succeeded", "user_id", rec.UserID, "id", rec.ID)
	return nil
}

func (s *PostgresStore) ListAnalysisResults(ctx context.Context, userID string, limit, offset int) ([]AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, payload, created_at FROM analysis_results
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		slog.Error("PostgresStore ListAnalysisResults query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query analysis results for %s: %w", userID, err)
	}
	defer rows.Close()

	var records []AnalysisRecord
	for rows.Next() {
		var rec AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Payload, &rec.CreatedAt); err != nil {
			slog.Error("PostgresStore ListAnalysisResults scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan analysis result row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis result rows: %w", err)
	}
	slog.Debug("PostgresStore ListAnalysisResults succeeded", "user_id", userID, "count", len(records))
	return records, nil
}

func (s *PostgresStore) CountAnalysisResults(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_results WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore CountAnalysisResults failed", "error", err, "user_id", userID)
		return 0, fmt.Errorf("failed to count analysis results for %s: %w", userID, err)
	}
	return count, nil
}

func (s *PostgresStore) RecentlyAnalyzedUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM analysis_results WHERE created_at >= $1 ORDER BY user_id`, since)
	if err != nil {
		slog.Error("PostgresStore RecentlyAnalyzedUserIDs query failed", "error", err)
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

func (s *PostgresStore) CountUsersAnalyzedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM analysis_results WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore CountUsersAnalyzedSince failed", "error", err)
		return 0, fmt.Errorf("failed to count analyzed users: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) LastAnalysisTime(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM analysis_results`).Scan(&last)
	if err != nil {
		slog.Error("PostgresStore LastAnalysisTime failed", "error", err)
		return nil, fmt.Errorf("failed to query last analysis time: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *PostgresStore) LastAnalysisTimeForUser(ctx context.Context, userID string) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM analysis_results WHERE user_id = $1`, userID).Scan(&last)
	if err != nil {
		slog.Error("PostgresStore LastAnalysisTimeForUser failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query last analysis time for %s: %w", userID, err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *PostgresStore) SeedBlockerStatus(ctx context.Context, row BlockerStatusRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocker_status (blocker_id, user_id, blocker_type, status, notes, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (blocker_id) DO NOTHING`,
		row.BlockerID, row.UserID, row.BlockerType, row.Status, nilIfEmpty(row.Notes), row.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SeedBlockerStatus failed", "error", err, "blocker_id", row.BlockerID)
		return fmt.Errorf("failed to seed blocker status for %s: %w", row.BlockerID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateBlockerStatus(ctx context.Context, blockerID string, status models.BlockerStatus, notes string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.BlockerStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM blocker_status WHERE blocker_id = $1 FOR UPDATE`, blockerID).Scan(&current)
	if err == sql.ErrNoRows {
		slog.Warn("PostgresStore UpdateBlockerStatus: unknown blocker id", "blocker_id", blockerID)
		return models.ErrBlockerNotFound
	}
	if err != nil {
		slog.Error("PostgresStore UpdateBlockerStatus lookup failed", "error", err, "blocker_id", blockerID)
		return fmt.Errorf("failed to look up blocker status for %s: %w", blockerID, err)
	}
	if !models.CanTransitionStatus(current, status) {
		return models.ErrStatusTransition
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE blocker_status SET status = $1, notes = $2, updated_at = $3 WHERE blocker_id = $4`,
		status, nilIfEmpty(notes), time.Now(), blockerID)
	if err != nil {
		slog.Error("PostgresStore UpdateBlockerStatus failed", "error", err, "blocker_id", blockerID)
		return fmt.Errorf("failed to update blocker status for %s: %w", blockerID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	slog.Debug("PostgresStore UpdateBlockerStatus succeeded", "blocker_id", blockerID, "status", status)
	return nil
}

func (s *PostgresStore) GetBlockerStatus(ctx context.Context, blockerID string) (*BlockerStatusRow, error) {
	var row BlockerStatusRow
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT blocker_id, user_id, blocker_type, status, notes, updated_at
		 FROM blocker_status WHERE blocker_id = $1`, blockerID).
		Scan(&row.BlockerID, &row.UserID, &row.BlockerType, &row.Status, &notes, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrBlockerNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetBlockerStatus failed", "error", err, "blocker_id", blockerID)
		return nil, fmt.Errorf("failed to get blocker status for %s: %w", blockerID, err)
	}
	row.Notes = notes.String
	return &row, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
