// Package evidence provides access to a user's interaction records.
//
// This file implements the PostgreSQL-backed repository.
package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// PostgresRepository reads evidence records from a PostgreSQL database.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates an evidence repository over an existing
// PostgreSQL database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgresRepository opens a PostgreSQL connection with the given DSN and
// wraps it in a repository.
func OpenPostgresRepository(dsn string) (*PostgresRepository, error) {
	if dsn == "" {
		slog.Error("PostgresRepository DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres evidence connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres evidence ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres evidence repository opened")
	return &PostgresRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) GetInsights(ctx context.Context, userID string, since time.Time) ([]models.InsightRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(card_id, ''), text, created_at
		 FROM insights WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at`,
		userID, since)
	if err != nil {
		slog.Error("PostgresRepository GetInsights query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query insights for %s: %w", userID, err)
	}
	defer rows.Close()

	var insights []models.InsightRecord
	for rows.Next() {
		var ins models.InsightRecord
		if err := rows.Scan(&ins.ID, &ins.UserID, &ins.CardID, &ins.Text, &ins.CreatedAt); err != nil {
			slog.Error("PostgresRepository GetInsights scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan insight row: %w", err)
		}
		insights = append(insights, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate insight rows: %w", err)
	}
	slog.Debug("PostgresRepository GetInsights succeeded", "user_id", userID, "count", len(insights))
	return insights, nil
}

func (r *PostgresRepository) GetConversations(ctx context.Context, userID string, since time.Time) ([]models.ConversationRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(summary, ''), message_count, created_at
		 FROM conversations WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at`,
		userID, since)
	if err != nil {
		slog.Error("PostgresRepository GetConversations query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query conversations for %s: %w", userID, err)
	}
	defer rows.Close()

	var conversations []models.ConversationRecord
	for rows.Next() {
		var conv models.ConversationRecord
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Summary, &conv.MessageCount, &conv.CreatedAt); err != nil {
			slog.Error("PostgresRepository GetConversations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	slog.Debug("PostgresRepository GetConversations succeeded", "user_id", userID, "count", len(conversations))
	return conversations, nil
}

func (r *PostgresRepository) CountInsightsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM insights WHERE user_id = $1 AND created_at >= $2`,
		userID, since).Scan(&count)
	if err != nil {
		slog.Error("PostgresRepository CountInsightsSince failed", "error", err, "user_id", userID)
		return 0, fmt.Errorf("failed to count insights for %s: %w", userID, err)
	}
	return count, nil
}

func (r *PostgresRepository) ActiveUserIDs(ctx context.Context, since time.Time, minRecords int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM insights WHERE created_at >= $1
		 GROUP BY user_id HAVING COUNT(*) >= $2 ORDER BY user_id`,
		since, minRecords)
	if err != nil {
		slog.Error("PostgresRepository ActiveUserIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query active users: %w", err)
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
		return nil, fmt.Errorf("failed to iterate active user rows: %w", err)
	}
	slog.Debug("PostgresRepository ActiveUserIDs succeeded", "count", len(userIDs))
	return userIDs, nil
}
