// Package evidence provides access to a user's interaction records.
//
// This file implements the SQLite-backed repository over the application's
// insights and conversations tables.
package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// SQLiteRepository reads evidence records from a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates an evidence repository over an existing SQLite
// database handle. The handle is shared with the owning application; this
// repository only reads from it.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// OpenSQLiteRepository opens a SQLite database at the given DSN and wraps it
// in a repository.
func OpenSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	if dsn == "" {
		slog.Error("SQLiteRepository DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite evidence connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite evidence ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite evidence repository opened")
	return &SQLiteRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetInsights(ctx context.Context, userID string, since time.Time) ([]models.InsightRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(card_id, ''), text, created_at
		 FROM insights WHERE user_id = ? AND created_at >= ? ORDER BY created_at`,
		userID, since)
	if err != nil {
		slog.Error("SQLiteRepository GetInsights query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query insights for %s: %w", userID, err)
	}
	defer rows.Close()

	var insights []models.InsightRecord
	for rows.Next() {
		var ins models.InsightRecord
		if err := rows.Scan(&ins.ID, &ins.UserID, &ins.CardID, &ins.Text, &ins.CreatedAt); err != nil {
			slog.Error("SQLiteRepository GetInsights scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan insight row: %w", err)
		}
		insights = append(insights, ins)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteRepository GetInsights rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate insight rows: %w", err)
	}
	slog.Debug("SQLiteRepository GetInsights succeeded", "user_id", userID, "count", len(insights))
	return insights, nil
}

func (r *SQLiteRepository) GetConversations(ctx context.Context, userID string, since time.Time) ([]models.ConversationRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(summary, ''), message_count, created_at
		 FROM conversations WHERE user_id = ? AND created_at >= ? ORDER BY created_at`,
		userID, since)
	if err != nil {
		slog.Error("SQLiteRepository GetConversations query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query conversations for %s: %w", userID, err)
	}
	defer rows.Close()

	var conversations []models.ConversationRecord
	for rows.Next() {
		var conv models.ConversationRecord
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Summary, &conv.MessageCount, &conv.CreatedAt); err != nil {
			slog.Error("SQLiteRepository GetConversations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteRepository GetConversations rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	slog.Debug("SQLiteRepository GetConversations succeeded", "user_id", userID, "count", len(conversations))
	return conversations, nil
}

func (r *SQLiteRepository) CountInsightsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM insights WHERE user_id = ? AND created_at >= ?`,
		userID, since).Scan(&count)
	if err != nil {
		slog.Error("SQLiteRepository CountInsightsSince failed", "error", err, "user_id", userID)
		return 0, fmt.Errorf("failed to count insights for %s: %w", userID, err)
	}
	return count, nil
}

func (r *SQLiteRepository) ActiveUserIDs(ctx context.Context, since time.Time, minRecords int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM insights WHERE created_at >= ?
		 GROUP BY user_id HAVING COUNT(*) >= ? ORDER BY user_id`,
		since, minRecords)
	if err != nil {
		slog.Error("SQLiteRepository ActiveUserIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("SQLiteRepository ActiveUserIDs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active user rows: %w", err)
	}
	slog.Debug("SQLiteRepository ActiveUserIDs succeeded", "count", len(userIDs))
	return userIDs, nil
}
