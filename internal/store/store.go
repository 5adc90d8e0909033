// Package store provides storage backends for analysis results.
//
// Analysis results are persisted append-only as encrypted payload rows; the
// mutable lifecycle status of individual blockers lives in a separate side
// table and never touches the payload columns. SQLite, PostgreSQL, and
// in-memory implementations are provided.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// AnalysisRecord is one persisted analysis result row. The payload is an
// encrypted JSON document; the store never inspects it.
type AnalysisRecord struct {
	ID        string
	UserID    string
	Payload   []byte
	CreatedAt time.Time
}

// BlockerStatusRow tracks the lifecycle status of one detected blocker.
type BlockerStatusRow struct {
	BlockerID   string
	UserID      string
	BlockerType models.BlockerType
	Status      models.BlockerStatus
	Notes       string
	UpdatedAt   time.Time
}

// Store is the persistence contract for analysis results and blocker status.
type Store interface {
	// InsertAnalysisResult appends one result row. Rows are never updated.
	InsertAnalysisResult(ctx context.Context, rec AnalysisRecord) error
	// ListAnalysisResults returns up to limit rows for the user, newest
	// first, skipping offset rows.
	ListAnalysisResults(ctx context.Context, userID string, limit, offset int) ([]AnalysisRecord, error)
	// CountAnalysisResults returns the total number of rows for the user.
	CountAnalysisResults(ctx context.Context, userID string) (int, error)
	// RecentlyAnalyzedUserIDs returns the distinct users with a result row
	// created at or after since.
	RecentlyAnalyzedUserIDs(ctx context.Context, since time.Time) ([]string, error)
	// CountUsersAnalyzedSince returns how many distinct users have a result
	// row created at or after since.
	CountUsersAnalyzedSince(ctx context.Context, since time.Time) (int, error)
	// LastAnalysisTime returns the creation time of the newest result row,
	// or nil when no row exists.
	LastAnalysisTime(ctx context.Context) (*time.Time, error)
	// LastAnalysisTimeForUser returns the creation time of the user's newest
	// result row, or nil when the user has none.
	LastAnalysisTimeForUser(ctx context.Context, userID string) (*time.Time, error)

	// SeedBlockerStatus inserts a status row for a newly detected blocker.
	// Existing rows are left untouched.
	SeedBlockerStatus(ctx context.Context, row BlockerStatusRow) error
	// UpdateBlockerStatus advances a blocker's status. Returns
	// models.ErrBlockerNotFound when the id is unknown and
	// models.ErrStatusTransition when the move would go backwards.
	UpdateBlockerStatus(ctx context.Context, blockerID string, status models.BlockerStatus, notes string) error
	// GetBlockerStatus returns the status row for a blocker id, or
	// models.ErrBlockerNotFound.
	GetBlockerStatus(ctx context.Context, blockerID string) (*BlockerStatusRow, error)

	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a Store backed by in-memory slices and maps, used by tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	results  []AnalysisRecord
	statuses map[string]BlockerStatusRow
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{statuses: make(map[string]BlockerStatusRow)}
}

func (s *InMemoryStore) InsertAnalysisResult(ctx context.Context, rec AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, rec)
	return nil
}

func (s *InMemoryStore) ListAnalysisResults(ctx context.Context, userID string, limit, offset int) ([]AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []AnalysisRecord
	for _, rec := range s.results {
		if rec.UserID == userID {
			rows = append(rows, rec)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *InMemoryStore) CountAnalysisResults(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.results {
		if rec.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) RecentlyAnalyzedUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, rec := range s.results {
		if !rec.CreatedAt.Before(since) {
			seen[rec.UserID] = true
		}
	}
	var out []string
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) CountUsersAnalyzedSince(ctx context.Context, since time.Time) (int, error) {
	ids, err := s.RecentlyAnalyzedUserIDs(ctx, since)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *InMemoryStore) LastAnalysisTime(ctx context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, rec := range s.results {
		if last == nil || rec.CreatedAt.After(*last) {
			t := rec.CreatedAt
			last = &t
		}
	}
	return last, nil
}

func (s *InMemoryStore) LastAnalysisTimeForUser(ctx context.Context, userID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, rec := range s.results {
		if rec.UserID != userID {
			continue
		}
		if last == nil || rec.CreatedAt.After(*last) {
			t := rec.CreatedAt
			last = &t
		}
	}
	return last, nil
}

func (s *InMemoryStore) SeedBlockerStatus(ctx context.Context, row BlockerStatusRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.statuses[row.BlockerID]; exists {
		return nil
	}
	s.statuses[row.BlockerID] = row
	return nil
}

func (s *InMemoryStore) UpdateBlockerStatus(ctx context.Context, blockerID string, status models.BlockerStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.statuses[blockerID]
	if !ok {
		return models.ErrBlockerNotFound
	}
	if !models.CanTransitionStatus(row.Status, status) {
		return models.ErrStatusTransition
	}
	row.Status = status
	row.Notes = notes
	row.UpdatedAt = time.Now()
	s.statuses[blockerID] = row
	return nil
}

func (s *InMemoryStore) GetBlockerStatus(ctx context.Context, blockerID string) (*BlockerStatusRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.statuses[blockerID]
	if !ok {
		return nil, models.ErrBlockerNotFound
	}
	return &row, nil
}

func (s *InMemoryStore) Close() error { return nil }
