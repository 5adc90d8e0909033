// Package evidence provides access to a user's interaction records.
//
// It exposes the repository contract the analysis engine and scheduler read
// evidence through, plus SQLite, PostgreSQL, and in-memory implementations.
package evidence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// Repository is the read-side contract for user interaction records.
type Repository interface {
	// GetInsights returns the user's insights created at or after since.
	GetInsights(ctx context.Context, userID string, since time.Time) ([]models.InsightRecord, error)
	// GetConversations returns the user's completed conversations created at
	// or after since.
	GetConversations(ctx context.Context, userID string, since time.Time) ([]models.ConversationRecord, error)
	// CountInsightsSince returns how many insights the user created at or
	// after since.
	CountInsightsSince(ctx context.Context, userID string, since time.Time) (int, error)
	// ActiveUserIDs returns the ids of users with at least minRecords
	// insights created at or after since.
	ActiveUserIDs(ctx context.Context, since time.Time, minRecords int) ([]string, error)
}

// InMemoryRepository is a Repository backed by in-memory slices, used by tests
// and the validation harness.
type InMemoryRepository struct {
	mu            sync.RWMutex
	insights      []models.InsightRecord
	conversations []models.ConversationRecord
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// AddInsight records an insight.
func (r *InMemoryRepository) AddInsight(ins models.InsightRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insights = append(r.insights, ins)
}

// AddConversation records a conversation.
func (r *InMemoryRepository) AddConversation(conv models.ConversationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = append(r.conversations, conv)
}

// GetInsights returns the user's insights created at or after since, oldest first.
func (r *InMemoryRepository) GetInsights(ctx context.Context, userID string, since time.Time) ([]models.InsightRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.InsightRecord
	for _, ins := range r.insights {
		if ins.UserID == userID && !ins.CreatedAt.Before(since) {
			out = append(out, ins)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetConversations returns the user's conversations created at or after since, oldest first.
func (r *InMemoryRepository) GetConversations(ctx context.Context, userID string, since time.Time) ([]models.ConversationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ConversationRecord
	for _, conv := range r.conversations {
		if conv.UserID == userID && !conv.CreatedAt.Before(since) {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountInsightsSince returns how many insights the user created at or after since.
func (r *InMemoryRepository) CountInsightsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	insights, err := r.GetInsights(ctx, userID, since)
	if err != nil {
		return 0, err
	}
	return len(insights), nil
}

// ActiveUserIDs returns users with at least minRecords insights at or after since.
func (r *InMemoryRepository) ActiveUserIDs(ctx context.Context, since time.Time, minRecords int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, ins := range r.insights {
		if !ins.CreatedAt.Before(since) {
			counts[ins.UserID]++
		}
	}
	var out []string
	for userID, n := range counts {
		if n >= minRecords {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out, nil
}
