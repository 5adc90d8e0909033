// Package engine implements the per-user blocker analysis orchestration.
//
// For one user it gathers the evidence window, invokes the classifier once per
// enabled blocker type, filters verdicts by confidence, assembles the
// analysis result, and persists it append-only. Classifier failures are soft
// and scoped to one blocker type; evidence fetch failures abort the run.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/classifier"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/evidence"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/store"
)

// Fixed texts for the zero-blocker case. Tests assert these literals.
const (
	HealthySummary        = "No recurring thinking patterns detected in this period. Your recent reflections look balanced."
	HealthyRecommendation = "Keep up your current approach; no pattern-specific changes are needed."
)

// Notices prepended to the recommendation list when severe blockers are present.
const (
	criticalNotice = "Address the critical patterns first; they are likely compounding everything else."
	highNotice     = "Prioritize working on the high-severity patterns identified below."
)

// DefaultFetchTimeout bounds each evidence repository call. A hung query must
// not stall an entire nightly batch.
const DefaultFetchTimeout = 30 * time.Second

// Classifier is the detection capability the engine drives, one call per
// blocker type.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*classifier.Response, error)
	ModelVersion() string
}

// Engine runs blocker analysis for individual users with one immutable
// configuration. Several engines with different configs may coexist.
type Engine struct {
	config       models.AnalysisConfig
	cls          Classifier
	repo         evidence.Repository
	store        store.Store
	cipher       store.Cipher
	fetchTimeout time.Duration
}

// Opts holds optional engine tuning.
type Opts struct {
	FetchTimeout time.Duration
}

// Option configures engine construction.
type Option func(*Opts)

// WithFetchTimeout overrides the per-call evidence fetch timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Opts) { o.FetchTimeout = d }
}

// New creates an analysis engine. The config is validated once here and never
// changes afterwards.
func New(cfg models.AnalysisConfig, cls Classifier, repo evidence.Repository, st store.Store, cipher store.Cipher, options ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	if cipher == nil {
		cipher = store.PlainCipher{}
	}
	opts := Opts{FetchTimeout: DefaultFetchTimeout}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &Engine{config: cfg, cls: cls, repo: repo, store: st, cipher: cipher, fetchTimeout: opts.FetchTimeout}, nil
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() models.AnalysisConfig {
	return e.config
}

// AnalyzeUser runs one full analysis for the user and returns the result.
// The result is returned even when persisting it fails; only an evidence
// fetch failure is fatal.
func (e *Engine) AnalyzeUser(ctx context.Context, userID string) (*models.AnalysisResult, error) {
	started := time.Now()
	cutoff := started.AddDate(0, 0, -e.config.AnalysisWindowDays)
	slog.Debug("Engine.AnalyzeUser: starting", "user_id", userID, "cutoff", cutoff)

	insights, err := e.fetchInsights(ctx, userID, cutoff)
	if err != nil {
		slog.Error("Engine.AnalyzeUser: insight fetch failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("%w: insights for %s: %v", models.ErrEvidenceFetch, userID, err)
	}
	conversations, err := e.fetchConversations(ctx, userID, cutoff)
	if err != nil {
		slog.Error("Engine.AnalyzeUser: conversation fetch failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("%w: conversations for %s: %v", models.ErrEvidenceFetch, userID, err)
	}

	now := time.Now()
	var blockers []models.Blocker
	for _, bt := range e.config.EnabledBlockers {
		resp, err := e.cls.Classify(ctx, classifier.Request{
			BlockerType:   bt,
			Insights:      insights,
			Conversations: conversations,
			Config:        e.config,
		})
		if err != nil {
			// Soft failure: one type's classifier error never aborts the rest.
			slog.Warn("Engine.AnalyzeUser: classifier failed for type", "error", err, "user_id", userID, "blocker_type", bt)
			continue
		}
		if !resp.Detected || resp.Confidence < e.config.ConfidenceThreshold {
			slog.Debug("Engine.AnalyzeUser: verdict discarded", "user_id", userID, "blocker_type", bt,
				"detected", resp.Detected, "confidence", resp.Confidence)
			continue
		}
		blockers = append(blockers, e.buildBlocker(userID, bt, resp, now))
	}

	result := &models.AnalysisResult{
		UserID:           userID,
		AnalysisDate:     now,
		BlockersDetected: blockers,
		AnalysisSummary:  buildSummary(blockers, e.config.EnabledBlockers),
		Recommendations:  buildRecommendations(blockers),
		Metadata: models.AnalysisMetadata{
			InsightsAnalyzed:      len(insights),
			ConversationsAnalyzed: len(conversations),
			ProcessingTimeMs:      time.Since(started).Milliseconds(),
			ModelVersion:          e.cls.ModelVersion(),
		},
	}

	// Persistence is non-fatal: the caller still gets the full result.
	if err := e.persistResult(ctx, result); err != nil {
		slog.Warn("Engine.AnalyzeUser: persistence failed", "error", err, "user_id", userID)
	}

	slog.Info("Engine.AnalyzeUser: completed", "user_id", userID,
		"blockers_detected", len(blockers), "insights", len(insights), "conversations", len(conversations))
	return result, nil
}

// fetchInsights and fetchConversations bound each repository call with the
// engine's fetch timeout; expiry surfaces as a context error the caller wraps
// into ErrEvidenceFetch.
func (e *Engine) fetchInsights(ctx context.Context, userID string, cutoff time.Time) ([]models.InsightRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	return e.repo.GetInsights(fetchCtx, userID, cutoff)
}

func (e *Engine) fetchConversations(ctx context.Context, userID string, cutoff time.Time) ([]models.ConversationRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	return e.repo.GetConversations(fetchCtx, userID, cutoff)
}

func (e *Engine) buildBlocker(userID string, bt models.BlockerType, resp *classifier.Response, now time.Time) models.Blocker {
	title := resp.Title
	if title == "" {
		title = string(bt)
	}
	description := resp.Description
	if description == "" {
		description = models.BlockerDescription(bt)
	}
	recommendations := resp.Recommendations
	if len(recommendations) == 0 {
		recommendations = []string{"Reflect on this pattern during your next reading."}
	}
	return models.Blocker{
		ID:              uuid.NewString(),
		Type:            bt,
		Title:           title,
		Description:     description,
		Severity:        resp.Severity,
		Confidence:      resp.Confidence,
		Patterns:        resp.Patterns,
		FirstDetected:   now,
		LastDetected:    now,
		Occurrences:     resp.Occurrences,
		UserID:          userID,
		BlockTypeIDs:    resp.BlockTypeIDs,
		InsightIDs:      resp.InsightIDs,
		ConversationIDs: resp.ConversationIDs,
		Recommendations: recommendations,
		Status:          models.StatusActive,
	}
}

func (e *Engine) persistResult(ctx context.Context, result *models.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", models.ErrPersistence, err)
	}
	sealed, err := e.cipher.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("%w: encrypt: %v", models.ErrPersistence, err)
	}
	rec := store.AnalysisRecord{
		ID:        uuid.NewString(),
		UserID:    result.UserID,
		Payload:   sealed,
		CreatedAt: result.AnalysisDate,
	}
	if err := e.store.InsertAnalysisResult(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	// Seed a status row per blocker so later status updates can find them.
	for _, b := range result.BlockersDetected {
		row := store.BlockerStatusRow{
			BlockerID:   b.ID,
			UserID:      b.UserID,
			BlockerType: b.Type,
			Status:      models.StatusActive,
			UpdatedAt:   result.AnalysisDate,
		}
		if err := e.store.SeedBlockerStatus(ctx, row); err != nil {
			slog.Warn("Engine.persistResult: status seed failed", "error", err, "blocker_id", b.ID)
		}
	}
	return nil
}

// GetAnalysisHistory returns up to limit of the user's most recent analysis
// results, newest first. Records that fail to decrypt are skipped with a log
// line; the remaining records are still returned.
func (e *Engine) GetAnalysisHistory(ctx context.Context, userID string, limit int) ([]models.AnalysisResult, error) {
	results, _, err := e.HistoryPage(ctx, userID, limit, 0)
	return results, err
}

// HistoryPage returns a page of the user's analysis history plus the total
// row count, for paginated listings.
func (e *Engine) HistoryPage(ctx context.Context, userID string, limit, offset int) ([]models.AnalysisResult, int, error) {
	records, err := e.store.ListAnalysisResults(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analysis results for %s: %w", userID, err)
	}
	total, err := e.store.CountAnalysisResults(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count analysis results for %s: %w", userID, err)
	}

	results := make([]models.AnalysisResult, 0, len(records))
	for _, rec := range records {
		payload, err := e.cipher.Decrypt(rec.Payload)
		if err != nil {
			slog.Warn("Engine.HistoryPage: record decryption failed, skipping",
				"error", fmt.Errorf("%w: %v", models.ErrDecryption, err), "user_id", userID, "record_id", rec.ID)
			continue
		}
		var result models.AnalysisResult
		if err := json.Unmarshal(payload, &result); err != nil {
			slog.Warn("Engine.HistoryPage: record decode failed, skipping",
				"error", err, "user_id", userID, "record_id", rec.ID)
			continue
		}
		results = append(results, result)
	}
	slog.Debug("Engine.HistoryPage: succeeded", "user_id", userID, "returned", len(results), "total", total)
	return results, total, nil
}

// UpdateBlockerStatus advances one blocker's lifecycle status in the side
// table. The persisted analysis payload that produced the blocker is never
// touched.
func (e *Engine) UpdateBlockerStatus(ctx context.Context, blockerID string, status models.BlockerStatus, notes string) error {
	if !models.IsValidBlockerStatus(status) {
		return models.ErrInvalidStatus
	}
	if err := e.store.UpdateBlockerStatus(ctx, blockerID, status, notes); err != nil {
		if errors.Is(err, models.ErrBlockerNotFound) || errors.Is(err, models.ErrStatusTransition) {
			return err
		}
		return fmt.Errorf("failed to update status for blocker %s: %w", blockerID, err)
	}
	slog.Info("Engine.UpdateBlockerStatus: updated", "blocker_id", blockerID, "status", status)
	return nil
}
