// Package scheduler decides which users get analyzed and when.
//
// It enforces the re-analysis cooldown, runs batched analysis with a fixed
// inter-user delay as the rate-limit policy, drives the nightly job under a
// single-flight guard, and answers status queries. All batch work is
// sequential on purpose: it bounds concurrent load on the external classifier
// and keeps logging order deterministic.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/evidence"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/lockfile"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/store"
)

// nightlyJobName keys both the in-process single-flight group and the
// cross-process advisory lock.
const nightlyJobName = "nightly-analysis"

// MilestoneKind identifies which application event reached the scheduler.
type MilestoneKind string

const (
	MilestoneInsightCreated        MilestoneKind = "insight_created"
	MilestoneConversationCompleted MilestoneKind = "conversation_completed"
	MilestoneProfileUpdated        MilestoneKind = "profile_updated"
)

// Analyzer is the single-user analysis capability the scheduler drives.
type Analyzer interface {
	AnalyzeUser(ctx context.Context, userID string) (*models.AnalysisResult, error)
}

// Config holds the scheduler's tunable policy knobs.
type Config struct {
	// CooldownDays is the minimum interval since a user's last analysis
	// before automatic re-analysis is allowed.
	CooldownDays int
	// MinWeeklyRecords is the insight count a user needs in the trailing
	// seven days to qualify for nightly analysis.
	MinWeeklyRecords int
	// MilestoneWindowDays and MinMilestoneRecords form the activity gate for
	// milestone-triggered analysis.
	MilestoneWindowDays int
	MinMilestoneRecords int
	// InsightCadence triggers insight-created milestones on every Nth insight.
	InsightCadence int
	// BatchSize is how many users one nightly batch holds.
	BatchSize int
	// UserDelay is slept between users within a batch; BatchDelay between
	// batches.
	UserDelay  time.Duration
	BatchDelay time.Duration
}

// DefaultConfig returns the production scheduling policy.
func DefaultConfig() Config {
	return Config{
		CooldownDays:        7,
		MinWeeklyRecords:    3,
		MilestoneWindowDays: 14,
		MinMilestoneRecords: 3,
		InsightCadence:      5,
		BatchSize:           10,
		UserDelay:           3 * time.Second,
		BatchDelay:          10 * time.Second,
	}
}

// BatchResult tallies one batch run.
type BatchResult struct {
	Successful int      `json:"successful"`
	Failed     []string `json:"failed"`
}

// Status is the read-only answer to an operator status query.
type Status struct {
	UsersAnalyzedToday    int        `json:"users_analyzed_today"`
	UsersAnalyzedThisWeek int        `json:"users_analyzed_this_week"`
	PendingAnalysis       int        `json:"pending_analysis"`
	LastRunTime           *time.Time `json:"last_run_time,omitempty"`
}

// Scheduler coordinates analysis runs against one engine instance.
type Scheduler struct {
	engine Analyzer
	repo   evidence.Repository
	store  store.Store
	cfg    Config

	// group serializes nightly runs within the process; the flock in lockDir
	// (optional) does the same across processes.
	group   singleflight.Group
	lockDir string
}

// New creates a scheduler. lockDir may be empty to disable the cross-process
// nightly job lock (tests do this).
func New(engine Analyzer, repo evidence.Repository, st store.Store, cfg Config, lockDir string) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Scheduler{engine: engine, repo: repo, store: st, cfg: cfg, lockDir: lockDir}
}

// UsersForAnalysis returns the users eligible for a nightly run: enough
// recent activity and no analysis within the cooldown window. Order is not
// significant.
func (s *Scheduler) UsersForAnalysis(ctx context.Context) ([]string, error) {
	now := time.Now()
	active, err := s.repo.ActiveUserIDs(ctx, now.AddDate(0, 0, -7), s.cfg.MinWeeklyRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}

	recent, err := s.store.RecentlyAnalyzedUserIDs(ctx, now.AddDate(0, 0, -s.cfg.CooldownDays))
	if err != nil {
		return nil, fmt.Errorf("failed to query recently analyzed users: %w", err)
	}
	recentSet := make(map[string]bool, len(recent))
	for _, id := range recent {
		recentSet[id] = true
	}

	var eligible []string
	for _, id := range active {
		if !recentSet[id] {
			eligible = append(eligible, id)
		}
	}
	slog.Debug("Scheduler.UsersForAnalysis: computed",
		"active", len(active), "recently_analyzed", len(recent), "eligible", len(eligible))
	return eligible, nil
}

// RunBatchAnalysis analyzes the given users one at a time, sleeping the
// configured delay between users. One user's failure never aborts the batch,
// and the method itself never fails.
func (s *Scheduler) RunBatchAnalysis(ctx context.Context, userIDs []string) BatchResult {
	var result BatchResult
	for i, userID := range userIDs {
		if ctx.Err() != nil {
			slog.Info("Scheduler.RunBatchAnalysis: canceled, marking remaining users failed", "remaining", len(userIDs)-i)
			result.Failed = append(result.Failed, userIDs[i:]...)
			return result
		}
		if _, err := s.engine.AnalyzeUser(ctx, userID); err != nil {
			slog.Warn("Scheduler.RunBatchAnalysis: user analysis failed", "error", err, "user_id", userID)
			result.Failed = append(result.Failed, userID)
		} else {
			result.Successful++
		}
		if i < len(userIDs)-1 {
			sleepCtx(ctx, s.cfg.UserDelay)
		}
	}
	slog.Debug("Scheduler.RunBatchAnalysis: batch done", "successful", result.Successful, "failed", len(result.Failed))
	return result
}

// RunNightlyAnalysis runs the full nightly job: compute eligible users, split
// them into batches, run each batch with a pause in between, and log totals.
// It is single-flight per process and (when a lock directory is configured)
// per host, and it never propagates an error or panic to its caller.
func (s *Scheduler) RunNightlyAnalysis(ctx context.Context) {
	s.group.Do(nightlyJobName, func() (interface{}, error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Scheduler.RunNightlyAnalysis: recovered from panic", "panic", r)
			}
		}()
		s.runNightly(ctx)
		return nil, nil
	})
}

func (s *Scheduler) runNightly(ctx context.Context) {
	if s.lockDir != "" {
		lock, err := lockfile.AcquireJobLock(s.lockDir, nightlyJobName)
		if err != nil {
			slog.Warn("Scheduler.runNightly: job lock held elsewhere, skipping run", "error", err)
			return
		}
		defer lock.Release()
	}

	eligible, err := s.UsersForAnalysis(ctx)
	if err != nil {
		slog.Error("Scheduler.runNightly: eligibility query failed", "error", err)
		return
	}
	if len(eligible) == 0 {
		slog.Info("Scheduler.runNightly: no eligible users, nothing to do")
		return
	}
	slog.Info("Scheduler.runNightly: starting", "eligible_users", len(eligible), "batch_size", s.cfg.BatchSize)

	var totals BatchResult
	for start := 0; start < len(eligible); start += s.cfg.BatchSize {
		if ctx.Err() != nil {
			slog.Info("Scheduler.runNightly: canceled before next batch", "processed", start)
			break
		}
		end := start + s.cfg.BatchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := s.RunBatchAnalysis(ctx, eligible[start:end])
		totals.Successful += batch.Successful
		totals.Failed = append(totals.Failed, batch.Failed...)

		if end < len(eligible) {
			sleepCtx(ctx, s.cfg.BatchDelay)
		}
	}

	slog.Info("Scheduler.runNightly: finished",
		"successful", totals.Successful, "failed", len(totals.Failed), "failed_users", totals.Failed)
}

// OnUserMilestone may trigger a single-user analysis in response to an
// application event, subject to the cooldown and activity gates. Failures are
// logged, never surfaced.
func (s *Scheduler) OnUserMilestone(ctx context.Context, userID string, kind MilestoneKind) {
	now := time.Now()

	// Cooldown applies regardless of milestone kind.
	last, err := s.store.LastAnalysisTimeForUser(ctx, userID)
	if err != nil {
		slog.Warn("Scheduler.OnUserMilestone: cooldown lookup failed", "error", err, "user_id", userID)
		return
	}
	if last != nil && now.Sub(*last) < time.Duration(s.cfg.CooldownDays)*24*time.Hour {
		slog.Debug("Scheduler.OnUserMilestone: user in cooldown", "user_id", userID, "last_analysis", *last)
		return
	}

	count, err := s.repo.CountInsightsSince(ctx, userID, now.AddDate(0, 0, -s.cfg.MilestoneWindowDays))
	if err != nil {
		slog.Warn("Scheduler.OnUserMilestone: activity lookup failed", "error", err, "user_id", userID)
		return
	}
	if count < s.cfg.MinMilestoneRecords {
		slog.Debug("Scheduler.OnUserMilestone: below activity minimum", "user_id", userID, "count", count)
		return
	}

	if !s.milestoneDue(kind, count) {
		slog.Debug("Scheduler.OnUserMilestone: cadence not reached", "user_id", userID, "kind", kind, "count", count)
		return
	}

	slog.Info("Scheduler.OnUserMilestone: triggering analysis", "user_id", userID, "kind", kind)
	if _, err := s.engine.AnalyzeUser(ctx, userID); err != nil {
		slog.Warn("Scheduler.OnUserMilestone: analysis failed", "error", err, "user_id", userID)
	}
}

// milestoneDue applies the per-kind cadence rule. Deterministic given the
// same inputs; the activity minimum has already been checked.
func (s *Scheduler) milestoneDue(kind MilestoneKind, insightCount int) bool {
	switch kind {
	case MilestoneInsightCreated:
		return s.cfg.InsightCadence > 0 && insightCount%s.cfg.InsightCadence == 0
	case MilestoneConversationCompleted, MilestoneProfileUpdated:
		return true
	default:
		slog.Warn("Scheduler.milestoneDue: unknown milestone kind", "kind", kind)
		return false
	}
}

// AnalyzeUsersNow bypasses all eligibility and cooldown checks, but still
// goes through the batch runner for rate limiting.
func (s *Scheduler) AnalyzeUsersNow(ctx context.Context, userIDs []string) BatchResult {
	slog.Info("Scheduler.AnalyzeUsersNow: override analysis requested", "users", len(userIDs))
	return s.RunBatchAnalysis(ctx, userIDs)
}

// StatusReport derives the current counters from persisted results and the
// eligibility query. Read-only, no side effects.
func (s *Scheduler) StatusReport(ctx context.Context) (*Status, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	today, err := s.store.CountUsersAnalyzedSince(ctx, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("failed to count users analyzed today: %w", err)
	}
	week, err := s.store.CountUsersAnalyzedSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("failed to count users analyzed this week: %w", err)
	}
	pending, err := s.UsersForAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pending users: %w", err)
	}
	lastRun, err := s.store.LastAnalysisTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query last run time: %w", err)
	}

	return &Status{
		UsersAnalyzedToday:    today,
		UsersAnalyzedThisWeek: week,
		PendingAnalysis:       len(pending),
		LastRunTime:           lastRun,
	}, nil
}

// sleepCtx sleeps for d unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
