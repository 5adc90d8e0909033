package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/scheduler"
)

const (
	// ConversationMessageMinimum is the message count a completed conversation
	// needs before it counts as a milestone. Shorter exchanges carry too
	// little signal to justify an analysis run.
	ConversationMessageMinimum = 5

	// DefaultProfileGrace is how long a profile-updated event is held before
	// triggering, so a burst of rapid edits collapses into one analysis.
	DefaultProfileGrace = 30 * time.Second
)

// AnalysisScheduler is the scheduling capability the trigger hooks drive.
type AnalysisScheduler interface {
	OnUserMilestone(ctx context.Context, userID string, kind scheduler.MilestoneKind)
	AnalyzeUsersNow(ctx context.Context, userIDs []string) scheduler.BatchResult
}

// Triggers exposes the event hooks the application calls into.
type Triggers struct {
	scheduler    AnalysisScheduler
	runner       *TaskRunner
	profileGrace time.Duration
}

// Opts holds configuration for trigger construction.
type Opts struct {
	ProfileGrace time.Duration
}

// Option configures trigger construction.
type Option func(*Opts)

// WithProfileGrace overrides the profile-update settle delay. Tests use this
// to avoid real waiting.
func WithProfileGrace(d time.Duration) Option {
	return func(o *Opts) { o.ProfileGrace = d }
}

// New creates the trigger hooks around a scheduler.
func New(s AnalysisScheduler, options ...Option) *Triggers {
	opts := Opts{ProfileGrace: DefaultProfileGrace}
	for _, opt := range options {
		opt(&opts)
	}
	return &Triggers{
		scheduler:    s,
		runner:       NewTaskRunner(),
		profileGrace: opts.ProfileGrace,
	}
}

// OnInsightCreated fires when a user saves a new insight. Returns immediately;
// the cadence and cooldown decisions happen in the scheduler.
func (t *Triggers) OnInsightCreated(ctx context.Context, userID string) {
	slog.Debug("Triggers.OnInsightCreated", "user_id", userID)
	t.runner.Go(ctx, "insight-created", func(taskCtx context.Context) error {
		t.scheduler.OnUserMilestone(taskCtx, userID, scheduler.MilestoneInsightCreated)
		return nil
	})
}

// OnConversationCompleted fires when a chat session ends. Conversations below
// the message minimum are ignored.
func (t *Triggers) OnConversationCompleted(ctx context.Context, userID string, messageCount int) {
	if messageCount < ConversationMessageMinimum {
		slog.Debug("Triggers.OnConversationCompleted: below message minimum",
			"user_id", userID, "message_count", messageCount)
		return
	}
	slog.Debug("Triggers.OnConversationCompleted", "user_id", userID, "message_count", messageCount)
	t.runner.Go(ctx, "conversation-completed", func(taskCtx context.Context) error {
		t.scheduler.OnUserMilestone(taskCtx, userID, scheduler.MilestoneConversationCompleted)
		return nil
	})
}

// OnProfileUpdated fires when a user edits their profile. The task enters the
// queue only after the grace period so consecutive edits coalesce without
// tying up the worker.
func (t *Triggers) OnProfileUpdated(ctx context.Context, userID string) {
	slog.Debug("Triggers.OnProfileUpdated", "user_id", userID, "grace", t.profileGrace)
	t.runner.GoAfter(ctx, t.profileGrace, "profile-updated", func(taskCtx context.Context) error {
		t.scheduler.OnUserMilestone(taskCtx, userID, scheduler.MilestoneProfileUpdated)
		return nil
	})
}

// OnUserStuckPattern fires when the application detects a user repeatedly
// circling the same topic. It requests an immediate analysis, bypassing the
// scheduler's eligibility gates.
func (t *Triggers) OnUserStuckPattern(ctx context.Context, userID string) {
	slog.Info("Triggers.OnUserStuckPattern: requesting immediate analysis", "user_id", userID)
	t.runner.Go(ctx, "stuck-pattern", func(taskCtx context.Context) error {
		result := t.scheduler.AnalyzeUsersNow(taskCtx, []string{userID})
		if len(result.Failed) > 0 {
			return fmt.Errorf("stuck-pattern analysis failed for user %s", userID)
		}
		return nil
	})
}

// OnUserRequestsAnalysis handles an explicit user request. Unlike the other
// hooks it runs synchronously and reports failure to the caller.
func (t *Triggers) OnUserRequestsAnalysis(ctx context.Context, userID string) error {
	slog.Info("Triggers.OnUserRequestsAnalysis", "user_id", userID)
	result := t.scheduler.AnalyzeUsersNow(ctx, []string{userID})
	if len(result.Failed) > 0 {
		return fmt.Errorf("requested analysis failed for user %s", userID)
	}
	return nil
}

// Wait blocks until all in-flight trigger tasks finish. Tests use this to
// observe asynchronous effects.
func (t *Triggers) Wait() {
	t.runner.Wait()
}

// Close drains the trigger runner. Called during shutdown.
func (t *Triggers) Close() {
	t.runner.Close()
}
