// Package validation provides the accuracy validation harness.
//
// The harness runs the analysis engine against selected users with an
// experimental configuration and compares detections to expert labels when
// labels exist. Results are ephemeral: validation runs write to an in-memory
// store and never touch production analysis history.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/engine"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/evidence"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/store"
)

// UserValidation is the per-user outcome of a validation study.
type UserValidation struct {
	UserID        string               `json:"user_id"`
	DetectedTypes []models.BlockerType `json:"detected_types"`
	ExpertTypes   []models.BlockerType `json:"expert_types,omitempty"`
	Labeled       bool                 `json:"labeled"`

	// Confusion counts, only meaningful when Labeled is true.
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`

	// Error is set when the user's analysis failed; such users contribute to
	// FailedAnalyses and nothing else.
	Error string `json:"error,omitempty"`
}

// Report is the aggregate outcome of one validation study.
type Report struct {
	RunAt          time.Time        `json:"run_at"`
	TotalUsers     int              `json:"total_users"`
	LabeledUsers   int              `json:"labeled_users"`
	FailedAnalyses int              `json:"failed_analyses"`
	Users          []UserValidation `json:"users"`

	// Pooled metrics across all labeled users. Nil when no user had expert
	// labels: the study is then descriptive only.
	Precision *float64 `json:"precision,omitempty"`
	Recall    *float64 `json:"recall,omitempty"`
	F1Score   *float64 `json:"f1_score,omitempty"`
}

// Harness runs validation studies. The classifier is injected so studies can
// run against a scripted stub or a live client.
type Harness struct {
	repo evidence.Repository
	cls  engine.Classifier
}

// NewHarness creates a validation harness over the given evidence source and
// classifier.
func NewHarness(repo evidence.Repository, cls engine.Classifier) *Harness {
	return &Harness{repo: repo, cls: cls}
}

// ExperimentalConfig returns the study configuration: a lowered confidence
// threshold to surface borderline detections, over a reduced set of the most
// commonly labeled blocker types.
func ExperimentalConfig() models.AnalysisConfig {
	cfg := models.DefaultAnalysisConfig()
	cfg.ConfidenceThreshold = 0.5
	cfg.EnabledBlockers = []models.BlockerType{
		models.BlockerConfirmationBias,
		models.BlockerAllOrNothingThinking,
		models.BlockerCatastrophizing,
		models.BlockerAnalysisParalysis,
		models.BlockerPerfectionism,
		models.BlockerImposterSyndrome,
		models.BlockerFearOfFailure,
		models.BlockerRuminationSpiral,
	}
	return cfg
}

// RunValidationStudy analyzes each user with the experimental configuration
// and scores detections against expertLabels where present. Users without an
// entry in expertLabels contribute descriptive results only.
func (h *Harness) RunValidationStudy(ctx context.Context, userIDs []string, expertLabels map[string][]models.BlockerType) (*Report, error) {
	eng, err := h.studyEngine(ExperimentalConfig())
	if err != nil {
		return nil, err
	}

	report := &Report{RunAt: time.Now(), TotalUsers: len(userIDs)}
	var pooledTP, pooledFP, pooledFN int

	for _, userID := range userIDs {
		labels, labeled := expertLabels[userID]
		entry := UserValidation{UserID: userID, ExpertTypes: labels, Labeled: labeled}

		result, err := eng.AnalyzeUser(ctx, userID)
		if err != nil {
			slog.Warn("Harness.RunValidationStudy: user analysis failed", "error", err, "user_id", userID)
			entry.Error = err.Error()
			report.FailedAnalyses++
			report.Users = append(report.Users, entry)
			continue
		}

		for _, b := range result.BlockersDetected {
			entry.DetectedTypes = append(entry.DetectedTypes, b.Type)
		}

		if labeled {
			report.LabeledUsers++
			entry.TruePositives, entry.FalsePositives, entry.FalseNegatives = confusionCounts(entry.DetectedTypes, labels)
			pooledTP += entry.TruePositives
			pooledFP += entry.FalsePositives
			pooledFN += entry.FalseNegatives
		}
		report.Users = append(report.Users, entry)
	}

	if report.LabeledUsers > 0 {
		p, r, f1 := pooledMetrics(pooledTP, pooledFP, pooledFN)
		report.Precision, report.Recall, report.F1Score = &p, &r, &f1
	}

	slog.Info("Harness.RunValidationStudy: completed",
		"total_users", report.TotalUsers, "labeled", report.LabeledUsers, "failed", report.FailedAnalyses)
	return report, nil
}

// studyEngine builds an engine writing to a throwaway in-memory store so
// validation runs never pollute production history.
func (h *Harness) studyEngine(cfg models.AnalysisConfig) (*engine.Engine, error) {
	eng, err := engine.New(cfg, h.cls, h.repo, store.NewInMemoryStore(), store.PlainCipher{})
	if err != nil {
		return nil, fmt.Errorf("failed to build study engine: %w", err)
	}
	return eng, nil
}

// confusionCounts compares detected and expert type sets.
func confusionCounts(detected, expert []models.BlockerType) (tp, fp, fn int) {
	expertSet := make(map[models.BlockerType]bool, len(expert))
	for _, bt := range expert {
		expertSet[bt] = true
	}
	detectedSet := make(map[models.BlockerType]bool, len(detected))
	for _, bt := range detected {
		detectedSet[bt] = true
	}

	for bt := range detectedSet {
		if expertSet[bt] {
			tp++
		} else {
			fp++
		}
	}
	for bt := range expertSet {
		if !detectedSet[bt] {
			fn++
		}
	}
	return tp, fp, fn
}

// pooledMetrics computes precision, recall, and F1 from pooled confusion
// counts. An empty confusion (nothing expected, nothing detected) scores 1.0
// across the board; zero denominators otherwise score 0.
func pooledMetrics(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp == 0 && fp == 0 && fn == 0 {
		return 1, 1, 1
	}
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}
