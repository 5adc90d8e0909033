package validation

import (
	"context"
	"log/slog"
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// A/B thresholds compared by RunABTest. Variant A is the production
// threshold; variant B is the lowered experimental one.
const (
	ThresholdVariantA = 0.7
	ThresholdVariantB = 0.5
)

// ABUserOutcome holds one user's detections under both thresholds.
type ABUserOutcome struct {
	UserID         string  `json:"user_id"`
	BlockersA      int     `json:"blockers_a"`
	BlockersB      int     `json:"blockers_b"`
	AvgConfidenceA float64 `json:"avg_confidence_a"`
	AvgConfidenceB float64 `json:"avg_confidence_b"`
	Error          string  `json:"error,omitempty"`
}

// ABTestReport is the side-by-side outcome of one A/B threshold run. No
// significance testing is applied; the numbers are for eyeballing.
type ABTestReport struct {
	RunAt          time.Time       `json:"run_at"`
	ThresholdA     float64         `json:"threshold_a"`
	ThresholdB     float64         `json:"threshold_b"`
	Users          []ABUserOutcome `json:"users"`
	FailedAnalyses int             `json:"failed_analyses"`
}

// RunABTest analyzes each user under two engines that differ only in
// confidence threshold and reports detection counts and mean confidences side
// by side.
func (h *Harness) RunABTest(ctx context.Context, userIDs []string) (*ABTestReport, error) {
	cfgA := ExperimentalConfig()
	cfgA.ConfidenceThreshold = ThresholdVariantA
	cfgB := ExperimentalConfig()
	cfgB.ConfidenceThreshold = ThresholdVariantB

	engA, err := h.studyEngine(cfgA)
	if err != nil {
		return nil, err
	}
	engB, err := h.studyEngine(cfgB)
	if err != nil {
		return nil, err
	}

	report := &ABTestReport{RunAt: time.Now(), ThresholdA: ThresholdVariantA, ThresholdB: ThresholdVariantB}
	for _, userID := range userIDs {
		outcome := ABUserOutcome{UserID: userID}

		resA, errA := engA.AnalyzeUser(ctx, userID)
		resB, errB := engB.AnalyzeUser(ctx, userID)
		if errA != nil || errB != nil {
			err := errA
			if err == nil {
				err = errB
			}
			slog.Warn("Harness.RunABTest: user analysis failed", "error", err, "user_id", userID)
			outcome.Error = err.Error()
			report.FailedAnalyses++
			report.Users = append(report.Users, outcome)
			continue
		}

		outcome.BlockersA = len(resA.BlockersDetected)
		outcome.BlockersB = len(resB.BlockersDetected)
		outcome.AvgConfidenceA = avgConfidence(resA.BlockersDetected)
		outcome.AvgConfidenceB = avgConfidence(resB.BlockersDetected)
		report.Users = append(report.Users, outcome)
	}

	slog.Info("Harness.RunABTest: completed", "users", len(userIDs), "failed", report.FailedAnalyses)
	return report, nil
}

func avgConfidence(blockers []models.Blocker) float64 {
	if len(blockers) == 0 {
		return 0
	}
	var sum float64
	for _, b := range blockers {
		sum += b.Confidence
	}
	return sum / float64(len(blockers))
}
