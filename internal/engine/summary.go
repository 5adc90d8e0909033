package engine

import (
	"fmt"
	"strings"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// buildSummary produces the one-sentence analysis summary. With no retained
// blockers it is the fixed healthy message; otherwise it lists nonzero
// severity counts in descending order and names the primary pattern.
func buildSummary(blockers []models.Blocker, enabledOrder []models.BlockerType) string {
	if len(blockers) == 0 {
		return HealthySummary
	}

	counts := make(map[models.Severity]int)
	for _, b := range blockers {
		counts[b.Severity]++
	}
	var parts []string
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}

	primary := primaryPattern(blockers, enabledOrder)
	return fmt.Sprintf("Detected %d recurring thinking pattern(s) (%s); primary pattern: %s.",
		len(blockers), strings.Join(parts, ", "), primary)
}

// primaryPattern picks the most frequent blocker type by occurrence count.
// Ties go to the type encountered first in the enabled order.
func primaryPattern(blockers []models.Blocker, enabledOrder []models.BlockerType) models.BlockerType {
	occurrences := make(map[models.BlockerType]int)
	for _, b := range blockers {
		n := b.Occurrences
		if n < 1 {
			n = 1
		}
		occurrences[b.Type] += n
	}

	var primary models.BlockerType
	best := -1
	for _, bt := range enabledOrder {
		if n, ok := occurrences[bt]; ok && n > best {
			primary = bt
			best = n
		}
	}
	return primary
}

// buildRecommendations assembles the priority-ordered recommendation list:
// severity notices first, then each blocker's own recommendations with exact
// duplicates removed, first occurrence winning.
func buildRecommendations(blockers []models.Blocker) []string {
	if len(blockers) == 0 {
		return []string{HealthyRecommendation}
	}

	hasCritical := false
	hasHigh := false
	for _, b := range blockers {
		switch b.Severity {
		case models.SeverityCritical:
			hasCritical = true
		case models.SeverityHigh:
			hasHigh = true
		}
	}

	var recs []string
	if hasCritical {
		recs = append(recs, criticalNotice)
	} else if hasHigh {
		recs = append(recs, highNotice)
	}

	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		seen[r] = true
	}
	for _, b := range blockers {
		for _, r := range b.Recommendations {
			if seen[r] {
				continue
			}
			seen[r] = true
			recs = append(recs, r)
		}
	}
	return recs
}
