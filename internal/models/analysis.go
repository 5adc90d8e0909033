package models

import "time"

// ModelSettings holds the classifier call parameters carried by an AnalysisConfig.
type ModelSettings struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	PromptVersion   string  `json:"prompt_version"`
}

// AnalysisConfig is the immutable parameter set for one engine instance.
// Two engines may hold different configs at the same time; the validation
// harness relies on that for its A/B mode. Construct once, never mutate.
type AnalysisConfig struct {
	AnalysisWindowDays        int           `json:"analysis_window_days"`
	MinimumPatternOccurrences int           `json:"minimum_pattern_occurrences"`
	ConfidenceThreshold       float64       `json:"confidence_threshold"`
	EnabledBlockers           []BlockerType `json:"enabled_blockers"`
	ModelSettings             ModelSettings `json:"model_settings"`
}

// DefaultModelSettings returns the standard classifier call parameters.
func DefaultModelSettings() ModelSettings {
	return ModelSettings{
		Temperature:     0.3,
		MaxOutputTokens: 1024,
		PromptVersion:   "v2",
	}
}

// DefaultAnalysisConfig returns the production configuration. Callers receive
// a fresh value each time; there is no shared mutable default.
func DefaultAnalysisConfig() AnalysisConfig {
	enabled := make([]BlockerType, len(AllBlockerTypes))
	copy(enabled, AllBlockerTypes)
	return AnalysisConfig{
		AnalysisWindowDays:        30,
		MinimumPatternOccurrences: 3,
		ConfidenceThreshold:       0.7,
		EnabledBlockers:           enabled,
		ModelSettings:             DefaultModelSettings(),
	}
}

// Validate performs comprehensive validation on an AnalysisConfig.
func (c AnalysisConfig) Validate() error {
	if c.AnalysisWindowDays < 1 {
		return ErrInvalidWindow
	}
	if c.MinimumPatternOccurrences < 1 {
		return ErrInvalidMinOccurrences
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return ErrInvalidThreshold
	}
	if len(c.EnabledBlockers) == 0 {
		return ErrNoEnabledBlockers
	}
	for _, bt := range c.EnabledBlockers {
		if !IsValidBlockerType(bt) {
			return ErrInvalidBlockerType
		}
	}
	return nil
}

// Blocker is one detected thinking-pattern instance, scoped to a single user
// and blocker type. The persisted payload is immutable; lifecycle status is
// tracked separately in a status side table.
type Blocker struct {
	ID              string            `json:"id"`
	Type            BlockerType       `json:"type"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Severity        Severity          `json:"severity"`
	Confidence      float64           `json:"confidence"`
	Patterns        []DetectedPattern `json:"patterns"`
	FirstDetected   time.Time         `json:"first_detected"`
	LastDetected    time.Time         `json:"last_detected"`
	Occurrences     int               `json:"occurrences"`
	UserID          string            `json:"user_id"`
	BlockTypeIDs    []string          `json:"block_type_ids,omitempty"`
	InsightIDs      []int             `json:"insight_ids,omitempty"`
	ConversationIDs []int             `json:"conversation_ids,omitempty"`
	Recommendations []string          `json:"recommendations"`
	Status          BlockerStatus     `json:"status"`
}

// AnalysisMetadata describes one engine invocation.
type AnalysisMetadata struct {
	InsightsAnalyzed      int    `json:"insights_analyzed"`
	ConversationsAnalyzed int    `json:"conversations_analyzed"`
	ProcessingTimeMs      int64  `json:"processing_time_ms"`
	ModelVersion          string `json:"model_version"`
}

// AnalysisResult is the output of one engine invocation. It is created
// exactly once per run and persisted append-only; nothing in this subsystem
// updates it in place.
type AnalysisResult struct {
	UserID           string           `json:"user_id"`
	AnalysisDate     time.Time        `json:"analysis_date"`
	BlockersDetected []Blocker        `json:"blockers_detected"`
	AnalysisSummary  string           `json:"analysis_summary"`
	Recommendations  []string         `json:"recommendations"`
	Metadata         AnalysisMetadata `json:"metadata"`
}
