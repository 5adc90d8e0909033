package models

import "time"

// EvidenceSourceType identifies where a piece of pattern evidence came from.
type EvidenceSourceType string

const (
	EvidenceSourceInsight        EvidenceSourceType = "insight"
	EvidenceSourceChatMessage    EvidenceSourceType = "chat_message"
	EvidenceSourceUserContext    EvidenceSourceType = "user_context"
	EvidenceSourceCardReflection EvidenceSourceType = "card_reflection"
)

// IsValidEvidenceSourceType checks whether the given source type is supported.
func IsValidEvidenceSourceType(st EvidenceSourceType) bool {
	switch st {
	case EvidenceSourceInsight, EvidenceSourceChatMessage, EvidenceSourceUserContext, EvidenceSourceCardReflection:
		return true
	default:
		return false
	}
}

// InsightRecord is one insight produced by a user's card reading.
type InsightRecord struct {
	ID        int       `json:"id"`
	UserID    string    `json:"user_id"`
	CardID    string    `json:"card_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRecord is one completed chat conversation.
type ConversationRecord struct {
	ID           int       `json:"id"`
	UserID       string    `json:"user_id"`
	Summary      string    `json:"summary"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// PatternEvidence ties a detected pattern back to a concrete source record.
// It is always attached to a DetectedPattern, never free-floating.
type PatternEvidence struct {
	SourceType EvidenceSourceType `json:"source_type"`
	SourceID   string             `json:"source_id"`
	Excerpt    string             `json:"excerpt,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// PatternType classifies the kind of signal a detected pattern represents.
type PatternType string

const (
	PatternLinguistic PatternType = "linguistic"
	PatternBehavioral PatternType = "behavioral"
	PatternEmotional  PatternType = "emotional"
	PatternConceptual PatternType = "conceptual"
)

// IsValidPatternType checks whether the given pattern type is supported.
func IsValidPatternType(pt PatternType) bool {
	switch pt {
	case PatternLinguistic, PatternBehavioral, PatternEmotional, PatternConceptual:
		return true
	default:
		return false
	}
}

// DetectedPattern is one recurring signal the classifier observed in the
// evidence, with its supporting records.
type DetectedPattern struct {
	PatternType PatternType       `json:"pattern_type"`
	Description string            `json:"description"`
	Evidence    []PatternEvidence `json:"evidence"`
	Strength    float64           `json:"strength"` // within [0,1]
}
