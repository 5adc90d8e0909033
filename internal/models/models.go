// Package models defines the core data structures for the blocker analysis subsystem.
//
// It includes the closed BlockerType enumeration with its metadata tables,
// severity and status orderings, and the shared API response envelope.
package models

import (
	"errors"
)

// BlockerType identifies one recurring thinking-pattern category.
type BlockerType string

const (
	BlockerConfirmationBias          BlockerType = "confirmation_bias"
	BlockerAllOrNothingThinking      BlockerType = "all_or_nothing_thinking"
	BlockerCatastrophizing           BlockerType = "catastrophizing"
	BlockerOvergeneralization        BlockerType = "overgeneralization"
	BlockerEmotionalReasoning        BlockerType = "emotional_reasoning"
	BlockerAnalysisParalysis         BlockerType = "analysis_paralysis"
	BlockerPerfectionism             BlockerType = "perfectionism"
	BlockerImposterSyndrome          BlockerType = "imposter_syndrome"
	BlockerSunkCostFallacy           BlockerType = "sunk_cost_fallacy"
	BlockerFearOfFailure             BlockerType = "fear_of_failure"
	BlockerFearOfSuccess             BlockerType = "fear_of_success"
	BlockerDecisionFatigue           BlockerType = "decision_fatigue"
	BlockerComparisonTrap            BlockerType = "comparison_trap"
	BlockerShinyObjectSyndrome       BlockerType = "shiny_object_syndrome"
	BlockerProcrastinationLoop       BlockerType = "procrastination_loop"
	BlockerSelfSabotage              BlockerType = "self_sabotage"
	BlockerLearnedHelplessness       BlockerType = "learned_helplessness"
	BlockerTunnelVision              BlockerType = "tunnel_vision"
	BlockerPrematureOptimization     BlockerType = "premature_optimization"
	BlockerExternalValidationSeeking BlockerType = "external_validation_seeking"
	BlockerRuminationSpiral          BlockerType = "rumination_spiral"
	BlockerAvoidantAttachmentBlock   BlockerType = "avoidant_attachment_block"
	BlockerControlFixation           BlockerType = "control_fixation"
	BlockerNoveltyAvoidance          BlockerType = "novelty_avoidance"
	BlockerBurnoutDenial             BlockerType = "burnout_denial"
)

// AllBlockerTypes lists every known blocker type in canonical order. The
// metadata tables below must stay in lockstep with this slice; the package
// tests enforce that.
var AllBlockerTypes = []BlockerType{
	BlockerConfirmationBias,
	BlockerAllOrNothingThinking,
	BlockerCatastrophizing,
	BlockerOvergeneralization,
	BlockerEmotionalReasoning,
	BlockerAnalysisParalysis,
	BlockerPerfectionism,
	BlockerImposterSyndrome,
	BlockerSunkCostFallacy,
	BlockerFearOfFailure,
	BlockerFearOfSuccess,
	BlockerDecisionFatigue,
	BlockerComparisonTrap,
	BlockerShinyObjectSyndrome,
	BlockerProcrastinationLoop,
	BlockerSelfSabotage,
	BlockerLearnedHelplessness,
	BlockerTunnelVision,
	BlockerPrematureOptimization,
	BlockerExternalValidationSeeking,
	BlockerRuminationSpiral,
	BlockerAvoidantAttachmentBlock,
	BlockerControlFixation,
	BlockerNoveltyAvoidance,
	BlockerBurnoutDenial,
}

// blockerDescriptions maps each blocker type to its user-facing description.
var blockerDescriptions = map[BlockerType]string{
	BlockerConfirmationBias:          "Seeking out information that confirms existing beliefs while dismissing contradicting evidence",
	BlockerAllOrNothingThinking:      "Viewing situations in absolute terms with no middle ground",
	BlockerCatastrophizing:           "Assuming the worst possible outcome of any setback",
	BlockerOvergeneralization:        "Treating a single negative event as a never-ending pattern",
	BlockerEmotionalReasoning:        "Treating feelings as evidence about external reality",
	BlockerAnalysisParalysis:         "Endlessly gathering information instead of deciding",
	BlockerPerfectionism:             "Refusing to ship or move on until the result is flawless",
	BlockerImposterSyndrome:          "Discounting achievements and fearing exposure as a fraud",
	BlockerSunkCostFallacy:           "Continuing a failing course because of what was already invested",
	BlockerFearOfFailure:             "Avoiding attempts to protect against the possibility of failing",
	BlockerFearOfSuccess:             "Undermining progress to avoid the consequences of succeeding",
	BlockerDecisionFatigue:           "Deferring or randomizing choices after too many small decisions",
	BlockerComparisonTrap:            "Measuring progress only against other people's highlight reels",
	BlockerShinyObjectSyndrome:       "Abandoning current work whenever a newer idea appears",
	BlockerProcrastinationLoop:       "Cycling between avoidance, guilt, and last-minute pressure",
	BlockerSelfSabotage:              "Creating obstacles that excuse an anticipated poor outcome",
	BlockerLearnedHelplessness:       "Assuming effort is pointless based on past uncontrollable events",
	BlockerTunnelVision:              "Fixating on one approach and ignoring viable alternatives",
	BlockerPrematureOptimization:     "Polishing details before the overall direction is validated",
	BlockerExternalValidationSeeking: "Needing outside approval before trusting a decision",
	BlockerRuminationSpiral:          "Replaying past events without extracting any new action",
	BlockerAvoidantAttachmentBlock:   "Withdrawing from collaboration or help when stakes rise",
	BlockerControlFixation:           "Refusing to delegate or accept outcomes outside direct control",
	BlockerNoveltyAvoidance:          "Rejecting unfamiliar approaches regardless of their merit",
	BlockerBurnoutDenial:             "Pushing through depletion while denying its effects",
}

// blockerDefaultSeverities maps each blocker type to the severity assumed when
// the classifier returns an unusable severity value.
var blockerDefaultSeverities = map[BlockerType]Severity{
	BlockerConfirmationBias:          SeverityMedium,
	BlockerAllOrNothingThinking:      SeverityMedium,
	BlockerCatastrophizing:           SeverityHigh,
	BlockerOvergeneralization:        SeverityMedium,
	BlockerEmotionalReasoning:        SeverityMedium,
	BlockerAnalysisParalysis:         SeverityMedium,
	BlockerPerfectionism:             SeverityMedium,
	BlockerImposterSyndrome:          SeverityHigh,
	BlockerSunkCostFallacy:           SeverityMedium,
	BlockerFearOfFailure:             SeverityHigh,
	BlockerFearOfSuccess:             SeverityMedium,
	BlockerDecisionFatigue:           SeverityLow,
	BlockerComparisonTrap:            SeverityLow,
	BlockerShinyObjectSyndrome:       SeverityLow,
	BlockerProcrastinationLoop:       SeverityMedium,
	BlockerSelfSabotage:              SeverityCritical,
	BlockerLearnedHelplessness:       SeverityCritical,
	BlockerTunnelVision:              SeverityMedium,
	BlockerPrematureOptimization:     SeverityLow,
	BlockerExternalValidationSeeking: SeverityMedium,
	BlockerRuminationSpiral:          SeverityHigh,
	BlockerAvoidantAttachmentBlock:   SeverityHigh,
	BlockerControlFixation:           SeverityMedium,
	BlockerNoveltyAvoidance:          SeverityLow,
	BlockerBurnoutDenial:             SeverityCritical,
}

// IsValidBlockerType checks whether the given type is part of the closed set.
func IsValidBlockerType(bt BlockerType) bool {
	_, ok := blockerDescriptions[bt]
	return ok
}

// BlockerDescription returns the user-facing description for a blocker type.
// Unknown types return an empty string.
func BlockerDescription(bt BlockerType) string {
	return blockerDescriptions[bt]
}

// BlockerDefaultSeverity returns the fallback severity for a blocker type.
// Unknown types fall back to medium.
func BlockerDefaultSeverity(bt BlockerType) Severity {
	if s, ok := blockerDefaultSeverities[bt]; ok {
		return s
	}
	return SeverityMedium
}

// Severity is the ordinal impact rating of a retained blocker.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of a severity, low < medium < high < critical.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsValidSeverity checks whether the given severity is part of the closed set.
func IsValidSeverity(s Severity) bool {
	return s.Rank() > 0
}

// BlockerStatus is the lifecycle state of a detected blocker instance.
type BlockerStatus string

const (
	StatusActive       BlockerStatus = "active"
	StatusAcknowledged BlockerStatus = "acknowledged"
	StatusResolved     BlockerStatus = "resolved"
	StatusArchived     BlockerStatus = "archived"
)

// statusRank orders statuses along the permitted lifecycle. Resolved and
// archived are both terminal.
func statusRank(s BlockerStatus) int {
	switch s {
	case StatusActive:
		return 1
	case StatusAcknowledged:
		return 2
	case StatusResolved, StatusArchived:
		return 3
	default:
		return 0
	}
}

// IsValidBlockerStatus checks whether the given status is part of the closed set.
func IsValidBlockerStatus(s BlockerStatus) bool {
	return statusRank(s) > 0
}

// CanTransitionStatus reports whether a blocker status may advance from one
// state to another. Status only moves forward: active -> acknowledged ->
// resolved/archived. Terminal states never change.
func CanTransitionStatus(from, to BlockerStatus) bool {
	if !IsValidBlockerStatus(from) || !IsValidBlockerStatus(to) {
		return false
	}
	return statusRank(to) > statusRank(from)
}

// Error variables for the subsystem's failure taxonomy.
var (
	// ErrEvidenceFetch indicates evidence gathering failed; fatal to that
	// user's analysis run.
	ErrEvidenceFetch = errors.New("failed to fetch user evidence")
	// ErrClassifier indicates a classifier call failed or returned an
	// unusable response; soft, scoped to one blocker type.
	ErrClassifier = errors.New("classifier call failed")
	// ErrClassifierTimeout indicates the classifier did not answer within
	// the configured deadline; treated exactly like ErrClassifier.
	ErrClassifierTimeout = errors.New("classifier call timed out")
	// ErrPersistence indicates a result could not be stored; the analysis
	// result is still returned to the caller.
	ErrPersistence = errors.New("failed to persist analysis result")
	// ErrDecryption indicates one historical record could not be decrypted
	// during a history read; that record is skipped.
	ErrDecryption = errors.New("failed to decrypt analysis record")
	// ErrBlockerNotFound indicates a status update referenced an unknown
	// blocker id.
	ErrBlockerNotFound = errors.New("blocker not found")

	ErrInvalidBlockerType    = errors.New("invalid blocker type")
	ErrInvalidSeverity       = errors.New("invalid severity")
	ErrInvalidStatus         = errors.New("invalid blocker status")
	ErrStatusTransition      = errors.New("blocker status cannot move backwards")
	ErrNoEnabledBlockers     = errors.New("config must enable at least one blocker type")
	ErrInvalidThreshold      = errors.New("confidence threshold must be within [0,1]")
	ErrInvalidWindow         = errors.New("analysis window must be at least one day")
	ErrInvalidMinOccurrences = errors.New("minimum pattern occurrences must be at least one")
)
