package models

import "testing"

func TestBlockerMetadataTablesInLockstep(t *testing.T) {
	if len(AllBlockerTypes) != 25 {
		t.Fatalf("expected 25 blocker types, got %d", len(AllBlockerTypes))
	}
	seen := make(map[BlockerType]bool)
	for _, bt := range AllBlockerTypes {
		if seen[bt] {
			t.Errorf("duplicate blocker type in AllBlockerTypes: %s", bt)
		}
		seen[bt] = true
		if _, ok := blockerDescriptions[bt]; !ok {
			t.Errorf("blocker type %s missing from description table", bt)
		}
		if _, ok := blockerDefaultSeverities[bt]; !ok {
			t.Errorf("blocker type %s missing from default severity table", bt)
		}
	}
	for bt := range blockerDescriptions {
		if !seen[bt] {
			t.Errorf("description table has unknown blocker type %s", bt)
		}
	}
	for bt := range blockerDefaultSeverities {
		if !seen[bt] {
			t.Errorf("severity table has unknown blocker type %s", bt)
		}
	}
}

func TestIsValidBlockerType(t *testing.T) {
	if !IsValidBlockerType(BlockerConfirmationBias) {
		t.Error("confirmation_bias should be valid")
	}
	if IsValidBlockerType("made_up_pattern") {
		t.Error("unknown type should be invalid")
	}
}

func TestSeverityOrdering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
	if Severity("unknown").Rank() != 0 {
		t.Error("unknown severity should rank 0")
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to BlockerStatus
		want     bool
	}{
		{StatusActive, StatusAcknowledged, true},
		{StatusActive, StatusResolved, true},
		{StatusActive, StatusArchived, true},
		{StatusAcknowledged, StatusResolved, true},
		{StatusAcknowledged, StatusArchived, true},
		{StatusAcknowledged, StatusActive, false},
		{StatusResolved, StatusActive, false},
		{StatusResolved, StatusArchived, false},
		{StatusArchived, StatusResolved, false},
		{StatusActive, StatusActive, false},
		{StatusActive, BlockerStatus("bogus"), false},
	}
	for _, c := range cases {
		if got := CanTransitionStatus(c.from, c.to); got != c.want {
			t.Errorf("CanTransitionStatus(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestAnalysisConfigValidate(t *testing.T) {
	cfg := DefaultAnalysisConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := cfg
	bad.ConfidenceThreshold = 1.5
	if err := bad.Validate(); err != ErrInvalidThreshold {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}

	bad = cfg
	bad.EnabledBlockers = nil
	if err := bad.Validate(); err != ErrNoEnabledBlockers {
		t.Errorf("expected ErrNoEnabledBlockers, got %v", err)
	}

	bad = cfg
	bad.EnabledBlockers = []BlockerType{"nonsense"}
	if err := bad.Validate(); err != ErrInvalidBlockerType {
		t.Errorf("expected ErrInvalidBlockerType, got %v", err)
	}

	bad = cfg
	bad.AnalysisWindowDays = 0
	if err := bad.Validate(); err != ErrInvalidWindow {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestDefaultAnalysisConfigIsFreshValue(t *testing.T) {
	a := DefaultAnalysisConfig()
	b := DefaultAnalysisConfig()
	a.EnabledBlockers[0] = BlockerBurnoutDenial
	if b.EnabledBlockers[0] != BlockerConfirmationBias {
		t.Error("mutating one default config leaked into another")
	}
}
