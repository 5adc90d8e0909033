package main

import (
	"testing"
	"time"
)

func TestBuildAnalysisConfigEnvOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_WINDOW_DAYS", "14")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")

	cfg := buildAnalysisConfig()
	if cfg.AnalysisWindowDays != 14 {
		t.Errorf("AnalysisWindowDays = %d, want 14", cfg.AnalysisWindowDays)
	}
	if cfg.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", cfg.ConfidenceThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("overridden config failed validation: %v", err)
	}
}

func TestBuildSchedulerConfigEnvOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_COOLDOWN_DAYS", "3")
	t.Setenv("ANALYSIS_USER_DELAY", "500ms")

	cfg := buildSchedulerConfig()
	if cfg.CooldownDays != 3 {
		t.Errorf("CooldownDays = %d, want 3", cfg.CooldownDays)
	}
	if cfg.UserDelay != 500*time.Millisecond {
		t.Errorf("UserDelay = %v, want 500ms", cfg.UserDelay)
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	t.Setenv("BLOCKER_STATE_DIR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EVIDENCE_DATABASE_URL", "")
	t.Setenv("NIGHTLY_SCHEDULE", "")

	config := loadEnvironmentConfig()
	if config.StateDir != DefaultStateDir {
		t.Errorf("StateDir = %q, want default %q", config.StateDir, DefaultStateDir)
	}
	if config.DatabaseURL == "" {
		t.Error("DatabaseURL should default to a SQLite path")
	}
	if config.EvidenceDSN != config.DatabaseURL {
		t.Errorf("EvidenceDSN = %q, want shared DSN %q", config.EvidenceDSN, config.DatabaseURL)
	}
	if config.NightlyCron != DefaultNightlyCron {
		t.Errorf("NightlyCron = %q, want %q", config.NightlyCron, DefaultNightlyCron)
	}
}
