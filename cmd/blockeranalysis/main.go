package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/api"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/classifier"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/engine"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/evidence"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/scheduler"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/store"
	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for analysis service state data
	DefaultStateDir = "/var/lib/blockeranalysis"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "blockeranalysis.db"
	// DefaultNightlyCron runs the nightly analysis at 03:00 local time
	DefaultNightlyCron = "0 3 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(config, flags); err != nil {
		slog.Error("Analysis service failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Analysis service exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	EvidenceDSN   string
	StateDir      string
	OpenAIKey     string
	APIAddr       string
	NightlyCron   string
	EncryptionKey string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	evidenceDSN *string
	openaiKey   *string
	apiAddr     *string
	nightlyCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		EvidenceDSN:   os.Getenv("EVIDENCE_DATABASE_URL"),
		StateDir:      os.Getenv("BLOCKER_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		NightlyCron:   os.Getenv("NIGHTLY_SCHEDULE"),
		EncryptionKey: os.Getenv("ANALYSIS_ENCRYPTION_KEY"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BLOCKER_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	// The evidence tables usually live in the main application database.
	if config.EvidenceDSN == "" {
		config.EvidenceDSN = config.DatabaseURL
		slog.Debug("No EVIDENCE_DATABASE_URL set, sharing the analysis database DSN")
	}
	if config.NightlyCron == "" {
		config.NightlyCron = DefaultNightlyCron
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"EVIDENCE_DATABASE_URL_SET", config.EvidenceDSN != "",
		"BLOCKER_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"NIGHTLY_SCHEDULE", config.NightlyCron,
		"ANALYSIS_ENCRYPTION_KEY_SET", config.EncryptionKey != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for analysis service data (overrides $BLOCKER_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the analysis store (overrides $DATABASE_URL)"),
		evidenceDSN: flag.String("evidence-dsn", config.EvidenceDSN, "database DSN for evidence tables (overrides $EVIDENCE_DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "admin API server address (overrides $API_ADDR)"),
		nightlyCron: flag.String("nightly-cron", config.NightlyCron, "cron schedule for the nightly analysis (overrides $NIGHTLY_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"evidenceDSN_set", *flags.evidenceDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"nightlyCron", *flags.nightlyCron)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating directory for file-based database", "db_dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func run(config Config, flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	repo, err := buildEvidenceRepository(flags)
	if err != nil {
		return err
	}

	cipher, err := buildCipher(config)
	if err != nil {
		return err
	}

	var clientOpts []classifier.Option
	if *flags.openaiKey != "" {
		clientOpts = append(clientOpts, classifier.WithAPIKey(*flags.openaiKey))
	}
	cls, err := classifier.NewClient(clientOpts...)
	if err != nil {
		return err
	}

	eng, err := engine.New(buildAnalysisConfig(), cls, repo, st, cipher,
		engine.WithFetchTimeout(util.ParseDurationEnv("EVIDENCE_FETCH_TIMEOUT", engine.DefaultFetchTimeout)))
	if err != nil {
		return err
	}

	sched := scheduler.New(eng, repo, st, buildSchedulerConfig(), *flags.stateDir)

	cron := scheduler.NewCron()
	defer cron.Stop()
	if err := cron.AddJob(*flags.nightlyCron, func() {
		sched.RunNightlyAnalysis(context.Background())
	}); err != nil {
		return err
	}
	slog.Info("Nightly analysis scheduled", "cron", *flags.nightlyCron)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	apiOpts = append(apiOpts, api.WithNextRun(cron.NextRun))
	srv := api.NewServer(sched, eng, apiOpts...)

	// Shut the server down on SIGINT/SIGTERM; Run returns nil after a clean
	// shutdown.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		s := <-sig
		slog.Info("Received shutdown signal", "signal", s)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping analysis service")
	return srv.Run()
}

// buildStore opens the analysis result store matching the DSN type.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildEvidenceRepository opens the evidence repository matching the DSN type.
func buildEvidenceRepository(flags Flags) (evidence.Repository, error) {
	if store.DetectDSNType(*flags.evidenceDSN) == "postgres" {
		return evidence.OpenPostgresRepository(*flags.evidenceDSN)
	}
	return evidence.OpenSQLiteRepository(*flags.evidenceDSN)
}

// buildCipher builds the payload cipher from the hex-encoded 32-byte key.
// Without a key the service stores payloads unencrypted and says so loudly.
func buildCipher(config Config) (store.Cipher, error) {
	if config.EncryptionKey == "" {
		slog.Warn("ANALYSIS_ENCRYPTION_KEY not set, analysis payloads will be stored unencrypted")
		return store.PlainCipher{}, nil
	}
	key, err := hex.DecodeString(config.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return store.NewAESCipher(key)
}

// buildAnalysisConfig derives the engine configuration from environment
// overrides on top of the defaults.
func buildAnalysisConfig() models.AnalysisConfig {
	cfg := models.DefaultAnalysisConfig()
	cfg.AnalysisWindowDays = util.ParseIntEnv("ANALYSIS_WINDOW_DAYS", cfg.AnalysisWindowDays)
	cfg.MinimumPatternOccurrences = util.ParseIntEnv("MIN_PATTERN_OCCURRENCES", cfg.MinimumPatternOccurrences)
	cfg.ConfidenceThreshold = util.ParseFloatEnv("CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	return cfg
}

// buildSchedulerConfig derives the scheduling policy from environment
// overrides on top of the defaults.
func buildSchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.CooldownDays = util.ParseIntEnv("ANALYSIS_COOLDOWN_DAYS", cfg.CooldownDays)
	cfg.MinWeeklyRecords = util.ParseIntEnv("MIN_WEEKLY_RECORDS", cfg.MinWeeklyRecords)
	cfg.BatchSize = util.ParseIntEnv("ANALYSIS_BATCH_SIZE", cfg.BatchSize)
	cfg.UserDelay = util.ParseDurationEnv("ANALYSIS_USER_DELAY", cfg.UserDelay)
	cfg.BatchDelay = util.ParseDurationEnv("ANALYSIS_BATCH_DELAY", cfg.BatchDelay)
	return cfg
}
