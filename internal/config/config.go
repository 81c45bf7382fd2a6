// Package config provides centralized configuration loaded from environment
// variables, plus the process-wide read-only constants named in the design:
// the season year and the validator policy knobs. Shared by every command
// in cmd/pipeline and by cmd/diagnose-server.
package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// --------------------------------------------------------------------------
// Table names — single source of truth for the SQL in this repository
// --------------------------------------------------------------------------

const (
	TeamsTable           = "teams"
	MatchesTable         = "matches"
	LeaguesTable         = "leagues"
	TournamentsTable     = "tournaments"
	CanonicalTeamsTable  = "canonical_teams"
	SourceEntityMapTable = "source_entity_map"
	StagingGamesTable    = "staging_games"
	StagingEventsTable   = "staging_events"
	StagingRejectedTable = "staging_rejected"
	AuditLogTable        = "audit_log"
	RankHistoryTable     = "rank_history"
	LeagueStandingsTable = "league_standings"
)

// --------------------------------------------------------------------------
// Season year — the only true process-wide mutable-at-startup state (§9).
// Sourced from the `seasons` table with `is_current = true`; falls back to
// a hard-coded constant when the table is empty or unreachable.
// --------------------------------------------------------------------------

// FallbackSeasonYear is used when the seasons table has no current row.
const FallbackSeasonYear = 2025

// ResolveSeasonYear reads the current season year from the database.
// Read-only after startup: callers load it once and pass it down explicitly
// rather than re-querying per component (§9 "Global state").
func ResolveSeasonYear(ctx context.Context, pool *pgxpool.Pool) int {
	if pool == nil {
		return FallbackSeasonYear
	}
	var year int
	err := pool.QueryRow(ctx, `SELECT year FROM seasons WHERE is_current = true LIMIT 1`).Scan(&year)
	if err != nil {
		return FallbackSeasonYear
	}
	return year
}

// --------------------------------------------------------------------------
// Validator policy — known platforms, date bounds, recreational regexes.
// Treated as a policy parameter per spec §9 Open Questions, not guessed.
// --------------------------------------------------------------------------

// ValidatorConfig holds the intake validator's configurable policy knobs.
type ValidatorConfig struct {
	KnownPlatforms  map[string]bool
	MinDate         time.Time
	MaxDate         time.Time
	MinAge          int // youngest allowed age implied by extracted birth year
	MaxAge          int // oldest allowed age implied by extracted birth year
	RecreationalRes []*regexp.Regexp
}

// DefaultValidatorConfig returns the reference policy described in §4.C.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		KnownPlatforms: map[string]bool{
			"gotsport":          true,
			"playmetrics":       true,
			"totalglobalsports": true,
			"demosphere":        true,
			"leagueapps":        true,
			"tgs":               true,
			"heartland":         true,
			"legacy-archive":    true,
		},
		MinDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxDate: time.Date(2027, 12, 31, 23, 59, 59, 0, time.UTC),
		MinAge:  5,
		MaxAge:  20,
		RecreationalRes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\brec(reational)?\b`),
			regexp.MustCompile(`(?i)\bhouse\s*league\b`),
			regexp.MustCompile(`(?i)\bintramural\b`),
		},
	}
}

// --------------------------------------------------------------------------
// Birth-year domain — [currentSeason-19, currentSeason-7] per invariant 10.
// --------------------------------------------------------------------------

// BirthYearBounds returns the valid birth-year window for the given season.
func BirthYearBounds(seasonYear int) (min, max int) {
	return seasonYear - 19, seasonYear - 7
}

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// StatementTimeoutProbe applies to write-capability probes and health
	// checks (seconds, not minutes). StatementTimeoutLong applies to
	// reconciliation and promotion batches.
	StatementTimeoutProbe time.Duration
	StatementTimeoutLong  time.Duration

	// Diagnostic HTTP server (cmd/diagnose-server)
	APIHost           string
	APIPort           int
	Environment       string
	Debug             bool
	CORSAllowOrigins  []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Checkpoint directory for adapter checkpoint files.
	CheckpointDir string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("MATCHPIPE_DATABASE_URL", envOr("DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("MATCHPIPE_DATABASE_URL or DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		StatementTimeoutProbe: time.Duration(envInt("STATEMENT_TIMEOUT_PROBE_SECONDS", 30)) * time.Second,
		StatementTimeoutLong:  time.Duration(envInt("STATEMENT_TIMEOUT_LONG_MINUTES", 5)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8090)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),
		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		CheckpointDir: envOr("CHECKPOINT_DIR", "./checkpoints"),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
