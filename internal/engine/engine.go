// Package engine implements the core scraper engine (spec §4.B): drives
// one adapter to completion, resiliently, writing only to staging tables.
// Grounded on cmd/ingest/main.go's runSeed shape (config → pool →
// context-with-signal) generalized into a long-lived Engine value that a
// CLI command constructs once and calls Run on.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/albapepper/matchpipe/internal/adapter"
	"github.com/albapepper/matchpipe/internal/config"
)

// Options configures one Run invocation (§4.B.1).
type Options struct {
	EventID    string // explicit event, takes precedence over discovery
	ActiveOnly bool
	Resume     bool
	DryRun     bool
}

// Stats summarizes one Run (§4.B.1).
type Stats struct {
	EventsFound      int
	EventsProcessed  int
	EventsSuccessful int
	EventsFailed     int
	EventsSkipped    int
	MatchesFound     int
	MatchesStaged    int
	Runtime          time.Duration
	Errors           []string // only the first 5 error messages are kept (§4.B.10)
}

const maxSummaryErrors = 5

func (s *Stats) addError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if len(s.Errors) < maxSummaryErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// Engine drives a single Adapter to completion.
type Engine struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	httpClient *http.Client
	browser    *browserSession // nil unless the adapter needs JS execution
	seasonYear int

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter // one token bucket per adapter ID
}

// New constructs an Engine bound to pool. Callers perform the write-
// capability probe (§4.B.2 step 2) via Probe before calling Run.
func New(pool *pgxpool.Pool, logger *slog.Logger, seasonYear int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pool:       pool,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		seasonYear: seasonYear,
		limiters:   map[string]*rate.Limiter{},
	}
}

// limiterFor returns the token-bucket limiter enforcing a's minimum
// request spacing, creating it on first use. One bucket per adapter ID so
// concurrent adapters don't throttle each other. Grounded on
// bdl/client.go's per-client rate.Limiter, generalized to one per adapter.
func (e *Engine) limiterFor(a *adapter.Adapter) *rate.Limiter {
	e.limitersMu.Lock()
	defer e.limitersMu.Unlock()

	if lim, ok := e.limiters[a.ID]; ok {
		return lim
	}

	delay := a.RateLimit.RequestDelayMin
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	lim := rate.NewLimiter(rate.Every(delay), 1)
	e.limiters[a.ID] = lim
	return lim
}

// Probe performs the write-capability probe (§4.B.2 step 2): insert-then-
// delete a marker row in staging under a throwaway source key. A failure
// here is fatal — the configured credentials cannot write staging.
func (e *Engine) Probe(ctx context.Context) error {
	const probeKey = "write-capability-probe"

	var id int64
	err := e.pool.QueryRow(ctx, `
		INSERT INTO `+config.StagingGamesTable+`
			(source_platform, source_match_key, home_team_raw, away_team_raw, match_date, scraped_at)
		VALUES ('__probe__', $1, '__probe__', '__probe__', now(), now())
		RETURNING id`, probeKey).Scan(&id)
	if err != nil {
		return fmt.Errorf("write-capability probe insert failed: %w", err)
	}

	if _, err := e.pool.Exec(ctx, `DELETE FROM `+config.StagingGamesTable+` WHERE id = $1`, id); err != nil {
		return fmt.Errorf("write-capability probe cleanup failed: %w", err)
	}
	return nil
}

// Run drives a to completion per options, returning accumulated Stats.
// Per §4.B.10, per-event errors are caught and recorded; only a setup
// failure (browser launch, checkpoint load, or event discovery) aborts the
// whole run.
func (e *Engine) Run(ctx context.Context, a *adapter.Adapter, opts Options) (Stats, error) {
	start := time.Now()
	stats := Stats{}

	if a.Technology == adapter.TechSPAJavaScript || a.Technology == adapter.TechMixed {
		sess, err := newBrowserSession(ctx)
		if err != nil {
			return stats, fmt.Errorf("launch headless browser: %w", err)
		}
		e.browser = sess
		defer func() {
			if cerr := e.browser.Close(); cerr != nil {
				e.logger.Warn("browser close failed", "error", cerr)
			}
		}()
	}

	cp, err := loadCheckpoint(a.CheckpointFile)
	if err != nil {
		return stats, fmt.Errorf("load checkpoint: %w", err)
	}
	if !opts.Resume {
		cp = newCheckpoint(a.ID)
	}

	events, err := e.discoverEvents(ctx, a, opts)
	if err != nil {
		return stats, fmt.Errorf("discover events: %w", err)
	}
	stats.EventsFound = len(events)

	if opts.ActiveOnly {
		events = filterActive(events, time.Now().UTC().Year())
	}
	if a.Policy.MaxEventsPerRun > 0 && len(events) > a.Policy.MaxEventsPerRun {
		events = events[:a.Policy.MaxEventsPerRun]
	}

	cleanRun := true
	for _, ev := range events {
		if cp.HasProcessed(ev.SourceEventID) {
			stats.EventsSkipped++
			continue
		}

		matches, err := e.scrapeOneEvent(ctx, a, ev)
		stats.EventsProcessed++

		if err != nil {
			stats.EventsFailed++
			stats.addError("event %s: %v", ev.SourceEventID, err)
			cp.MarkProcessed(ev.SourceEventID) // prevent infinite retry (§4.B.6)
			cleanRun = false
			if saveErr := cp.Save(a.CheckpointFile); saveErr != nil {
				e.logger.Warn("checkpoint save failed", "error", saveErr)
			}
			continue
		}

		stats.MatchesFound += len(matches)
		if len(matches) == 0 {
			// 0-match events are retried next run (§4.B.6).
			stats.EventsSkipped++
			continue
		}

		if !opts.DryRun {
			staged, err := e.writeStaging(ctx, a, ev, matches)
			if err != nil {
				stats.EventsFailed++
				stats.addError("stage event %s: %v", ev.SourceEventID, err)
				cp.MarkProcessed(ev.SourceEventID)
				cleanRun = false
				continue
			}
			stats.MatchesStaged += staged
		}

		stats.EventsSuccessful++
		cp.MarkProcessed(ev.SourceEventID)
		if a.SaveAfterEachItem {
			if saveErr := cp.Save(a.CheckpointFile); saveErr != nil {
				e.logger.Warn("checkpoint save failed", "error", saveErr)
			}
		}
	}

	if cleanRun {
		if err := clearCheckpoint(a.CheckpointFile); err != nil {
			e.logger.Warn("checkpoint clear failed", "error", err)
		}
	} else if err := cp.Save(a.CheckpointFile); err != nil {
		e.logger.Warn("final checkpoint save failed", "error", err)
	}

	stats.Runtime = time.Since(start)
	e.logger.Info("run complete",
		"adapter", a.ID,
		"events_found", stats.EventsFound, "events_processed", stats.EventsProcessed,
		"events_successful", stats.EventsSuccessful, "events_failed", stats.EventsFailed,
		"matches_found", stats.MatchesFound, "matches_staged", stats.MatchesStaged,
		"runtime", stats.Runtime.Round(time.Millisecond))

	return stats, nil
}

func filterActive(events []adapter.Event, currentYear int) []adapter.Event {
	out := events[:0]
	for _, ev := range events {
		if ev.Year >= currentYear-1 {
			out = append(out, ev)
		}
	}
	return out
}
