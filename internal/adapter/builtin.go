package adapter

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Registry returns every built-in adapter keyed by ID, for CLI resolution
// (`pipeline scrape --adapter <id>`). A production deployment would load
// additional adapters from config; the built-ins cover the two reference
// technologies (§4.A).
func Registry() map[string]func() Adapter {
	return map[string]func() Adapter{
		"gotsport-sample":   NewHTMLScheduleAdapter,
		"leagueapps-sample": NewHTTPAPIRegistryAdapter,
	}
}

// NewHTMLScheduleAdapter returns a sample html-static adapter for a source
// that publishes one schedule-table page per event, with group links
// discovered from the event page (§4.A, §4.B.4 default parsing path).
func NewHTMLScheduleAdapter() Adapter {
	return Adapter{
		ID:         "gotsport-sample",
		Name:       "GotSport Schedule Tables",
		Technology: TechHTMLStatic,

		BaseURL:   "https://system.gotsport.com",
		EventPath: "/org_event/events/{eventId}",
		GroupPath: "/org_event/events/{eventId}/schedules?group={groupId}",

		RateLimit: RateLimitPolicy{
			RequestDelayMin:   800 * time.Millisecond,
			RequestDelayMax:   2200 * time.Millisecond,
			PerItemDelay:      0,
			PerIterationDelay: 1500 * time.Millisecond,
			CooldownOn429:     2 * time.Minute,
			CooldownOn500:     30 * time.Second,
			RetryDelays:       []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second},
			MaxRetries:        3,
		},

		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		},

		Parsing: ParsingContract{
			Columns: ColumnMap{
				MatchNumber: 0,
				DateTime:    1,
				HomeTeam:    2,
				Score:       3,
				AwayTeam:    4,
				Location:    5,
				Division:    6,
			},
			ExpectedColumns:   7,
			GroupLinkSelector: "a.schedule-group-link",
		},

		MatchKeyTemplate: "{source}-{eventId}-{matchNumber}",

		Hooks: TransformHooks{
			ParseDate:         parseGotSportDate,
			ParseScore:        parseDashScore,
			ParseDivision:     parseGotSportDivision,
			NormalizeTeamName: strings.TrimSpace,
			InferState:        inferStateFromVenue,
		},

		Policy: DataPolicy{
			MinDate:         time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			MaxEventsPerRun: 200,
			IsValidMatch: func(m ParsedMatch) bool {
				return m.HomeTeamRaw != "" && m.AwayTeamRaw != "" && !m.MatchDate.IsZero()
			},
		},

		CheckpointFile:    "gotsport-sample.checkpoint.json",
		SaveAfterEachItem: false,
	}
}

// NewHTTPAPIRegistryAdapter returns a sample http-api adapter for a source
// that exposes a JSON registry/roster feed rather than HTML tables. Its
// Discovery is DB-backed (§4.B.7): rather than a static event list, it asks
// the engine for events implied by recent production data.
func NewHTTPAPIRegistryAdapter() Adapter {
	return Adapter{
		ID:         "leagueapps-sample",
		Name:       "LeagueApps Registry Feed",
		Technology: TechHTTPAPI,

		BaseURL:   "https://api.leagueapps.io",
		EventPath: "/v2/events/{eventId}/games",

		RateLimit: RateLimitPolicy{
			RequestDelayMin:   300 * time.Millisecond,
			RequestDelayMax:   900 * time.Millisecond,
			PerIterationDelay: 500 * time.Millisecond,
			CooldownOn429:     90 * time.Second,
			CooldownOn500:     20 * time.Second,
			RetryDelays:       []time.Duration{2 * time.Second, 8 * time.Second},
			MaxRetries:        2,
		},

		UserAgents: []string{
			"matchpipe-ingest/1.0 (+https://github.com/albapepper/matchpipe)",
		},

		MatchKeyTemplate: "{source}-{eventId}-{matchNumber}",

		Hooks: TransformHooks{
			ParseDate:         parseISODate,
			ParseScore:        parseDashScore,
			ParseDivision:     parseLeagueAppsDivision,
			NormalizeTeamName: strings.TrimSpace,
		},

		Policy: DataPolicy{
			MinDate:         time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			MaxEventsPerRun: 500,
			IsValidMatch: func(m ParsedMatch) bool {
				return m.HomeTeamRaw != "" && m.AwayTeamRaw != ""
			},
		},

		Discovery: Discovery{
			DiscoverEvents: func(ctx context.Context, eng EngineFacade) ([]Event, error) {
				return eng.DiscoverFromDatabase(ctx, "leagueapps-sample", 14, 60)
			},
		},

		CheckpointFile:    "leagueapps-sample.checkpoint.json",
		SaveAfterEachItem: true,
	}
}

func parseGotSportDate(raw string) (time.Time, bool, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, "", false
	}
	parts := strings.SplitN(raw, " ", 2)
	d, err := time.Parse("01/02/2006", parts[0])
	if err != nil {
		return time.Time{}, false, "", false
	}
	if len(parts) == 2 {
		if _, terr := time.Parse("3:04 PM", parts[1]); terr == nil {
			return d, true, parts[1], true
		}
	}
	return d, false, "", true
}

func parseISODate(raw string) (time.Time, bool, string, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true, t.Format("3:04 PM"), true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, false, "", true
	}
	return time.Time{}, false, "", false
}

func parseDashScore(raw string) (home, away *int, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" || raw == "TBD" {
		return nil, nil, false
	}
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return nil, nil, false
	}
	h, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
	a, errA := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errH != nil || errA != nil {
		return nil, nil, false
	}
	return &h, &a, true
}

func parseGotSportDivision(raw string) DivisionInfo {
	raw = strings.TrimSpace(raw)
	info := DivisionInfo{AgeGroup: raw}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "boys") || strings.Contains(lower, " b "):
		m := "M"
		info.Gender = &m
	case strings.Contains(lower, "girls") || strings.Contains(lower, " g "):
		f := "F"
		info.Gender = &f
	}
	return info
}

func parseLeagueAppsDivision(raw string) DivisionInfo {
	return parseGotSportDivision(raw)
}

func inferStateFromVenue(venue string) *string {
	knownSuffixes := map[string]string{
		", TX": "TX", ", CA": "CA", ", FL": "FL", ", GA": "GA",
		", NC": "NC", ", OH": "OH", ", PA": "PA", ", NY": "NY",
	}
	for suffix, state := range knownSuffixes {
		if strings.HasSuffix(venue, suffix) {
			s := state
			return &s
		}
	}
	return nil
}
