package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/albapepper/matchpipe/internal/adapter"
)

// scrapeOneEvent implements §4.B.4: either defers to the adapter's own
// scrapeEvent hook, or runs the default group-per-event HTML algorithm.
func (e *Engine) scrapeOneEvent(ctx context.Context, a *adapter.Adapter, ev adapter.Event) ([]adapter.ParsedMatch, error) {
	facade := adapterFacade{engine: e, a: a}

	if a.ScrapeEvent != nil {
		return a.ScrapeEvent(ctx, facade, ev)
	}

	groupURLs, err := e.discoverGroupLinks(ctx, a, ev)
	if err != nil {
		return nil, fmt.Errorf("discover group links: %w", err)
	}

	var out []adapter.ParsedMatch
	seenKeys := map[string]bool{}

	for _, groupURL := range groupURLs {
		matches, err := e.scrapeGroupPage(ctx, a, ev, groupURL)
		if err != nil {
			return nil, fmt.Errorf("scrape group %s: %w", groupURL, err)
		}
		for _, m := range matches {
			key := a.BuildMatchKey(ev.SourceEventID, m.MatchNumber)
			if seenKeys[key] {
				continue // de-duplicate within the event by source_match_key (§4.B.4 step 5)
			}
			seenKeys[key] = true
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *Engine) discoverGroupLinks(ctx context.Context, a *adapter.Adapter, ev adapter.Event) ([]string, error) {
	eventURL := renderAdapterPath(a.BaseURL+a.EventPath, ev.SourceEventID, "")

	html, err := e.fetchHTML(ctx, a, eventURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse event page: %w", err)
	}

	var links []string
	doc.Find(a.Parsing.GroupLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			links = append(links, href)
		}
	})
	return links, nil
}

// scrapeGroupPage implements §4.B.4 steps 2-4: fetch the schedule page,
// iterate rows with exactly expectedColumns columns, map columns to
// fields, skip rows whose score cell lacks the '-' separator, and apply
// adapter transform hooks.
func (e *Engine) scrapeGroupPage(ctx context.Context, a *adapter.Adapter, ev adapter.Event, groupURL string) ([]adapter.ParsedMatch, error) {
	html, err := e.fetchHTML(ctx, a, groupURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse group page: %w", err)
	}

	var out []adapter.ParsedMatch

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != a.Parsing.ExpectedColumns {
			return
		}

		cols := make([]string, cells.Length())
		cells.Each(func(i int, cell *goquery.Selection) {
			cols[i] = strings.TrimSpace(cell.Text())
		})

		scoreCell := colAt(cols, a.Parsing.Columns.Score)
		if !strings.Contains(scoreCell, "-") {
			return // skip rows whose score cell lacks the separator (§4.B.4 step 2)
		}

		matchDate, hasTime, matchTime, ok := a.Hooks.ParseDate(colAt(cols, a.Parsing.Columns.DateTime))
		if !ok {
			return
		}

		if matchDate.Before(a.Policy.MinDate) {
			return // §4.B.4 step 3
		}

		homeScore, awayScore, _ := a.Hooks.ParseScore(scoreCell)
		division := a.Hooks.ParseDivision(colAt(cols, a.Parsing.Columns.Division))
		venue := colAt(cols, a.Parsing.Columns.Location)

		var state *string
		if a.Hooks.InferState != nil {
			state = a.Hooks.InferState(venue)
		}

		m := adapter.ParsedMatch{
			HomeTeamRaw: a.Hooks.NormalizeTeamName(colAt(cols, a.Parsing.Columns.HomeTeam)),
			AwayTeamRaw: a.Hooks.NormalizeTeamName(colAt(cols, a.Parsing.Columns.AwayTeam)),
			MatchDate:   matchDate,
			HasTime:     hasTime,
			MatchTime:   matchTime,
			HomeScore:   homeScore,
			AwayScore:   awayScore,
			Division:    division,
			Venue:       venue,
			State:       state,
			MatchNumber: colAt(cols, a.Parsing.Columns.MatchNumber),
		}

		if a.Policy.IsValidMatch != nil && !a.Policy.IsValidMatch(m) {
			return
		}

		out = append(out, m)
	})

	return out, nil
}

func colAt(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return cols[idx]
}

func renderAdapterPath(tmpl, eventID, groupID string) string {
	out := strings.ReplaceAll(tmpl, "{eventId}", eventID)
	out = strings.ReplaceAll(out, "{groupId}", groupID)
	return out
}

// matchStatus implements §4.B.4 step 3's status tag: completed iff both
// scores are set and the date is past.
func matchStatus(m adapter.ParsedMatch, now time.Time) string {
	if m.HomeScore != nil && m.AwayScore != nil && m.MatchDate.Before(now) {
		return "completed"
	}
	return "scheduled"
}
