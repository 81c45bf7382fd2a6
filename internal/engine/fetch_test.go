package engine

import (
	"testing"
	"time"

	"github.com/albapepper/matchpipe/internal/adapter"
)

func TestRetryDelayForIndexesSchedule(t *testing.T) {
	policy := adapter.RateLimitPolicy{
		RetryDelays: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 4 * time.Second}, // beyond schedule clamps to the last entry
	}

	for _, c := range cases {
		got := retryDelayFor(policy, c.attempt)
		if got != c.want {
			t.Errorf("retryDelayFor(attempt=%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestRetryDelayForEmptySchedule(t *testing.T) {
	if got := retryDelayFor(adapter.RateLimitPolicy{}, 0); got != time.Second {
		t.Fatalf("expected a 1s default fallback, got %v", got)
	}
}

func TestPickUserAgentEmptyFallsBack(t *testing.T) {
	if ua := pickUserAgent(nil); ua == "" {
		t.Fatal("expected a non-empty fallback user agent")
	}
}

func TestPickUserAgentChoosesFromList(t *testing.T) {
	agents := []string{"agent-a"}
	if ua := pickUserAgent(agents); ua != "agent-a" {
		t.Fatalf("expected the only listed agent, got %q", ua)
	}
}

func TestFilterActiveDropsOldEvents(t *testing.T) {
	events := []adapter.Event{
		{SourceEventID: "old", Year: 2020},
		{SourceEventID: "recent", Year: 2025},
		{SourceEventID: "current", Year: 2026},
	}

	got := filterActive(events, 2026)

	var ids []string
	for _, e := range got {
		ids = append(ids, e.SourceEventID)
	}
	if len(ids) != 2 || ids[0] != "recent" || ids[1] != "current" {
		t.Fatalf("expected [recent current], got %v", ids)
	}
}
