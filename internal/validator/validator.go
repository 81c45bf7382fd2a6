// Package validator implements the intake validator (spec §4.C): a pure,
// per-record function that classifies a staged match row as valid or
// rejected, plus the batch sweep that applies it against staging_games.
package validator

import (
	"regexp"
	"strings"
	"time"

	"github.com/albapepper/matchpipe/internal/config"
)

// controlCharRe matches the first newline/tab/CR in a string, used by the
// source_match_key auto-fix.
var controlCharRe = regexp.MustCompile(`[\n\t\r]`)

// Rejection codes, in priority order — the first one triggered on a record
// becomes its primary code if multiple apply.
const (
	CodeEmptyHomeTeam    = "EMPTY_HOME_TEAM"
	CodeEmptyAwayTeam    = "EMPTY_AWAY_TEAM"
	CodeSameTeam         = "SAME_TEAM"
	CodeInvalidDate      = "INVALID_DATE"
	CodeFutureDate       = "FUTURE_DATE_2027"
	CodePastDate         = "PAST_DATE_2020"
	CodeUnknownPlatform  = "UNKNOWN_PLATFORM"
	CodeInvalidBirthYear = "INVALID_BIRTH_YEAR"
	CodeRecreational     = "RECREATIONAL_LEVEL"
)

// Record is the subset of a staged row the validator inspects. BirthYear is
// nil when the normalizer could not extract one (absence of a birth year is
// not itself a rejection — only an out-of-range one is).
type Record struct {
	HomeTeamRaw     string
	AwayTeamRaw     string
	MatchDate       *time.Time
	SourcePlatform  string
	SourceMatchKey  string
	EventName       string
	BirthYear       *int
	CurrentSeason   int
}

// Result is the outcome of validating one record.
type Result struct {
	Valid      bool
	Rejections []string // all triggered codes, in priority order
	Fixes      []string // human-readable description of auto-fixes applied
	Record     Record   // possibly fixed copy of the input
}

// PrimaryCode returns the first rejection code, or "" if the record is
// valid. This is what staging_rejected stores as its code column.
func (r Result) PrimaryCode() string {
	if len(r.Rejections) == 0 {
		return ""
	}
	return r.Rejections[0]
}

// ReasonString joins all triggered rejection codes for the archive row.
func (r Result) ReasonString() string {
	return strings.Join(r.Rejections, "; ")
}

// ValidateRecord runs every rejection check against rec and applies the
// source_match_key control-character auto-fix, returning the outcome. It
// reads cfg for known platforms, date bounds, age bounds, and recreational
// patterns — never a global.
func ValidateRecord(rec Record, cfg config.ValidatorConfig) Result {
	res := Result{Valid: true, Record: rec}

	fixedKey, fixed := cleanMatchKey(rec.SourceMatchKey)
	if fixed {
		res.Record.SourceMatchKey = fixedKey
		res.Fixes = append(res.Fixes, "source_match_key truncated at control character")
	}

	if isBlank(res.Record.HomeTeamRaw) {
		res.Rejections = append(res.Rejections, CodeEmptyHomeTeam)
	}
	if isBlank(res.Record.AwayTeamRaw) {
		res.Rejections = append(res.Rejections, CodeEmptyAwayTeam)
	}
	if !isBlank(res.Record.HomeTeamRaw) && !isBlank(res.Record.AwayTeamRaw) &&
		strings.EqualFold(strings.TrimSpace(res.Record.HomeTeamRaw), strings.TrimSpace(res.Record.AwayTeamRaw)) {
		res.Rejections = append(res.Rejections, CodeSameTeam)
	}

	if res.Record.MatchDate == nil {
		res.Rejections = append(res.Rejections, CodeInvalidDate)
	} else {
		d := *res.Record.MatchDate
		if d.After(cfg.MaxDate) {
			res.Rejections = append(res.Rejections, CodeFutureDate)
		}
		if d.Before(cfg.MinDate) {
			res.Rejections = append(res.Rejections, CodePastDate)
		}
	}

	if !cfg.KnownPlatforms[strings.ToLower(strings.TrimSpace(res.Record.SourcePlatform))] {
		res.Rejections = append(res.Rejections, CodeUnknownPlatform)
	}

	if res.Record.BirthYear != nil {
		season := res.Record.CurrentSeason
		if season == 0 {
			season = config.FallbackSeasonYear
		}
		age := season - *res.Record.BirthYear
		if age < cfg.MinAge || age > cfg.MaxAge {
			res.Rejections = append(res.Rejections, CodeInvalidBirthYear)
		}
	}

	if matchesAny(cfg.RecreationalRes, res.Record.SourceMatchKey) || matchesAny(cfg.RecreationalRes, res.Record.EventName) {
		res.Rejections = append(res.Rejections, CodeRecreational)
	}

	res.Valid = len(res.Rejections) == 0
	return res
}

// BatchResult summarizes ValidateBatch's pass over a slice of records.
type BatchResult struct {
	Valid      []Record
	Rejected   []Result
	FixedCount int
}

// ValidateBatch runs ValidateRecord over every record and partitions the
// results — pure, callable by scrapers pre-insert (§4.C).
func ValidateBatch(recs []Record, cfg config.ValidatorConfig) BatchResult {
	out := BatchResult{}
	for _, rec := range recs {
		res := ValidateRecord(rec, cfg)
		if len(res.Fixes) > 0 {
			out.FixedCount++
		}
		if res.Valid {
			out.Valid = append(out.Valid, res.Record)
		} else {
			out.Rejected = append(out.Rejected, res)
		}
	}
	return out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re != nil && re.MatchString(s) {
			return true
		}
	}
	return false
}

// cleanMatchKey truncates source_match_key at the first control character
// and trims the result, reporting whether a fix was applied (§4.C
// Auto-fixes).
func cleanMatchKey(key string) (string, bool) {
	loc := controlCharRe.FindStringIndex(key)
	if loc == nil {
		return key, false
	}
	return strings.TrimSpace(key[:loc[0]]), true
}
