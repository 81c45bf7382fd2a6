// Package normalizer implements pure functions that extract a canonical
// team identity — name, birth year, gender — from a raw, scraper-supplied
// team name string (spec §4.D). Nothing here touches the network or the
// database; every function is deterministic and idempotent by construction,
// which is what lets the promotion engine call ExtractIdentity freely
// without worrying about double-processing.
package normalizer

import (
	"regexp"
	"strconv"
	"strings"
)

// Identity is the result of ExtractIdentity.
type Identity struct {
	CanonicalName string
	BirthYear     *int // nil when no year could be extracted
	Gender        *string // "M", "F", or nil

	// MainBirthYear and SuffixBirthYear are both populated when the main
	// body of the name and its trailing parenthesized suffix independently
	// imply a birth year. Reconciliation flags birth_year_conflict when
	// they disagree (§4.D note) — the normalizer itself never guesses
	// which one is right.
	MainBirthYear   *int
	SuffixBirthYear *int
}

// HasConflict reports whether the main name and suffix imply different
// birth years.
func (id Identity) HasConflict() bool {
	return id.MainBirthYear != nil && id.SuffixBirthYear != nil && *id.MainBirthYear != *id.SuffixBirthYear
}

var (
	suffixParenRe = regexp.MustCompile(`\s*\(([^)]*)\)\s*$`)
	whitespaceRe  = regexp.MustCompile(`\s+`)

	// Birth-year patterns, in priority order (§4.D).
	fourDigitYearRe   = regexp.MustCompile(`\b(20(0[7-9]|1[0-9]))\s*B?\b`)
	twoDigitWithBGRe  = regexp.MustCompile(`\b(\d{2})\s*[BG]\b|\b[BG]\s*(\d{2})\b`)
	trailingTwoDigitRe = regexp.MustCompile(`\b(\d{2})\s*$`)
	premierAcademyRe  = regexp.MustCompile(`(?i)\b(premier|academy|nal|elite|select)\b\D*(\d{2})\b`)
	suffixUAgeRe      = regexp.MustCompile(`(?i)\bU-?(\d{1,2})\s*$`)
	inlineUAgeRe      = regexp.MustCompile(`(?i)\bU-?(\d{1,2})\b`)

	// Gender patterns (§4.D).
	suffixBoysGirlsRe = regexp.MustCompile(`(?i)\b(boys|girls)\s*$`)
	inlineNNBGRe      = regexp.MustCompile(`(?i)\b\d{2}\s*(B|G|Boys|Girls)\b`)
	inlineBNNRe       = regexp.MustCompile(`(?i)\b(B|G)\d{2}\b`)
	yearGenderRe      = regexp.MustCompile(`(?i)(20\d{2})\s*([BG])\b`)
)

const (
	minExtractedYear = 2007
	maxExtractedYear = 2019
)

// Canonicalize runs steps 1-4 of §4.D and returns the lowercase, collapsed
// canonical name (without birth year / gender extraction).
//
// Canonicalize(Canonicalize(x)) == Canonicalize(x) for any raw name — the
// duplicate-prefix collapse and suffix split are both no-ops on their own
// output.
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = collapseDuplicatePrefix(s)
	s = suffixParenRe.ReplaceAllString(s, "")
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRe.ReplaceAllString(s, " ")
	return s
}

// collapseDuplicatePrefix implements step 2: a common scraper bug doubles
// either the first word or the first two words of a team name. The
// collapse repeats until no doubled prefix remains, so its output is a
// fixed point.
//
//	strip("A A B") == strip("A B") == "A B"
func collapseDuplicatePrefix(s string) string {
	words := strings.Fields(s)
	collapsed := false
	for {
		if len(words) >= 4 && equalFoldSlices(words[0:2], words[2:4]) {
			words = words[2:]
		} else if len(words) >= 2 && strings.EqualFold(words[0], words[1]) {
			words = words[1:]
		} else {
			break
		}
		collapsed = true
	}
	if !collapsed {
		return s
	}
	return strings.Join(words, " ")
}

func equalFoldSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ExtractIdentity runs the full pipeline: canonicalization, birth-year
// extraction, gender extraction. It is idempotent: re-running it on its own
// CanonicalName with the already-extracted birth year appended would yield
// the same identity (the function only ever reads from raw strings, never
// mutates global state).
func ExtractIdentity(raw string) Identity {
	trimmed := strings.TrimSpace(raw)
	deduped := collapseDuplicatePrefix(trimmed)

	mainBody := deduped
	suffix := ""
	if m := suffixParenRe.FindStringSubmatch(deduped); m != nil {
		suffix = m[1]
		mainBody = suffixParenRe.ReplaceAllString(deduped, "")
	}

	canonical := strings.ToLower(strings.TrimSpace(mainBody))
	canonical = whitespaceRe.ReplaceAllString(canonical, " ")

	mainYear := extractBirthYear(mainBody)
	suffixYear := extractBirthYear(suffix)

	year := mainYear
	if year == nil {
		year = suffixYear
	}

	gender := extractGender(mainBody)
	if gender == nil {
		gender = extractGender(suffix)
	}

	return Identity{
		CanonicalName:   canonical,
		BirthYear:       year,
		Gender:          gender,
		MainBirthYear:   mainYear,
		SuffixBirthYear: suffixYear,
	}
}

// ExtractBirthYearForSeason resolves U-age suffixes relative to a season
// year; all other patterns are season-independent. currentSeasonYear is
// the single authoritative constant named in spec §9 — callers pass it
// explicitly rather than reading a global.
func ExtractBirthYearForSeason(raw string, currentSeasonYear int) *int {
	if y := extractBirthYear(raw); y != nil {
		return y
	}
	if m := suffixUAgeRe.FindStringSubmatch(raw); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil && age >= 7 && age <= 19 {
			year := currentSeasonYear - age
			return &year
		}
	}
	if m := inlineUAgeRe.FindStringSubmatch(raw); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil && age >= 7 && age <= 19 {
			year := currentSeasonYear - age
			return &year
		}
	}
	return nil
}

// extractBirthYear implements priority steps 1-4 of the birth-year
// extraction pipeline (U-age steps 5-6 require a season year and are
// handled by ExtractBirthYearForSeason).
func extractBirthYear(s string) *int {
	if m := fourDigitYearRe.FindStringSubmatch(s); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			return &y
		}
	}

	if m := twoDigitWithBGRe.FindStringSubmatch(s); m != nil {
		dd := m[1]
		if dd == "" {
			dd = m[2]
		}
		if y, ok := twoDigitToYear(dd); ok {
			return &y
		}
	}

	if m := trailingTwoDigitRe.FindStringSubmatch(s); m != nil {
		if y, ok := twoDigitToYear(m[1]); ok {
			return &y
		}
	}

	if m := premierAcademyRe.FindStringSubmatch(s); m != nil {
		if y, ok := twoDigitToYear(m[2]); ok {
			return &y
		}
	}

	return nil
}

// twoDigitToYear maps a 2-digit year to a 4-digit year: dd<=30 -> 2000+dd,
// else 1900+dd; the result is filtered to [2007, 2019] per §4.D step 2.
func twoDigitToYear(dd string) (int, bool) {
	n, err := strconv.Atoi(dd)
	if err != nil {
		return 0, false
	}
	year := 1900 + n
	if n <= 30 {
		year = 2000 + n
	}
	if year < minExtractedYear || year > maxExtractedYear {
		return 0, false
	}
	return year, true
}

func extractGender(s string) *string {
	if m := suffixBoysGirlsRe.FindStringSubmatch(s); m != nil {
		return genderFromWord(m[1])
	}
	if m := inlineNNBGRe.FindStringSubmatch(s); m != nil {
		return genderFromWord(m[1])
	}
	if m := inlineBNNRe.FindStringSubmatch(s); m != nil {
		return genderFromWord(m[1])
	}
	// A 4-digit year directly followed by B/G ("2014B") has no word boundary
	// between the year's last digit and the letter, so none of the patterns
	// above match it.
	if m := yearGenderRe.FindStringSubmatch(s); m != nil {
		return genderFromWord(m[2])
	}
	return nil
}

func genderFromWord(w string) *string {
	lower := strings.ToLower(w)
	var g string
	switch {
	case strings.HasPrefix(lower, "b"):
		g = "M"
	case strings.HasPrefix(lower, "g"):
		g = "F"
	default:
		return nil
	}
	return &g
}
