package validator

import (
	"testing"
	"time"

	"github.com/albapepper/matchpipe/internal/config"
)

func validDate(t *testing.T) *time.Time {
	t.Helper()
	d := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &d
}

func baseRecord(t *testing.T) Record {
	return Record{
		HomeTeamRaw:    "FC Dallas 2014B",
		AwayTeamRaw:    "Solar SC 2014B",
		MatchDate:      validDate(t),
		SourcePlatform: "gotsport",
		SourceMatchKey: "gotsport-1234-5",
		EventName:      "Spring Classic",
		CurrentSeason:  2025,
	}
}

func TestValidateRecordValid(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	res := ValidateRecord(baseRecord(t), cfg)
	if !res.Valid {
		t.Fatalf("expected valid record, got rejections %v", res.Rejections)
	}
}

func TestValidateRecordEmptyTeams(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	rec.HomeTeamRaw = "   "
	res := ValidateRecord(rec, cfg)
	if res.Valid || res.PrimaryCode() != CodeEmptyHomeTeam {
		t.Fatalf("expected %s, got %v", CodeEmptyHomeTeam, res.Rejections)
	}
}

func TestValidateRecordSameTeam(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	rec.AwayTeamRaw = "fc dallas 2014b"
	rec.HomeTeamRaw = "FC Dallas 2014B"
	res := ValidateRecord(rec, cfg)
	found := false
	for _, c := range res.Rejections {
		if c == CodeSameTeam {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SAME_TEAM among %v", res.Rejections)
	}
}

func TestValidateRecordInvalidDate(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	rec.MatchDate = nil
	res := ValidateRecord(rec, cfg)
	if res.Valid || !contains(res.Rejections, CodeInvalidDate) {
		t.Fatalf("expected INVALID_DATE among %v", res.Rejections)
	}
}

func TestValidateRecordFutureDate(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.MatchDate = &future
	res := ValidateRecord(rec, cfg)
	if !contains(res.Rejections, CodeFutureDate) {
		t.Fatalf("expected FUTURE_DATE_2027 among %v", res.Rejections)
	}
}

func TestValidateRecordUnknownPlatform(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	rec.SourcePlatform = "mystery-feed"
	res := ValidateRecord(rec, cfg)
	if !contains(res.Rejections, CodeUnknownPlatform) {
		t.Fatalf("expected UNKNOWN_PLATFORM among %v", res.Rejections)
	}
}

func TestValidateRecordInvalidBirthYear(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	year := 2021 // implies age 4 at season 2025, below MinAge 5
	rec.BirthYear = &year
	res := ValidateRecord(rec, cfg)
	if !contains(res.Rejections, CodeInvalidBirthYear) {
		t.Fatalf("expected INVALID_BIRTH_YEAR among %v", res.Rejections)
	}
}

func TestValidateRecordRecreational(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	rec.EventName = "Fall Recreational League"
	res := ValidateRecord(rec, cfg)
	if !contains(res.Rejections, CodeRecreational) {
		t.Fatalf("expected RECREATIONAL_LEVEL among %v", res.Rejections)
	}
}

func TestValidateRecordControlCharAutoFix(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	rec := baseRecord(t)
	rec.SourceMatchKey = "gotsport-1234-5\nextra-garbage"
	res := ValidateRecord(rec, cfg)
	if len(res.Fixes) == 0 {
		t.Fatal("expected an auto-fix to be recorded")
	}
	if res.Record.SourceMatchKey != "gotsport-1234-5" {
		t.Fatalf("source_match_key = %q, want %q", res.Record.SourceMatchKey, "gotsport-1234-5")
	}
}

func TestValidateBatchPartitions(t *testing.T) {
	cfg := config.DefaultValidatorConfig()
	good := baseRecord(t)
	bad := baseRecord(t)
	bad.HomeTeamRaw = ""

	out := ValidateBatch([]Record{good, bad}, cfg)
	if len(out.Valid) != 1 || len(out.Rejected) != 1 {
		t.Fatalf("expected 1 valid, 1 rejected, got %d/%d", len(out.Valid), len(out.Rejected))
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
