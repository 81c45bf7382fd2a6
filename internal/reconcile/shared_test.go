package reconcile

import "testing"

func TestNewReportSetsOperatorAndDryRun(t *testing.T) {
	r := newReport("dedup", true)
	if r.Operator != "dedup" || !r.DryRun {
		t.Fatalf("newReport = %+v, want Operator=dedup DryRun=true", r)
	}
	if r.StartedAt.IsZero() {
		t.Fatal("expected StartedAt to be set")
	}
}

func TestReportFinishSetsDuration(t *testing.T) {
	r := newReport("orphan", false)
	r.finish()
	if r.Duration < 0 {
		t.Fatalf("expected a non-negative Duration after finish, got %v", r.Duration)
	}
}
