package promotion

import "testing"

func TestEventLinkageLeague(t *testing.T) {
	leagueID, tournamentID := eventLinkage(true, 42)
	if leagueID == nil || *leagueID != 42 {
		t.Fatalf("leagueID = %v, want 42", leagueID)
	}
	if tournamentID != nil {
		t.Fatalf("tournamentID = %v, want nil", tournamentID)
	}
}

func TestEventLinkageTournament(t *testing.T) {
	leagueID, tournamentID := eventLinkage(false, 7)
	if tournamentID == nil || *tournamentID != 7 {
		t.Fatalf("tournamentID = %v, want 7", tournamentID)
	}
	if leagueID != nil {
		t.Fatalf("leagueID = %v, want nil", leagueID)
	}
}
