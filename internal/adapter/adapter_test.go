package adapter

import "testing"

func TestBuildMatchKeySubstitutesAllTokens(t *testing.T) {
	a := Adapter{ID: "gotsport-sample", MatchKeyTemplate: "{source}-{eventId}-{matchNumber}"}

	got := a.BuildMatchKey("evt42", "7")
	want := "gotsport-sample-evt42-7"
	if got != want {
		t.Fatalf("BuildMatchKey = %q, want %q", got, want)
	}
}

func TestBuildMatchKeyMissingTokenLeftLiteral(t *testing.T) {
	a := Adapter{ID: "leagueapps-sample", MatchKeyTemplate: "{source}-{unknownToken}"}

	got := a.BuildMatchKey("evt1", "1")
	want := "leagueapps-sample-{unknownToken}"
	if got != want {
		t.Fatalf("BuildMatchKey = %q, want %q", got, want)
	}
}

func TestRegistryResolvesBuiltinAdapters(t *testing.T) {
	reg := Registry()

	for _, id := range []string{"gotsport-sample", "leagueapps-sample"} {
		build, ok := reg[id]
		if !ok {
			t.Fatalf("Registry missing adapter %q", id)
		}
		a := build()
		if a.ID != id {
			t.Fatalf("Registry[%q]().ID = %q, want %q", id, a.ID, id)
		}
	}
}

func TestRegistryUnknownIDNotFound(t *testing.T) {
	if _, ok := Registry()["nonexistent"]; ok {
		t.Fatal("expected unknown adapter ID to be absent from Registry")
	}
}
