package guardian

import "testing"

func TestNormalizeSpeaker(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"Allotron":       "allotron",
		"§cSiPeRNiK§r":   "csipernikr",
		"Spider-Dog!":    "spiderdog",
		"Ник_Нейм":       "ник_нейм",
		"[VIP] nikita 2": "vip nikita 2",
	}
	for in, want := range tests {
		if got := NormalizeSpeaker(in); got != want {
			t.Errorf("NormalizeSpeaker(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllowList(t *testing.T) {
	t.Parallel()
	a := ParseAllowList("SiPeRNiK, nikita, , SpiderDog,Allotron")
	if a.Open() {
		t.Fatal("list with entries reported open")
	}
	if got := len(a.Fragments()); got != 4 {
		t.Fatalf("fragments = %d, want 4", got)
	}
	tests := []struct {
		speaker string
		want    bool
	}{
		{"Allotron", true},
		{"xX_Allotron_Xx", true},
		{"Spider-Dog", true},
		{"NIKITA", true},
		{"griefer", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := a.Authorized(tt.speaker); got != tt.want {
			t.Errorf("Authorized(%q) = %v, want %v", tt.speaker, got, tt.want)
		}
	}
}

func TestAllowListEmptyIsOpen(t *testing.T) {
	t.Parallel()
	a := ParseAllowList(" , ")
	if !a.Open() {
		t.Fatal("blank list should be open")
	}
	if !a.Authorized("anyone") {
		t.Fatal("open list must authorize every speaker")
	}
}
