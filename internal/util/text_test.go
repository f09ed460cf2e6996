package util

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := Tokenize(`RES 10k "0603" 1%, (thick film)`)
	want := []string{"RES", "10K", "0603", "1%", "THICK", "FILM"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode(" rc0603fr-0710kl "); got != "RC0603FR-0710KL" {
		t.Fatalf("got %q", got)
	}
}

func TestLooksLikeCode(t *testing.T) {
	if !LooksLikeCode("LM358DR") {
		t.Fatal("expected LM358DR to look like a code")
	}
	if LooksLikeCode("resistor") {
		t.Fatal("plain word should not look like a code")
	}
}

func TestDiceCoefficient(t *testing.T) {
	if got := DiceCoefficient("NE555", "NE555"); got != 1 {
		t.Fatalf("got %v", got)
	}
	if got := DiceCoefficient("AB", "CD"); got != 0 {
		t.Fatalf("got %v", got)
	}
	if got := DiceCoefficient("10K", "ERJ-10K"); got != 0.5 {
		t.Fatalf("got %v", got)
	}
	// repeated pairs are only matched as often as they occur
	if got := DiceCoefficient("AAA", "AA"); got != 2.0/3.0 {
		t.Fatalf("got %v", got)
	}
	if LooksLikeCode(" 1k ") {
		t.Fatal("two characters are not a code")
	}
}
