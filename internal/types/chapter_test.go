package types

import "testing"

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{1.0, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.79, ConfidenceMedium},
		{0.5, ConfidenceMedium},
		{0.49, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tt := range tests {
		if got := ConfidenceFor(tt.score); got != tt.want {
			t.Errorf("ConfidenceFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestParseConfidenceLevel(t *testing.T) {
	if ParseConfidenceLevel("high") != ConfidenceHigh {
		t.Error("expected high")
	}
	if ParseConfidenceLevel("medium") != ConfidenceMedium {
		t.Error("expected medium")
	}
	if ParseConfidenceLevel("bogus") != ConfidenceLow {
		t.Error("expected unknown values to map to low")
	}
}

func TestNormalize(t *testing.T) {
	in := []Chapter{
		{Title: "1 Intro", Level: 1, Position: 7},
		{Title: "1.1 Scope", Level: 2},
		{Title: "1.1.1 Terms", Level: 3},
		{Title: "1.2 Goals", Level: 2},
		{Title: "2 Design", Level: 0},
	}

	out := Normalize(in)

	if in[0].Position != 7 {
		t.Error("Normalize must not mutate its input")
	}
	for i, ch := range out {
		if ch.Position != i {
			t.Errorf("out[%d].Position = %d", i, ch.Position)
		}
	}
	if out[4].Level != 1 {
		t.Errorf("level should be clamped to 1, got %d", out[4].Level)
	}

	wantPaths := []string{
		"",
		"1 Intro",
		"1 Intro > 1.1 Scope",
		"1 Intro",
		"",
	}
	for i, want := range wantPaths {
		if out[i].ParentPath != want {
			t.Errorf("out[%d].ParentPath = %q, want %q", i, out[i].ParentPath, want)
		}
	}
}

func TestGroupByLevel(t *testing.T) {
	chapters := []Chapter{
		{Title: "a", Level: 1},
		{Title: "b", Level: 2},
		{Title: "c", Level: 1},
	}
	groups := GroupByLevel(chapters)
	if len(groups[1]) != 2 || groups[1][0] != 0 || groups[1][1] != 2 {
		t.Errorf("level 1 = %v", groups[1])
	}
	if len(groups[2]) != 1 || groups[2][0] != 1 {
		t.Errorf("level 2 = %v", groups[2])
	}
}
