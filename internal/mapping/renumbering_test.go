package mapping

import (
	"math"
	"slices"
	"testing"

	"github.com/jackzampolin/outline/internal/types"
)

type heading struct {
	level int
	title string
}

func outline(hs ...heading) []types.Chapter {
	out := make([]types.Chapter, len(hs))
	for i, h := range hs {
		out[i] = types.Chapter{Title: h.title, Level: h.level}
	}
	return types.Normalize(out)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func patternTypes(ps []RenumberingPattern) []PatternType {
	out := make([]PatternType, len(ps))
	for i, p := range ps {
		out[i] = p.Type
	}
	return out
}

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name     string
		template []types.Chapter
		target   []types.Chapter
		want     []PatternType
		check    func(t *testing.T, ps []RenumberingPattern)
	}{
		{
			name:     "same cardinality shift is an offset",
			template: outline(heading{1, "1 Alpha"}, heading{1, "2 Beta"}, heading{1, "3 Gamma"}),
			target:   outline(heading{1, "2 Alpha"}, heading{1, "3 Beta"}, heading{1, "4 Gamma"}),
			want:     []PatternType{PatternOffset},
			check: func(t *testing.T, ps []RenumberingPattern) {
				p := ps[0]
				if p.OffsetValue != 1 || !approx(p.Confidence, 1.0) {
					t.Errorf("offset = %d confidence = %v, want 1 and 1.0", p.OffsetValue, p.Confidence)
				}
				if len(p.Examples) != 3 {
					t.Errorf("examples = %d, want 3", len(p.Examples))
				}
				if p.Description != "numbering shifted by +1 at H1" {
					t.Errorf("description = %q", p.Description)
				}
			},
		},
		{
			name: "shrinking sequence is a deletion, not an offset",
			template: outline(
				heading{4, "4.6.1.1 One"}, heading{4, "4.6.1.2 Two"}, heading{4, "4.6.1.3 Three"},
				heading{4, "4.6.1.4 Four"}, heading{4, "4.6.1.5 Five"},
			),
			target: outline(
				heading{4, "4.6.1.2 Two"}, heading{4, "4.6.1.3 Three"},
				heading{4, "4.6.1.4 Four"}, heading{4, "4.6.1.5 Five"},
			),
			want: []PatternType{PatternDeletion},
			check: func(t *testing.T, ps []RenumberingPattern) {
				p := ps[0]
				if p.Confidence < 0.1 {
					t.Errorf("confidence = %v, want >= 0.1", p.Confidence)
				}
				if !slices.Equal(p.AffectedLevels, []int{4}) {
					t.Errorf("levels = %v", p.AffectedLevels)
				}
				if len(p.Examples) != 1 || p.Examples[0].Template != "4.6.1.1 One" {
					t.Errorf("examples = %+v", p.Examples)
				}
			},
		},
		{
			name:     "growing sequence is an insertion",
			template: outline(heading{1, "1. Overview"}, heading{1, "2. Design"}),
			target:   outline(heading{1, "1. Overview"}, heading{1, "2. Requirements"}, heading{1, "3. Design"}),
			want:     []PatternType{PatternInsertion},
			check: func(t *testing.T, ps []RenumberingPattern) {
				if !approx(ps[0].Confidence, 1.0/3.0) {
					t.Errorf("confidence = %v, want 1/3", ps[0].Confidence)
				}
			},
		},
		{
			name: "swapped pair is a reorder",
			template: outline(
				heading{2, "1 A"}, heading{2, "2 B"}, heading{2, "3 C"}, heading{2, "4 D"},
			),
			target: outline(
				heading{2, "2 B"}, heading{2, "1 A"}, heading{2, "3 C"}, heading{2, "4 D"},
			),
			want: []PatternType{PatternReorder},
			check: func(t *testing.T, ps []RenumberingPattern) {
				if !approx(ps[0].Confidence, 0.5) {
					t.Errorf("confidence = %v, want 0.5", ps[0].Confidence)
				}
			},
		},
		{
			name: "insertion and deletion at different levels add mixed",
			template: outline(
				heading{1, "1 A"}, heading{2, "1.1 x"}, heading{2, "1.2 y"}, heading{2, "1.3 z"},
				heading{1, "2 B"},
			),
			target: outline(
				heading{1, "1 A"}, heading{2, "1.1 x"}, heading{2, "1.2 y"},
				heading{1, "2 B"}, heading{1, "3 C"},
			),
			want: []PatternType{PatternMixed, PatternInsertion, PatternDeletion},
			check: func(t *testing.T, ps []RenumberingPattern) {
				if !approx(ps[0].Confidence, 0.7) || !slices.Equal(ps[0].AffectedLevels, []int{1, 2}) {
					t.Errorf("mixed = %+v", ps[0])
				}
				if ps[0].Description != "insertions and deletions at H1, H2" {
					t.Errorf("description = %q", ps[0].Description)
				}
			},
		},
		{
			name:     "unnumbered titles are ignored",
			template: outline(heading{1, "Overview"}, heading{1, "Design"}),
			target:   outline(heading{1, "Design"}, heading{1, "Overview"}, heading{1, "Notes"}),
			want:     []PatternType{},
		},
		{
			name:     "single numbered title per side is too few",
			template: outline(heading{1, "1 Overview"}),
			target:   outline(heading{1, "2 Overview"}),
			want:     []PatternType{},
		},
	}

	d := NewDetector(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Detect(tt.template, tt.target)
			if res.Degraded {
				t.Fatal("unexpected degraded detection")
			}
			if got := patternTypes(res.Patterns); !slices.Equal(got, tt.want) {
				t.Fatalf("patterns = %v, want %v", got, tt.want)
			}
			if tt.check != nil {
				tt.check(t, res.Patterns)
			}
		})
	}
}

func TestMergePatterns(t *testing.T) {
	raw := []RenumberingPattern{
		{Type: PatternOffset, OffsetValue: 1, AffectedLevels: []int{2}, Confidence: 0.6,
			Examples: []ExamplePair{{Template: "a", Target: "b"}, {Template: "c", Target: "d"}, {Template: "e", Target: "f"}}},
		{Type: PatternDeletion, AffectedLevels: []int{1}, Confidence: 0.9},
		{Type: PatternOffset, OffsetValue: -2, AffectedLevels: []int{4}, Confidence: 1.0,
			Examples: []ExamplePair{{Template: "g", Target: "h"}, {Template: "i", Target: "j"}, {Template: "k", Target: "l"}}},
	}

	got := mergePatterns(raw)
	if len(got) != 2 {
		t.Fatalf("merged = %d patterns, want 2", len(got))
	}
	if got[0].Type != PatternDeletion || got[1].Type != PatternOffset {
		t.Fatalf("order = %v, want deletion then offset", patternTypes(got))
	}
	off := got[1]
	if !approx(off.Confidence, 0.8) {
		t.Errorf("confidence = %v, want average 0.8", off.Confidence)
	}
	if off.OffsetValue != -2 {
		t.Errorf("offset = %d, want value of most confident contributor", off.OffsetValue)
	}
	if !slices.Equal(off.AffectedLevels, []int{2, 4}) {
		t.Errorf("levels = %v", off.AffectedLevels)
	}
	if len(off.Examples) != maxMergedExamples {
		t.Errorf("examples = %d, want %d", len(off.Examples), maxMergedExamples)
	}
	if off.Description != "numbering shifted by +1 at H2; numbering shifted by -2 at H4" {
		t.Errorf("description = %q", off.Description)
	}
	if off.LevelOffsets[2] != 1 || off.LevelOffsets[4] != -2 {
		t.Errorf("level offsets = %v", off.LevelOffsets)
	}
}

func TestDetect_OffsetsDifferPerLevel(t *testing.T) {
	template := outline(
		heading{1, "1 Alpha"}, heading{2, "1.1 A"}, heading{2, "1.2 B"}, heading{2, "1.3 C"},
		heading{1, "2 Beta"}, heading{1, "3 Gamma"},
	)
	target := outline(
		heading{1, "2 Alpha"}, heading{2, "1.3 A"}, heading{2, "1.4 B"}, heading{2, "1.5 C"},
		heading{1, "3 Beta"}, heading{1, "4 Gamma"},
	)

	res := NewDetector(nil).Detect(template, target)
	if len(res.Patterns) != 1 || res.Patterns[0].Type != PatternOffset {
		t.Fatalf("patterns = %v", patternTypes(res.Patterns))
	}
	p := res.Patterns[0]
	if p.LevelOffsets[1] != 1 || p.LevelOffsets[2] != 2 {
		t.Errorf("level offsets = %v, want H1 +1 and H2 +2", p.LevelOffsets)
	}
	if p.Description != "numbering shifted by +1 at H1; numbering shifted by +2 at H2" {
		t.Errorf("description = %q", p.Description)
	}
	if !ValidatePattern(p) {
		t.Errorf("consistent per-level offsets rejected: %+v", p)
	}
}

func TestAnalyzeShift(t *testing.T) {
	none := AnalyzeShift(nil)
	if none.HasShift || len(none.AffectedLevels) != 0 {
		t.Errorf("empty analysis = %+v", none)
	}

	got := AnalyzeShift([]RenumberingPattern{
		{Type: PatternDeletion, AffectedLevels: []int{4}, Confidence: 0.2, Description: "chapters deleted at H4"},
		{Type: PatternOffset, AffectedLevels: []int{1, 4}, Confidence: 0.9, Description: "numbering shifted by +1 at H1, H4"},
	})
	if !got.HasShift || !approx(got.MaxConfidence, 0.9) {
		t.Errorf("analysis = %+v", got)
	}
	if !slices.Equal(got.AffectedLevels, []int{1, 4}) {
		t.Errorf("levels = %v", got.AffectedLevels)
	}
	if got.Summary != "chapters deleted at H4; numbering shifted by +1 at H1, H4" {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name string
		p    RenumberingPattern
		want bool
	}{
		{"consistent offset", RenumberingPattern{Type: PatternOffset, OffsetValue: 1, Confidence: 0.9,
			Examples: []ExamplePair{{Template: "1 A", Target: "2 A"}, {Template: "2.3 B", Target: "2.4 B"}}}, true},
		{"inconsistent offset", RenumberingPattern{Type: PatternOffset, OffsetValue: 1, Confidence: 0.9,
			Examples: []ExamplePair{{Template: "1 A", Target: "3 A"}}}, false},
		{"offset without numbers", RenumberingPattern{Type: PatternOffset, OffsetValue: 1, Confidence: 0.9,
			Examples: []ExamplePair{{Template: "A", Target: "B"}}}, false},
		{"per-level offsets", RenumberingPattern{Type: PatternOffset, OffsetValue: 1, Confidence: 0.9,
			LevelOffsets: map[int]int{1: 1, 2: 2},
			Examples: []ExamplePair{{Template: "1 A", Target: "2 A", Level: 1}, {Template: "1.1 B", Target: "1.3 B", Level: 2}}}, true},
		{"example off its level shift", RenumberingPattern{Type: PatternOffset, OffsetValue: 1, Confidence: 0.9,
			LevelOffsets: map[int]int{1: 1, 2: 2},
			Examples: []ExamplePair{{Template: "1.1 B", Target: "1.2 B", Level: 2}}}, false},
		{"low confidence", RenumberingPattern{Type: PatternReorder, Confidence: 0.2}, false},
		{"insertion with targets", RenumberingPattern{Type: PatternInsertion, Confidence: 0.5,
			Examples: []ExamplePair{{Target: "3 New"}}}, true},
		{"insertion without examples", RenumberingPattern{Type: PatternInsertion, Confidence: 0.5}, false},
		{"insertion with both sides", RenumberingPattern{Type: PatternInsertion, Confidence: 0.5,
			Examples: []ExamplePair{{Template: "2 Old", Target: "3 New"}}}, false},
		{"insertion of unnumbered heading", RenumberingPattern{Type: PatternInsertion, Confidence: 0.5,
			Examples: []ExamplePair{{Target: "Appendix"}}}, false},
		{"deletion with templates", RenumberingPattern{Type: PatternDeletion, Confidence: 0.5,
			Examples: []ExamplePair{{Template: "4.6.1.1 One"}}}, true},
		{"deletion missing template", RenumberingPattern{Type: PatternDeletion, Confidence: 0.5,
			Examples: []ExamplePair{{Target: "x"}}}, false},
		{"mixed", RenumberingPattern{Type: PatternMixed, Confidence: 0.7}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidatePattern(tt.p); got != tt.want {
				t.Errorf("ValidatePattern() = %v, want %v", got, tt.want)
			}
		})
	}
}
