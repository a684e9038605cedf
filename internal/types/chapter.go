// Package types provides shared types used across multiple packages.
// This package has no dependencies on other outline packages to avoid import cycles.
package types

import "strings"

// ParentPathSeparator joins ancestor titles in Chapter.ParentPath.
const ParentPathSeparator = " > "

// Chapter is a single heading in a document outline.
// Chapters are produced once per document and never mutated by the mapper.
type Chapter struct {
	Title      string `json:"title" yaml:"title"`
	Level      int    `json:"level" yaml:"level"`       // Heading level, 1 = top
	Position   int    `json:"position" yaml:"position"` // 0-based index in source order
	Content    string `json:"content,omitempty" yaml:"content,omitempty"`
	ParentPath string `json:"parent_path,omitempty" yaml:"parent_path,omitempty"`
	HTMLID     string `json:"html_id,omitempty" yaml:"html_id,omitempty"`
}

// ConfidenceLevel buckets a mapping confidence score.
type ConfidenceLevel string

const (
	// ConfidenceHigh is used for scores >= 0.8.
	ConfidenceHigh ConfidenceLevel = "high"
	// ConfidenceMedium is used for scores >= 0.5.
	ConfidenceMedium ConfidenceLevel = "medium"
	// ConfidenceLow is used for everything else.
	ConfidenceLow ConfidenceLevel = "low"
)

// ParseConfidenceLevel converts a string to a ConfidenceLevel.
// Returns ConfidenceLow if the string is not recognized.
func ParseConfidenceLevel(s string) ConfidenceLevel {
	switch s {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConfidenceFor buckets a score into a ConfidenceLevel.
func ConfidenceFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Normalize returns a copy of chapters with positions reassigned to source order
// and parent paths rebuilt from the heading hierarchy. Levels below 1 are clamped to 1.
func Normalize(chapters []Chapter) []Chapter {
	out := make([]Chapter, len(chapters))
	copy(out, chapters)
	for i := range out {
		out[i].Position = i
		if out[i].Level < 1 {
			out[i].Level = 1
		}
	}
	BuildParentPaths(out)
	return out
}

// BuildParentPaths fills ParentPath for each chapter in place using a heading stack:
// a chapter's ancestors are the nearest preceding chapters with a strictly smaller level.
func BuildParentPaths(chapters []Chapter) {
	var stack []Chapter
	for i := range chapters {
		for len(stack) > 0 && stack[len(stack)-1].Level >= chapters[i].Level {
			stack = stack[:len(stack)-1]
		}
		titles := make([]string, len(stack))
		for j, s := range stack {
			titles[j] = s.Title
		}
		chapters[i].ParentPath = strings.Join(titles, ParentPathSeparator)
		stack = append(stack, chapters[i])
	}
}

// GroupByLevel partitions chapter indices by heading level, preserving source order.
func GroupByLevel(chapters []Chapter) map[int][]int {
	groups := make(map[int][]int)
	for i, ch := range chapters {
		groups[ch.Level] = append(groups[ch.Level], i)
	}
	return groups
}
