package mapping

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jackzampolin/outline/internal/textsim"
	"github.com/jackzampolin/outline/internal/types"
)

// Structure issue kinds.
const (
	IssueLevelJump   = "level_jump"
	IssueSiblingJump = "sibling_jump"
	IssueOrphan      = "orphan_heading"
)

// StructureIssue is a heading hierarchy problem in one outline.
type StructureIssue struct {
	Kind      string `json:"kind" yaml:"kind"`
	Path      string `json:"path" yaml:"path"`
	FromLevel int    `json:"from_level" yaml:"from_level"`
	ToLevel   int    `json:"to_level" yaml:"to_level"`
	Message   string `json:"message" yaml:"message"`
}

// StructureIssues walks the heading hierarchy and reports headings nested
// more than one level below their parent, consecutive numbered siblings whose
// numbering skips (1.1 then 1.3), and headings that appear before any heading
// of the outline's top level.
func StructureIssues(chapters []types.Chapter) []StructureIssue {
	issues := []StructureIssue{}
	if len(chapters) == 0 {
		return issues
	}
	top := chapters[0].Level
	for _, ch := range chapters[1:] {
		top = min(top, ch.Level)
	}

	var stack []types.Chapter
	for _, ch := range chapters {
		var prev *types.Chapter
		for len(stack) > 0 && stack[len(stack)-1].Level >= ch.Level {
			if last := stack[len(stack)-1]; last.Level == ch.Level {
				prev = &last
			}
			stack = stack[:len(stack)-1]
		}
		names := make([]string, 0, len(stack)+1)
		for _, s := range stack {
			names = append(names, s.Title)
		}
		path := strings.Join(append(names, ch.Title), types.ParentPathSeparator)

		if len(stack) == 0 {
			if ch.Level > top {
				issues = append(issues, StructureIssue{
					Kind:      IssueOrphan,
					Path:      path,
					FromLevel: top,
					ToLevel:   ch.Level,
					Message:   fmt.Sprintf("H%d heading appears before any H%d heading", ch.Level, top),
				})
			}
		} else if parent := stack[len(stack)-1]; ch.Level > parent.Level+1 {
			issues = append(issues, StructureIssue{
				Kind:      IssueLevelJump,
				Path:      path,
				FromLevel: parent.Level,
				ToLevel:   ch.Level,
				Message:   fmt.Sprintf("heading level jumps from H%d to H%d", parent.Level, ch.Level),
			})
		}
		if prev != nil {
			if issue, ok := siblingJump(*prev, ch, path); ok {
				issues = append(issues, issue)
			}
		}
		stack = append(stack, ch)
	}
	return issues
}

// siblingJump reports a numbering gap between two consecutive siblings that
// share a number prefix.
func siblingJump(prev, ch types.Chapter, path string) (StructureIssue, bool) {
	pn, cn := textsim.ExtractNumber(prev.Title), textsim.ExtractNumber(ch.Title)
	if len(pn) == 0 || len(pn) != len(cn) || !slices.Equal(pn[:len(pn)-1], cn[:len(cn)-1]) {
		return StructureIssue{}, false
	}
	if cn[len(cn)-1] == pn[len(pn)-1]+1 {
		return StructureIssue{}, false
	}
	return StructureIssue{
		Kind:      IssueSiblingJump,
		Path:      path,
		FromLevel: prev.Level,
		ToLevel:   ch.Level,
		Message:   fmt.Sprintf("numbering jumps from %s to %s", textsim.FormatNumber(pn), textsim.FormatNumber(cn)),
	}, true
}
