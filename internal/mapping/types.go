// Package mapping aligns a target document's chapter outline with a template
// outline. It detects systematic renumbering, scores every template/target pair
// on several signals, and assigns targets to template chapters level by level.
package mapping

import (
	"time"

	"github.com/jackzampolin/outline/internal/types"
)

// MatchType is the kind of evidence that justified a mapping.
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchSimilar    MatchType = "similar"
	MatchSemantic   MatchType = "semantic"
	MatchPositional MatchType = "positional"
	MatchNone       MatchType = "none"
)

// MatchTypes lists every match type in reporting order.
var MatchTypes = []MatchType{MatchExact, MatchSimilar, MatchSemantic, MatchPositional, MatchNone}

// PatternType classifies a systematic numbering change.
type PatternType string

const (
	PatternOffset    PatternType = "offset"
	PatternReorder   PatternType = "reorder"
	PatternInsertion PatternType = "insertion"
	PatternDeletion  PatternType = "deletion"
	PatternMixed     PatternType = "mixed"
	PatternNone      PatternType = "none"
)

// SimilarityScores are the per-pair component scores, all in [0,1].
// Semantic is the oracle's score; Overall is the blended result.
type SimilarityScores struct {
	Title     float64 `json:"title" yaml:"title"`
	Content   float64 `json:"content" yaml:"content"`
	Position  float64 `json:"position" yaml:"position"`
	Structure float64 `json:"structure" yaml:"structure"`
	Semantic  float64 `json:"semantic" yaml:"semantic"`
	Overall   float64 `json:"overall" yaml:"overall"`
}

// ExamplePair is a (template title, target title) illustration of a pattern.
// One side is empty for insertions and deletions.
type ExamplePair struct {
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
	Level    int    `json:"level,omitempty" yaml:"level,omitempty"`
}

// RenumberingPattern describes a numbering change detected between the outlines.
// For offsets, LevelOffsets holds the shift found at each affected level and
// OffsetValue the shift of the most confident level.
type RenumberingPattern struct {
	Type           PatternType   `json:"type" yaml:"type"`
	OffsetValue    int           `json:"offset_value,omitempty" yaml:"offset_value,omitempty"`
	LevelOffsets   map[int]int   `json:"level_offsets,omitempty" yaml:"level_offsets,omitempty"`
	AffectedLevels []int         `json:"affected_levels" yaml:"affected_levels"`
	Confidence     float64       `json:"confidence" yaml:"confidence"`
	Examples       []ExamplePair `json:"examples,omitempty" yaml:"examples,omitempty"`
	Description    string        `json:"description" yaml:"description"`
}

// Affects reports whether the pattern applies to heading level.
func (p RenumberingPattern) Affects(level int) bool {
	for _, l := range p.AffectedLevels {
		if l == level {
			return true
		}
	}
	return false
}

// ChapterMapping pairs one template chapter with at most one target chapter.
// TargetChapter is nil when the template chapter is missing from the target.
type ChapterMapping struct {
	TemplateChapter types.Chapter         `json:"template_chapter" yaml:"template_chapter"`
	TargetChapter   *types.Chapter        `json:"target_chapter" yaml:"target_chapter"`
	TemplateIndex   int                   `json:"template_index" yaml:"template_index"`
	TargetIndex     int                   `json:"target_index" yaml:"target_index"` // -1 when missing
	MatchType       MatchType             `json:"match_type" yaml:"match_type"`
	Confidence      float64               `json:"confidence" yaml:"confidence"`
	ConfidenceLevel types.ConfidenceLevel `json:"confidence_level" yaml:"confidence_level"`
	Scores          SimilarityScores      `json:"scores" yaml:"scores"`
	Reasoning       string                `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Notes           string                `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Missing reports whether the template chapter has no counterpart.
func (m ChapterMapping) Missing() bool {
	return m.TargetChapter == nil
}

// Metrics records the cost of one mapping run.
type Metrics struct {
	Duration        time.Duration `json:"duration" yaml:"duration"`
	OracleCalls     int           `json:"oracle_calls" yaml:"oracle_calls"`
	SimilarityCells int           `json:"similarity_cells" yaml:"similarity_cells"`
}

// MappingResult is the complete alignment of a target outline to a template.
// Mappings has exactly one entry per template chapter, in template order.
type MappingResult struct {
	Mappings          []ChapterMapping     `json:"mappings" yaml:"mappings"`
	UnmappedTemplate  []types.Chapter      `json:"unmapped_template" yaml:"unmapped_template"`
	UnmappedTarget    []types.Chapter      `json:"unmapped_target" yaml:"unmapped_target"`
	Patterns          []RenumberingPattern `json:"patterns" yaml:"patterns"`
	OverallConfidence float64              `json:"overall_confidence" yaml:"overall_confidence"`
	Summary           map[string]int       `json:"summary" yaml:"summary"`

	// Degraded is set when an oracle call, a level, or the whole run failed
	// and the result may under-report matches.
	Degraded bool    `json:"degraded" yaml:"degraded"`
	Metrics  Metrics `json:"metrics" yaml:"metrics"`
}
