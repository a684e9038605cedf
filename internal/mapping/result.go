package mapping

import (
	"github.com/jackzampolin/outline/internal/types"
)

// SummaryTotal is the Summary key holding the number of mappings.
const SummaryTotal = "total"

func aggregate(template, target []types.Chapter, mappings []ChapterMapping, used usedSet, patterns []RenumberingPattern) MappingResult {
	res := MappingResult{
		Mappings:         mappings,
		UnmappedTemplate: []types.Chapter{},
		UnmappedTarget:   []types.Chapter{},
		Patterns:         patterns,
		Summary:          newSummary(),
	}
	if res.Patterns == nil {
		res.Patterns = []RenumberingPattern{}
	}

	var sum float64
	for _, mp := range mappings {
		sum += mp.Confidence
		res.Summary[string(mp.MatchType)]++
		if mp.Missing() {
			res.UnmappedTemplate = append(res.UnmappedTemplate, mp.TemplateChapter)
		}
	}
	res.Summary[SummaryTotal] = len(mappings)
	if len(mappings) > 0 {
		res.OverallConfidence = sum / float64(len(mappings))
	}

	for gi, ch := range target {
		if !used.has(gi) {
			res.UnmappedTarget = append(res.UnmappedTarget, ch)
		}
	}
	return res
}

func newSummary() map[string]int {
	s := map[string]int{SummaryTotal: 0}
	for _, mt := range MatchTypes {
		s[string(mt)] = 0
	}
	return s
}

// allMissing is the result of a run that could not align anything.
func allMissing(template, target []types.Chapter, note string) MappingResult {
	mappings := make([]ChapterMapping, len(template))
	for i := range template {
		mappings[i] = missingMapping(template, i, note)
	}
	res := aggregate(template, target, mappings, usedSet{}, nil)
	res.Degraded = true
	res.Metrics.SimilarityCells = len(template) * len(target)
	return res
}

// Statistics summarizes a MappingResult for reporting.
type Statistics struct {
	TotalTemplate          int                           `json:"total_template" yaml:"total_template"`
	TotalTarget            int                           `json:"total_target" yaml:"total_target"`
	Successful             int                           `json:"successful" yaml:"successful"`
	Failed                 int                           `json:"failed" yaml:"failed"`
	MappingRate            float64                       `json:"mapping_rate" yaml:"mapping_rate"`
	ConfidenceDistribution map[types.ConfidenceLevel]int `json:"confidence_distribution" yaml:"confidence_distribution"`
	MatchTypeDistribution  map[MatchType]int             `json:"match_type_distribution" yaml:"match_type_distribution"`
	PatternCount           int                           `json:"pattern_count" yaml:"pattern_count"`
}

// Statistics computes mapping counts and distributions. Missing mappings count
// as failed and are not part of the confidence distribution.
func (r MappingResult) Statistics() Statistics {
	st := Statistics{
		TotalTemplate: len(r.Mappings),
		ConfidenceDistribution: map[types.ConfidenceLevel]int{
			types.ConfidenceHigh:   0,
			types.ConfidenceMedium: 0,
			types.ConfidenceLow:    0,
		},
		MatchTypeDistribution: make(map[MatchType]int),
		PatternCount:          len(r.Patterns),
	}
	for _, mp := range r.Mappings {
		st.MatchTypeDistribution[mp.MatchType]++
		if mp.Missing() {
			st.Failed++
			continue
		}
		st.Successful++
		st.ConfidenceDistribution[mp.ConfidenceLevel]++
	}
	st.TotalTarget = st.Successful + len(r.UnmappedTarget)
	if st.TotalTemplate > 0 {
		st.MappingRate = float64(st.Successful) / float64(st.TotalTemplate)
	}
	return st
}
