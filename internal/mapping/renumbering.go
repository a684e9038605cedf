package mapping

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/jackzampolin/outline/internal/textsim"
	"github.com/jackzampolin/outline/internal/types"
)

const (
	offsetMinRatio        = 0.6
	reorderMinConfidence  = 0.3
	changeMinConfidence   = 0.1
	mixedConfidence       = 0.7
	validMinConfidence    = 0.3
	minNumberedPerLevel   = 2
	minNumberedForReorder = 3
	maxLevelExamples      = 3
	maxMergedExamples     = 5
)

// DetectResult carries detected patterns. Degraded is set when detection
// failed internally and Patterns is empty as a result.
type DetectResult struct {
	Patterns []RenumberingPattern
	Degraded bool
}

// Detector finds systematic numbering changes between two outlines.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

type numbered struct {
	title string
	num   []int
}

func (n numbered) last() int {
	return n.num[len(n.num)-1]
}

func (n numbered) key() string {
	return textsim.FormatNumber(n.num)
}

// Detect compares the numeric prefixes of headings level by level. It never
// fails; an internal error yields an empty, degraded result.
func (d *Detector) Detect(template, target []types.Chapter) (res DetectResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("renumbering detection failed", "panic", r)
			res = DetectResult{Patterns: []RenumberingPattern{}, Degraded: true}
		}
	}()

	tmplLevels := types.GroupByLevel(template)
	tgtLevels := types.GroupByLevel(target)

	levels := make([]int, 0, len(tmplLevels))
	for lvl := range tmplLevels {
		if _, ok := tgtLevels[lvl]; ok {
			levels = append(levels, lvl)
		}
	}
	sort.Ints(levels)

	var raw []RenumberingPattern
	var insertLevels, deleteLevels []int
	for _, lvl := range levels {
		tn := numberedTitles(template, tmplLevels[lvl])
		gn := numberedTitles(target, tgtLevels[lvl])
		if len(tn) < minNumberedPerLevel || len(gn) < minNumberedPerLevel {
			continue
		}
		if p, ok := detectOffset(lvl, tn, gn); ok {
			raw = append(raw, p)
		}
		if p, ok := detectReorder(lvl, tn, gn); ok {
			raw = append(raw, p)
		}
		if p, ok := detectInsertion(lvl, tn, gn); ok {
			raw = append(raw, p)
			insertLevels = append(insertLevels, lvl)
		}
		if p, ok := detectDeletion(lvl, tn, gn); ok {
			raw = append(raw, p)
			deleteLevels = append(deleteLevels, lvl)
		}
	}

	if len(insertLevels) > 0 && len(deleteLevels) > 0 {
		affected := unionLevels(insertLevels, deleteLevels)
		raw = append(raw, RenumberingPattern{
			Type:           PatternMixed,
			AffectedLevels: affected,
			Confidence:     mixedConfidence,
		})
	}

	patterns := mergePatterns(raw)
	if len(patterns) > 0 {
		d.logger.Debug("detected renumbering patterns", "count", len(patterns))
	}
	return DetectResult{Patterns: patterns}
}

func numberedTitles(chapters []types.Chapter, idx []int) []numbered {
	out := make([]numbered, 0, len(idx))
	for _, i := range idx {
		if num := textsim.ExtractNumber(chapters[i].Title); len(num) > 0 {
			out = append(out, numbered{title: chapters[i].Title, num: num})
		}
	}
	return out
}

// detectOffset pairs numbered titles positionally. It only runs when both
// sides have the same count; a cardinality change is an insertion or deletion.
func detectOffset(level int, tn, gn []numbered) (RenumberingPattern, bool) {
	if len(tn) != len(gn) {
		return RenumberingPattern{}, false
	}

	counts := make(map[int]int)
	var order []int
	total := 0
	for i := range tn {
		if len(tn[i].num) != len(gn[i].num) {
			continue
		}
		total++
		delta := gn[i].last() - tn[i].last()
		if delta == 0 {
			continue
		}
		if counts[delta] == 0 {
			order = append(order, delta)
		}
		counts[delta]++
	}
	if total == 0 || len(order) == 0 {
		return RenumberingPattern{}, false
	}

	best := order[0]
	for _, delta := range order[1:] {
		if counts[delta] > counts[best] {
			best = delta
		}
	}
	ratio := float64(counts[best]) / float64(total)
	if ratio < offsetMinRatio {
		return RenumberingPattern{}, false
	}

	var examples []ExamplePair
	for i := range tn {
		if len(examples) == maxLevelExamples {
			break
		}
		if len(tn[i].num) == len(gn[i].num) && gn[i].last()-tn[i].last() == best {
			examples = append(examples, ExamplePair{Template: tn[i].title, Target: gn[i].title, Level: level})
		}
	}
	return RenumberingPattern{
		Type:           PatternOffset,
		OffsetValue:    best,
		LevelOffsets:   map[int]int{level: best},
		AffectedLevels: []int{level},
		Confidence:     ratio,
		Examples:       examples,
	}, true
}

func detectReorder(level int, tn, gn []numbered) (RenumberingPattern, bool) {
	if len(tn) < minNumberedForReorder || len(tn) != len(gn) {
		return RenumberingPattern{}, false
	}
	tl := make([]int, len(tn))
	gl := make([]int, len(gn))
	for i := range tn {
		tl[i] = tn[i].last()
		gl[i] = gn[i].last()
	}
	ts, gs := slices.Clone(tl), slices.Clone(gl)
	slices.Sort(ts)
	slices.Sort(gs)
	if !slices.Equal(ts, gs) {
		return RenumberingPattern{}, false
	}

	changed := 0
	var examples []ExamplePair
	for i := range tl {
		if tl[i] == gl[i] {
			continue
		}
		changed++
		if len(examples) < maxLevelExamples {
			examples = append(examples, ExamplePair{Template: tn[i].title, Target: gn[i].title, Level: level})
		}
	}
	if changed == 0 {
		return RenumberingPattern{}, false
	}
	conf := 1 - float64(changed)/float64(len(tl))
	if conf < reorderMinConfidence {
		return RenumberingPattern{}, false
	}
	return RenumberingPattern{
		Type:           PatternReorder,
		AffectedLevels: []int{level},
		Confidence:     conf,
		Examples:       examples,
	}, true
}

func detectInsertion(level int, tn, gn []numbered) (RenumberingPattern, bool) {
	if len(gn) <= len(tn) {
		return RenumberingPattern{}, false
	}
	added := difference(gn, tn)
	conf := float64(len(added)) / float64(len(gn))
	if len(added) == 0 || conf < changeMinConfidence {
		return RenumberingPattern{}, false
	}
	examples := make([]ExamplePair, 0, maxLevelExamples)
	for _, n := range added[:min(len(added), maxLevelExamples)] {
		examples = append(examples, ExamplePair{Target: n.title, Level: level})
	}
	return RenumberingPattern{
		Type:           PatternInsertion,
		AffectedLevels: []int{level},
		Confidence:     conf,
		Examples:       examples,
	}, true
}

func detectDeletion(level int, tn, gn []numbered) (RenumberingPattern, bool) {
	if len(tn) <= len(gn) {
		return RenumberingPattern{}, false
	}
	removed := difference(tn, gn)
	conf := float64(len(removed)) / float64(len(tn))
	if len(removed) == 0 || conf < changeMinConfidence {
		return RenumberingPattern{}, false
	}
	examples := make([]ExamplePair, 0, maxLevelExamples)
	for _, n := range removed[:min(len(removed), maxLevelExamples)] {
		examples = append(examples, ExamplePair{Template: n.title, Level: level})
	}
	return RenumberingPattern{
		Type:           PatternDeletion,
		AffectedLevels: []int{level},
		Confidence:     conf,
		Examples:       examples,
	}, true
}

// difference returns the entries of a whose number tuple does not occur in b.
func difference(a, b []numbered) []numbered {
	seen := make(map[string]struct{}, len(b))
	for _, n := range b {
		seen[n.key()] = struct{}{}
	}
	var out []numbered
	for _, n := range a {
		if _, ok := seen[n.key()]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// mergePatterns folds same-type patterns into one record in first-seen order,
// then sorts by confidence descending. Offsets keep every level's shift in
// LevelOffsets and the value of their most confident contributor in OffsetValue.
func mergePatterns(raw []RenumberingPattern) []RenumberingPattern {
	type acc struct {
		p       RenumberingPattern
		sum     float64
		n       int
		bestCon float64
	}
	var order []PatternType
	byType := make(map[PatternType]*acc)
	for _, p := range raw {
		a, ok := byType[p.Type]
		if !ok {
			a = &acc{p: RenumberingPattern{Type: p.Type, OffsetValue: p.OffsetValue}, bestCon: p.Confidence}
			byType[p.Type] = a
			order = append(order, p.Type)
		}
		a.p.AffectedLevels = unionLevels(a.p.AffectedLevels, p.AffectedLevels)
		if p.Type == PatternOffset {
			if a.p.LevelOffsets == nil {
				a.p.LevelOffsets = make(map[int]int)
			}
			for lvl, off := range levelOffsets(p) {
				a.p.LevelOffsets[lvl] = off
			}
		}
		for _, ex := range p.Examples {
			if len(a.p.Examples) < maxMergedExamples {
				a.p.Examples = append(a.p.Examples, ex)
			}
		}
		if p.Confidence > a.bestCon {
			a.bestCon = p.Confidence
			a.p.OffsetValue = p.OffsetValue
		}
		a.sum += p.Confidence
		a.n++
	}

	out := make([]RenumberingPattern, 0, len(order))
	for _, t := range order {
		a := byType[t]
		a.p.Confidence = a.sum / float64(a.n)
		a.p.Description = describe(a.p)
		out = append(out, a.p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// levelOffsets returns the per-level shifts of an offset pattern, falling back
// to OffsetValue for every affected level.
func levelOffsets(p RenumberingPattern) map[int]int {
	if len(p.LevelOffsets) > 0 {
		return p.LevelOffsets
	}
	out := make(map[int]int, len(p.AffectedLevels))
	for _, l := range p.AffectedLevels {
		out[l] = p.OffsetValue
	}
	return out
}

func unionLevels(a, b []int) []int {
	out := slices.Clone(a)
	for _, l := range b {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	slices.Sort(out)
	return out
}

func levelList(levels []int) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("H%d", l)
	}
	return strings.Join(parts, ", ")
}

func describe(p RenumberingPattern) string {
	at := levelList(p.AffectedLevels)
	switch p.Type {
	case PatternOffset:
		return describeOffsets(p)
	case PatternReorder:
		return "chapters reordered at " + at
	case PatternInsertion:
		return "chapters inserted at " + at
	case PatternDeletion:
		return "chapters deleted at " + at
	case PatternMixed:
		return "insertions and deletions at " + at
	default:
		return "no renumbering"
	}
}

// describeOffsets groups levels sharing a shift, e.g.
// "numbering shifted by +1 at H1, H3; numbering shifted by +2 at H2".
func describeOffsets(p RenumberingPattern) string {
	offsets := levelOffsets(p)
	levels := make([]int, 0, len(offsets))
	for l := range offsets {
		levels = append(levels, l)
	}
	slices.Sort(levels)

	var shifts []int
	byShift := make(map[int][]int)
	for _, l := range levels {
		off := offsets[l]
		if _, ok := byShift[off]; !ok {
			shifts = append(shifts, off)
		}
		byShift[off] = append(byShift[off], l)
	}
	if len(shifts) == 0 {
		return fmt.Sprintf("numbering shifted by %+d", p.OffsetValue)
	}
	parts := make([]string, len(shifts))
	for i, off := range shifts {
		parts[i] = fmt.Sprintf("numbering shifted by %+d at %s", off, levelList(byShift[off]))
	}
	return strings.Join(parts, "; ")
}

// ShiftAnalysis summarizes a set of detected patterns.
type ShiftAnalysis struct {
	HasShift       bool    `json:"has_shift" yaml:"has_shift"`
	AffectedLevels []int   `json:"affected_levels" yaml:"affected_levels"`
	MaxConfidence  float64 `json:"max_confidence" yaml:"max_confidence"`
	Summary        string  `json:"summary" yaml:"summary"`
}

// AnalyzeShift reports whether any renumbering was detected and where.
func AnalyzeShift(patterns []RenumberingPattern) ShiftAnalysis {
	out := ShiftAnalysis{AffectedLevels: []int{}}
	if len(patterns) == 0 {
		out.Summary = "no renumbering detected"
		return out
	}
	out.HasShift = true
	descs := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out.AffectedLevels = unionLevels(out.AffectedLevels, p.AffectedLevels)
		out.MaxConfidence = max(out.MaxConfidence, p.Confidence)
		descs = append(descs, p.Description)
	}
	out.Summary = strings.Join(descs, "; ")
	return out
}

// ValidatePattern reports whether a pattern is credible enough to act on:
// confidence of at least 0.3 and examples consistent with its type. Offset
// examples are checked against the shift of their own level.
func ValidatePattern(p RenumberingPattern) bool {
	if p.Confidence < validMinConfidence {
		return false
	}
	switch p.Type {
	case PatternOffset:
		if p.OffsetValue == 0 {
			return false
		}
		for _, ex := range p.Examples {
			want := p.OffsetValue
			if off, ok := p.LevelOffsets[ex.Level]; ok && ex.Level != 0 {
				want = off
			}
			tn, gn := textsim.ExtractNumber(ex.Template), textsim.ExtractNumber(ex.Target)
			if len(tn) == 0 || len(tn) != len(gn) {
				return false
			}
			if gn[len(gn)-1]-tn[len(tn)-1] != want {
				return false
			}
		}
	case PatternInsertion:
		return oneSided(p.Examples, func(ex ExamplePair) (string, string) { return ex.Target, ex.Template })
	case PatternDeletion:
		return oneSided(p.Examples, func(ex ExamplePair) (string, string) { return ex.Template, ex.Target })
	case PatternNone:
		return false
	}
	return true
}

// oneSided checks insertion and deletion examples: each names a numbered
// heading on the changed side and nothing on the other.
func oneSided(examples []ExamplePair, sides func(ExamplePair) (changed, other string)) bool {
	if len(examples) == 0 {
		return false
	}
	for _, ex := range examples {
		changed, other := sides(ex)
		if other != "" || len(textsim.ExtractNumber(changed)) == 0 {
			return false
		}
	}
	return true
}
