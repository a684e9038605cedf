package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/outline/internal/semantic"
	"github.com/jackzampolin/outline/internal/types"
)

const (
	similarTitleThreshold = 0.8
	positionalThreshold   = 0.7
	maxCrossLevelDistance = 2
	contextSiblingHints   = 3
)

// Mapper aligns target chapters to template chapters.
type Mapper struct {
	cfg      Config
	oracle   semantic.Oracle
	detector *Detector
	scorer   *Scorer
	logger   *slog.Logger
}

// New creates a Mapper. A nil oracle falls back to the offline text oracle.
func New(cfg Config, oracle semantic.Oracle, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	if oracle == nil {
		oracle = semantic.NewTextOracle()
	}
	return &Mapper{
		cfg:      cfg,
		oracle:   oracle,
		detector: NewDetector(logger),
		scorer:   NewScorer(cfg, oracle, logger),
		logger:   logger,
	}
}

// Config returns the mapper's configuration.
func (m *Mapper) Config() Config {
	return m.cfg
}

// DetectPatterns runs renumbering detection alone.
func (m *Mapper) DetectPatterns(template, target []types.Chapter) DetectResult {
	return m.detector.Detect(template, target)
}

// usedSet holds the indices of target chapters already assigned.
type usedSet map[int]struct{}

func (u usedSet) has(i int) bool {
	_, ok := u[i]
	return ok
}

func (u usedSet) clone() usedSet {
	out := make(usedSet, len(u))
	for k := range u {
		out[k] = struct{}{}
	}
	return out
}

// levelInput is everything assignLevel needs for one heading level.
type levelInput struct {
	level        int
	templateIdx  []int // template chapters at this level, source order
	template     []types.Chapter
	target       []types.Chapter
	targetLevels map[int][]int
	matrix       Matrix
}

// levelOutcome is the result of assigning one level. On Err, Mappings is
// empty and Used is the set passed in.
type levelOutcome struct {
	Mappings []ChapterMapping
	Used     usedSet
	Err      error
}

// CreateGlobalMapping aligns target to template. It always returns a
// well-formed result with one mapping per template chapter; failures show up
// as missing mappings and Degraded rather than as an error.
func (m *Mapper) CreateGlobalMapping(ctx context.Context, template, target []types.Chapter) (result MappingResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("chapter mapping failed, returning all-missing result",
				"panic", r, "stack", string(debug.Stack()))
			result = allMissing(template, target, "mapping failed")
			result.Metrics.Duration = time.Since(start)
		}
	}()

	degraded := false
	patterns := []RenumberingPattern{}
	if m.cfg.EnableRenumberingDetection {
		det := m.detector.Detect(template, target)
		patterns = det.Patterns
		degraded = degraded || det.Degraded
	}

	matrix, err := m.scorer.Matrix(ctx, template, target, patterns)
	if err != nil {
		m.logger.Error("similarity matrix failed, returning all-missing result", "error", err)
		result = allMissing(template, target, "similarity scoring failed")
		result.Patterns = patterns
		result.Metrics.Duration = time.Since(start)
		return result
	}
	degraded = degraded || matrix.Degraded
	calls := matrix.Calls

	templateLevels := types.GroupByLevel(template)
	targetLevels := types.GroupByLevel(target)
	levels := make([]int, 0, len(templateLevels))
	for lvl := range templateLevels {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)

	mappings := make([]ChapterMapping, len(template))
	used := usedSet{}
	for _, lvl := range levels {
		out := m.assignLevel(levelInput{
			level:        lvl,
			templateIdx:  templateLevels[lvl],
			template:     template,
			target:       target,
			targetLevels: targetLevels,
			matrix:       matrix,
		}, used)
		if out.Err != nil {
			m.logger.Warn("level assignment failed, chapters marked missing", "level", lvl, "error", out.Err)
			degraded = true
			for _, i := range templateLevels[lvl] {
				mappings[i] = missingMapping(template, i, fmt.Sprintf("assignment failed at H%d", lvl))
			}
			continue
		}
		used = out.Used
		for _, mp := range out.Mappings {
			mappings[mp.TemplateIndex] = mp
		}
	}

	if m.cfg.EnableContextAware {
		cp := m.contextPass(ctx, template, target, matrix, mappings, used, patterns)
		used = cp.used
		calls += cp.calls
		degraded = degraded || cp.degraded
	}

	result = aggregate(template, target, mappings, used, patterns)
	result.Degraded = degraded
	result.Metrics = Metrics{
		Duration:        time.Since(start),
		OracleCalls:     calls,
		SimilarityCells: len(template) * len(target),
	}
	m.logger.Info("chapter mapping complete",
		"template", len(template),
		"target", len(target),
		"matched", len(template)-len(result.UnmappedTemplate),
		"patterns", len(patterns),
		"confidence", fmt.Sprintf("%.3f", result.OverallConfidence),
		"degraded", degraded,
		"duration", result.Metrics.Duration)
	return result
}

// assignLevel greedily assigns targets to the template chapters of one level
// in source order. Each accepted target is marked used immediately, so an
// earlier template chapter wins a contested target.
func (m *Mapper) assignLevel(in levelInput, used usedSet) (out levelOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = levelOutcome{Used: used, Err: fmt.Errorf("panic at H%d: %v", in.level, r)}
		}
	}()

	next := used.clone()
	mappings := make([]ChapterMapping, 0, len(in.templateIdx))
	for _, ti := range in.templateIdx {
		if gi, ok := m.bestSameLevel(in, ti, next); ok {
			sc := in.matrix.Cells[ti][gi]
			mp := matchedMapping(in.template, in.target, ti, gi, sc, m.matchType(sc))
			mp.Reasoning = reasoning(sc, cellText(in.matrix.Reasoning, ti, gi))
			mp.Notes = fmt.Sprintf("best match at H%d", in.level)
			mappings = append(mappings, mp)
			next[gi] = struct{}{}
			continue
		}
		if gi, ok := m.bestCrossLevel(in, ti, next); ok {
			sc := in.matrix.Cells[ti][gi]
			mp := matchedMapping(in.template, in.target, ti, gi, sc, MatchSemantic)
			mp.Reasoning = reasoning(sc, cellText(in.matrix.Reasoning, ti, gi))
			mp.Notes = fmt.Sprintf("cross-level match H%d -> H%d", in.level, in.target[gi].Level)
			mappings = append(mappings, mp)
			next[gi] = struct{}{}
			continue
		}
		mappings = append(mappings, missingMapping(in.template, ti, "no candidate above threshold"))
	}
	return levelOutcome{Mappings: mappings, Used: next}
}

// bestSameLevel returns the unused same-level target with the highest overall
// score at or above the similarity threshold. The first candidate wins ties.
func (m *Mapper) bestSameLevel(in levelInput, ti int, used usedSet) (int, bool) {
	best, bestScore := -1, -1.0
	for _, gi := range in.targetLevels[in.level] {
		if used.has(gi) {
			continue
		}
		s := in.matrix.Cells[ti][gi].Overall
		if s >= m.cfg.SimilarityThreshold && s > bestScore {
			best, bestScore = gi, s
		}
	}
	return best, best >= 0
}

// bestCrossLevel searches unused targets one level away (shallower first),
// then two levels away, requiring the semantic match threshold.
func (m *Mapper) bestCrossLevel(in levelInput, ti int, used usedSet) (int, bool) {
	for d := 1; d <= maxCrossLevelDistance; d++ {
		best, bestScore := -1, -1.0
		for _, lvl := range []int{in.level - d, in.level + d} {
			for _, gi := range in.targetLevels[lvl] {
				if used.has(gi) {
					continue
				}
				s := in.matrix.Cells[ti][gi].Overall
				if s >= m.cfg.SemanticMatchThreshold && s > bestScore {
					best, bestScore = gi, s
				}
			}
		}
		if best >= 0 {
			return best, true
		}
	}
	return -1, false
}

func (m *Mapper) matchType(sc SimilarityScores) MatchType {
	switch {
	case sc.Overall >= m.cfg.ExactMatchThreshold:
		return MatchExact
	case sc.Title >= similarTitleThreshold:
		return MatchSimilar
	case sc.Overall >= m.cfg.SemanticMatchThreshold:
		return MatchSemantic
	case sc.Position >= positionalThreshold:
		return MatchPositional
	default:
		return MatchNone
	}
}

type contextOutcome struct {
	used     usedSet
	calls    int
	degraded bool
}

// contextPass offers each missing template chapter the unused targets within
// one level and lets the oracle choose with surrounding hints. mappings is
// updated in place.
func (m *Mapper) contextPass(ctx context.Context, template, target []types.Chapter, matrix Matrix, mappings []ChapterMapping, used usedSet, patterns []RenumberingPattern) contextOutcome {
	out := contextOutcome{used: used.clone()}
	for i := range mappings {
		if !mappings[i].Missing() {
			continue
		}
		ch := template[i]
		var candIdx []int
		for gi, g := range target {
			if out.used.has(gi) {
				continue
			}
			if d := g.Level - ch.Level; d >= -1 && d <= 1 {
				candIdx = append(candIdx, gi)
			}
		}
		if len(candIdx) == 0 {
			continue
		}
		cands := make([]types.Chapter, len(candIdx))
		for k, gi := range candIdx {
			cands[k] = target[gi]
		}

		cm := m.safeContextMatch(ctx, ch, cands, contextHints(template, mappings, i, patterns))
		out.calls += cm.Calls
		out.degraded = out.degraded || cm.Degraded
		if cm.Index < 0 || cm.Index >= len(candIdx) || cm.Score < m.cfg.SimilarityThreshold {
			continue
		}

		gi := candIdx[cm.Index]
		sc := matrix.Cells[i][gi]
		sc.Semantic = cm.Score
		sc.Overall = cm.Score
		mp := matchedMapping(template, target, i, gi, sc, MatchSemantic)
		mp.Reasoning = cm.Reasoning
		mp.Notes = "context-aware match"
		mappings[i] = mp
		out.used[gi] = struct{}{}
	}
	return out
}

func (m *Mapper) safeContextMatch(ctx context.Context, ch types.Chapter, cands []types.Chapter, hints string) (cm semantic.ContextMatch) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("context-aware oracle panicked", "oracle", m.oracle.Name(), "template", ch.Title, "panic", r)
			cm = semantic.NoMatch()
			cm.Degraded = true
		}
	}()
	return m.oracle.ContextAwareMatch(ctx, ch, cands, hints)
}

// contextHints describes where template chapter i sits: level, parent path,
// position, detected patterns and the nearest resolved siblings before it.
func contextHints(template []types.Chapter, mappings []ChapterMapping, i int, patterns []RenumberingPattern) string {
	ch := template[i]
	var b strings.Builder
	fmt.Fprintf(&b, "Template chapter level: H%d\n", ch.Level)
	if ch.ParentPath != "" {
		fmt.Fprintf(&b, "Parent path: %s\n", ch.ParentPath)
	}
	fmt.Fprintf(&b, "Position: %d of %d\n", ch.Position+1, len(template))
	if pc := patternContext(patterns); pc != "" {
		b.WriteString(pc)
		b.WriteString("\n")
	}

	var siblings []ChapterMapping
	for j := i - 1; j >= 0 && len(siblings) < contextSiblingHints; j-- {
		if mappings[j].TemplateChapter.Level == ch.Level && !mappings[j].Missing() {
			siblings = append(siblings, mappings[j])
		}
	}
	if len(siblings) > 0 {
		b.WriteString("Resolved siblings:\n")
		for k := len(siblings) - 1; k >= 0; k-- {
			fmt.Fprintf(&b, "- %q -> %q\n", siblings[k].TemplateChapter.Title, siblings[k].TargetChapter.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func matchedMapping(template, target []types.Chapter, ti, gi int, sc SimilarityScores, mt MatchType) ChapterMapping {
	tgt := target[gi]
	return ChapterMapping{
		TemplateChapter: template[ti],
		TargetChapter:   &tgt,
		TemplateIndex:   ti,
		TargetIndex:     gi,
		MatchType:       mt,
		Confidence:      sc.Overall,
		ConfidenceLevel: types.ConfidenceFor(sc.Overall),
		Scores:          sc,
	}
}

func missingMapping(template []types.Chapter, ti int, note string) ChapterMapping {
	return ChapterMapping{
		TemplateChapter: template[ti],
		TemplateIndex:   ti,
		TargetIndex:     -1,
		MatchType:       MatchNone,
		ConfidenceLevel: types.ConfidenceLow,
		Reasoning:       "no target chapter matched",
		Notes:           note,
	}
}

func reasoning(sc SimilarityScores, oracleReason string) string {
	s := fmt.Sprintf("overall %.2f (title %.2f, content %.2f, position %.2f, structure %.2f, semantic %.2f)",
		sc.Overall, sc.Title, sc.Content, sc.Position, sc.Structure, sc.Semantic)
	if oracleReason != "" {
		s += ": " + oracleReason
	}
	return s
}
