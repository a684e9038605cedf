package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/outline/internal/semantic"
	"github.com/jackzampolin/outline/internal/textsim"
	"github.com/jackzampolin/outline/internal/types"
)

// Weights are the component weights for the heuristic base score.
type Weights struct {
	Title     float64
	Content   float64
	Position  float64
	Structure float64
}

func (w Weights) sum() float64 {
	return w.Title + w.Content + w.Position + w.Structure
}

// Normalized scales the weights to sum to 1. Zero weights are returned unchanged.
func (w Weights) Normalized() Weights {
	s := w.sum()
	if s <= 0 {
		return w
	}
	return Weights{
		Title:     w.Title / s,
		Content:   w.Content / s,
		Position:  w.Position / s,
		Structure: w.Structure / s,
	}
}

// Base is the weighted sum of the four heuristic components.
func (w Weights) Base(s SimilarityScores) float64 {
	return s.Title*w.Title + s.Content*w.Content + s.Position*w.Position + s.Structure*w.Structure
}

// AdjustWeights shifts weight away from position for every pattern affecting
// level, then renormalizes.
func AdjustWeights(base Weights, patterns []RenumberingPattern, level int) Weights {
	w := base
	for _, p := range patterns {
		if !p.Affects(level) {
			continue
		}
		switch p.Type {
		case PatternInsertion, PatternDeletion:
			w.Position = max(w.Position*0.2, 0.02)
			w.Title = min(w.Title*1.5, 0.8)
			w.Content = min(w.Content*1.5, 0.4)
		case PatternOffset:
			w.Position = max(w.Position*0.7, 0.1)
			w.Title = min(w.Title*1.1, 0.65)
		case PatternReorder:
			w.Position = max(w.Position*0.3, 0.05)
			w.Title = min(w.Title*1.3, 0.7)
		}
	}
	return w.Normalized()
}

// Blend combines the heuristic base score with the oracle's semantic score.
// The more confident the oracle, the more it dominates.
func Blend(base, sem float64) float64 {
	switch {
	case sem >= 0.85:
		return base*0.2 + sem*0.8
	case sem >= 0.7:
		return base*0.4 + sem*0.6
	case sem > 0:
		return base*0.6 + sem*0.4
	default:
		return base
	}
}

// PositionScore is 1 minus the normalized distance between two positions.
func PositionScore(a, b, totalTemplate int) float64 {
	span := max(totalTemplate-1, 1)
	d := a - b
	if d < 0 {
		d = -d
	}
	return max(1-float64(d)/float64(span), 0)
}

// Matrix holds the scores for every template × target pair.
type Matrix struct {
	Cells     [][]SimilarityScores
	Reasoning [][]string
	Degraded  bool
	Calls     int
}

// Scorer computes similarity matrices.
type Scorer struct {
	cfg    Config
	oracle semantic.Oracle
	logger *slog.Logger
}

// NewScorer creates a Scorer that takes semantic scores from oracle.
func NewScorer(cfg Config, oracle semantic.Oracle, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{cfg: cfg, oracle: oracle, logger: logger}
}

// Matrix scores every template chapter against every target chapter. Semantic
// scores come from a single batch oracle request; cells the oracle could not
// score get semantic 0 and mark the matrix Degraded. Rows are computed in
// parallel. An error is returned only if a row computation panicked.
func (s *Scorer) Matrix(ctx context.Context, template, target []types.Chapter, patterns []RenumberingPattern) (Matrix, error) {
	m := Matrix{
		Cells:     make([][]SimilarityScores, len(template)),
		Reasoning: make([][]string, len(template)),
	}
	if len(template) == 0 {
		return m, nil
	}

	sem := s.semanticScores(ctx, template, target, patterns)
	m.Degraded = sem.Degraded
	m.Calls = sem.Calls
	if !wellShaped(sem, len(template), len(target)) {
		s.logger.Warn("oracle returned a mis-shaped matrix, missing cells score zero",
			"oracle", s.oracle.Name(), "rows", len(sem.Matrix), "want_rows", len(template), "want_cols", len(target))
		m.Degraded = true
	}

	targetKeys := make([]map[string]struct{}, len(target))
	for j, ch := range target {
		targetKeys[j] = textsim.KeywordSet(ch.Content)
	}
	base := s.cfg.Weights()

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i := range template {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic scoring row %d: %v", i, r)
				}
			}()
			a := template[i]
			w := AdjustWeights(base, patterns, a.Level)
			keys := textsim.KeywordSet(a.Content)
			row := make([]SimilarityScores, len(target))
			reasons := make([]string, len(target))
			for j, b := range target {
				sc := SimilarityScores{
					Title:    textsim.TitleSimilarity(a.Title, b.Title),
					Content:  textsim.Jaccard(keys, targetKeys[j]),
					Position: PositionScore(a.Position, b.Position, len(template)),
					Semantic: cell(sem.Matrix, i, j),
				}
				if a.Level == b.Level {
					sc.Structure = 1
				}
				sc.Overall = min(max(Blend(w.Base(sc), sc.Semantic), 0), 1)
				row[j] = sc
				reasons[j] = cellText(sem.Reasoning, i, j)
			}
			m.Cells[i] = row
			m.Reasoning[i] = reasons
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

func (s *Scorer) semanticScores(ctx context.Context, template, target []types.Chapter, patterns []RenumberingPattern) (res semantic.BatchResult) {
	if len(target) == 0 {
		return semantic.NewBatchResult(len(template), 0)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("semantic oracle panicked, scoring as zero", "oracle", s.oracle.Name(), "panic", r)
			res = semantic.NewBatchResult(len(template), len(target))
			res.Degraded = true
		}
	}()
	return s.oracle.BatchSemanticMatch(ctx, titles(template), titles(target), patternContext(patterns), s.cfg.MaxBatchSize)
}

func wellShaped(res semantic.BatchResult, rows, cols int) bool {
	if len(res.Matrix) != rows {
		return false
	}
	for _, row := range res.Matrix {
		if len(row) != cols {
			return false
		}
	}
	return true
}

func cell(matrix [][]float64, i, j int) float64 {
	if i >= len(matrix) || j >= len(matrix[i]) {
		return 0
	}
	return min(max(matrix[i][j], 0), 1)
}

func cellText(matrix [][]string, i, j int) string {
	if i >= len(matrix) || j >= len(matrix[i]) {
		return ""
	}
	return matrix[i][j]
}

func titles(chapters []types.Chapter) []string {
	out := make([]string, len(chapters))
	for i, ch := range chapters {
		out[i] = ch.Title
	}
	return out
}

// patternContext is the oracle hint describing detected renumbering.
func patternContext(patterns []RenumberingPattern) string {
	if len(patterns) == 0 {
		return ""
	}
	descs := make([]string, len(patterns))
	for i, p := range patterns {
		descs[i] = p.Description
	}
	return "Detected renumbering: " + strings.Join(descs, "; ")
}
