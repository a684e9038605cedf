package semantic

import (
	"context"

	"github.com/jackzampolin/outline/internal/textsim"
	"github.com/jackzampolin/outline/internal/types"
)

// TextOracleName is the Name of TextOracle.
const TextOracleName = "text"

// TextOracle is a deterministic, offline oracle: normalized titles that are
// equal score 1.0, otherwise the keyword Jaccard index.
type TextOracle struct{}

// NewTextOracle creates a TextOracle.
func NewTextOracle() *TextOracle {
	return &TextOracle{}
}

// Name returns the oracle identifier.
func (o *TextOracle) Name() string {
	return TextOracleName
}

// Score returns the keyword similarity of two titles.
func (o *TextOracle) Score(a, b string) float64 {
	na, nb := textsim.Normalize(a), textsim.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	return textsim.KeywordJaccard(na, nb)
}

// BatchSemanticMatch scores all pairs; batching is irrelevant offline.
func (o *TextOracle) BatchSemanticMatch(_ context.Context, templates, targets []string, _ string, _ int) BatchResult {
	res := NewBatchResult(len(templates), len(targets))
	for i, t := range templates {
		for j, g := range targets {
			res.Matrix[i][j] = o.Score(t, g)
			res.Reasoning[i][j] = "keyword overlap"
		}
	}
	return res
}

// ContextAwareMatch returns the first candidate with the highest non-zero score.
func (o *TextOracle) ContextAwareMatch(_ context.Context, template types.Chapter, candidates []types.Chapter, _ string) ContextMatch {
	best := NoMatch()
	for i, c := range candidates {
		if s := o.Score(template.Title, c.Title); s > best.Score {
			best = ContextMatch{Index: i, Score: s, Reasoning: "keyword overlap"}
		}
	}
	return best
}

var _ Oracle = (*TextOracle)(nil)
