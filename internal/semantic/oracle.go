// Package semantic provides the oracles that score how closely two chapter
// titles match in meaning. The mapping engine only depends on the Oracle
// interface; implementations range from a deterministic keyword heuristic to
// LLM-backed scoring with a persistent cache in front.
package semantic

import (
	"context"

	"github.com/jackzampolin/outline/internal/types"
)

// DefaultMaxBatchSize bounds a batch tile when the caller passes zero.
const DefaultMaxBatchSize = 10

// BatchResult is a rows×cols score matrix for template × target titles.
// Scores are in [0,1]. Cells the oracle could not score are 0 and Degraded is set.
type BatchResult struct {
	Matrix    [][]float64
	Reasoning [][]string
	Degraded  bool
	Calls     int
}

// ContextMatch is the oracle's choice among candidates for one template chapter.
// Index is -1 when nothing matched.
type ContextMatch struct {
	Index     int
	Score     float64
	Reasoning string
	Degraded  bool
	Calls     int
}

// Oracle scores semantic equivalence of chapter titles.
// Implementations must not fail: on error they return zero scores and mark
// the result Degraded.
type Oracle interface {
	// Name identifies the oracle; it is part of cache keys.
	Name() string

	// BatchSemanticMatch scores every template title against every target title.
	// The result always has len(templates) rows of len(targets) columns.
	BatchSemanticMatch(ctx context.Context, templates, targets []string, contextInfo string, maxBatchSize int) BatchResult

	// ContextAwareMatch picks the best candidate for template given surrounding context.
	ContextAwareMatch(ctx context.Context, template types.Chapter, candidates []types.Chapter, contextInfo string) ContextMatch
}

// NewBatchResult allocates a zero-filled result of the given shape.
func NewBatchResult(rows, cols int) BatchResult {
	matrix := make([][]float64, rows)
	reasoning := make([][]string, rows)
	for i := range matrix {
		matrix[i] = make([]float64, cols)
		reasoning[i] = make([]string, cols)
	}
	return BatchResult{Matrix: matrix, Reasoning: reasoning}
}

// NoMatch is the ContextMatch for an empty or failed selection.
func NoMatch() ContextMatch {
	return ContextMatch{Index: -1}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
