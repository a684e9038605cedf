package semantic

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/jackzampolin/outline/internal/cache"
	"github.com/jackzampolin/outline/internal/types"
)

// CachedOracle fronts another oracle with a pair-score cache. Only the rows and
// columns containing a miss are sent to the inner oracle, and scores from a
// degraded inner result are never stored. Scores are keyed by the context
// hint as well as the titles.
type CachedOracle struct {
	inner  Oracle
	cache  cache.Cache
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewCachedOracle wraps inner with c.
func NewCachedOracle(inner Oracle, c cache.Cache, logger *slog.Logger) *CachedOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedOracle{inner: inner, cache: c, logger: logger}
}

// Name returns the inner oracle's name.
func (o *CachedOracle) Name() string {
	return o.inner.Name()
}

// Stats returns hit and miss counts.
func (o *CachedOracle) Stats() CacheStats {
	return CacheStats{Hits: o.hits.Load(), Misses: o.misses.Load()}
}

// BatchSemanticMatch serves cached pairs and scores the rest with the inner oracle.
func (o *CachedOracle) BatchSemanticMatch(ctx context.Context, templates, targets []string, contextInfo string, maxBatchSize int) BatchResult {
	res := NewBatchResult(len(templates), len(targets))
	filled := make([][]bool, len(templates))
	rowNeed := make([]bool, len(templates))
	colNeed := make([]bool, len(targets))
	name := o.inner.Name()

	for i, t := range templates {
		filled[i] = make([]bool, len(targets))
		for j, g := range targets {
			e, err := o.cache.Get(ctx, cache.PairKey(name, contextInfo, t, g))
			if err == nil {
				res.Matrix[i][j] = clamp01(e.Score)
				res.Reasoning[i][j] = e.Reasoning
				filled[i][j] = true
				o.hits.Add(1)
				continue
			}
			if !errors.Is(err, cache.ErrMiss) {
				o.logger.Debug("score cache read failed", "error", err)
			}
			o.misses.Add(1)
			rowNeed[i] = true
			colNeed[j] = true
		}
	}

	rows := indicesOf(rowNeed)
	cols := indicesOf(colNeed)
	if len(rows) == 0 || len(cols) == 0 {
		return res
	}

	subT := make([]string, len(rows))
	for a, i := range rows {
		subT[a] = templates[i]
	}
	subG := make([]string, len(cols))
	for b, j := range cols {
		subG[b] = targets[j]
	}

	inner := o.inner.BatchSemanticMatch(ctx, subT, subG, contextInfo, maxBatchSize)
	res.Calls = inner.Calls
	res.Degraded = inner.Degraded

	for a, i := range rows {
		if a >= len(inner.Matrix) {
			res.Degraded = true
			break
		}
		for b, j := range cols {
			if filled[i][j] {
				continue
			}
			if b >= len(inner.Matrix[a]) {
				res.Degraded = true
				break
			}
			score := clamp01(inner.Matrix[a][b])
			reason := ""
			if a < len(inner.Reasoning) && b < len(inner.Reasoning[a]) {
				reason = inner.Reasoning[a][b]
			}
			res.Matrix[i][j] = score
			res.Reasoning[i][j] = reason
			if inner.Degraded {
				continue
			}
			if err := o.cache.Set(ctx, cache.PairKey(name, contextInfo, templates[i], targets[j]), cache.Entry{Score: score, Reasoning: reason}); err != nil {
				o.logger.Debug("score cache write failed", "error", err)
			}
		}
	}
	return res
}

// ContextAwareMatch is not cached; its answer depends on the candidate set and context.
func (o *CachedOracle) ContextAwareMatch(ctx context.Context, template types.Chapter, candidates []types.Chapter, contextInfo string) ContextMatch {
	return o.inner.ContextAwareMatch(ctx, template, candidates, contextInfo)
}

func indicesOf(flags []bool) []int {
	var out []int
	for i, f := range flags {
		if f {
			out = append(out, i)
		}
	}
	return out
}

var _ Oracle = (*CachedOracle)(nil)
