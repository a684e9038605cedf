// Package cache stores semantic similarity scores for title pairs so repeated
// comparisons of the same documents do not call the oracle again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMiss is returned by Get when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Entry is a cached pair score.
type Entry struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// Cache is a key/value store for pair scores.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, e Entry) error
}

// PairKey derives a stable key for a (template, target) title pair scored by
// a given oracle under the given context hint. The oracle name keeps scores
// from different backends apart; the context keeps scores made under
// different renumbering hints apart.
func PairKey(oracle, contextInfo, template, target string) string {
	h := sha256.New()
	h.Write([]byte(oracle))
	h.Write([]byte{0})
	h.Write([]byte(contextInfo))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(template)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(target)))
	return hex.EncodeToString(h.Sum(nil))
}
