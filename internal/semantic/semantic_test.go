package semantic

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/jackzampolin/outline/internal/cache"
	"github.com/jackzampolin/outline/internal/providers"
	"github.com/jackzampolin/outline/internal/types"
)

func TestTextOracle(t *testing.T) {
	o := NewTextOracle()

	t.Run("score", func(t *testing.T) {
		tests := []struct {
			a, b string
			want float64
		}{
			{"4.6.1.2 Encryption", "4.6.1.3 Encryption", 1.0},
			{"Module1 security design", "Module2 security design", 0.5},
			{"Encryption", "Logging", 0},
			{"", "Logging", 0},
		}
		for _, tt := range tests {
			if got := o.Score(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		}
	})

	t.Run("batch shape", func(t *testing.T) {
		res := o.BatchSemanticMatch(context.Background(), []string{"a b", "c d", "e f"}, []string{"a b", "x y"}, "", 1)
		if len(res.Matrix) != 3 {
			t.Fatalf("rows = %d, want 3", len(res.Matrix))
		}
		for i, row := range res.Matrix {
			if len(row) != 2 {
				t.Errorf("row %d has %d cols, want 2", i, len(row))
			}
		}
		if res.Matrix[0][0] != 1.0 || res.Degraded {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("context match", func(t *testing.T) {
		candidates := []types.Chapter{
			{Title: "Logging"},
			{Title: "Key encryption"},
			{Title: "Encryption"},
		}
		got := o.ContextAwareMatch(context.Background(), types.Chapter{Title: "Encryption"}, candidates, "")
		if got.Index != 2 || got.Score != 1.0 {
			t.Errorf("ContextAwareMatch = %+v, want index 2", got)
		}

		none := o.ContextAwareMatch(context.Background(), types.Chapter{Title: "Encryption"}, []types.Chapter{{Title: "Logging"}}, "")
		if none.Index != -1 {
			t.Errorf("disjoint candidates matched: %+v", none)
		}
	})
}

func TestBuildPrompts(t *testing.T) {
	batch, err := BuildBatchPrompt(BatchPromptData{
		Templates: []string{"Overview", "Design"},
		Targets:   []string{"Overview", "Security", "Design"},
		Context:   "Level 2 headings",
	})
	if err != nil {
		t.Fatalf("BuildBatchPrompt() error = %v", err)
	}
	for _, want := range []string{"T1. Overview", "T2. Design", "G3. Design", "Level 2 headings", "6 template/target"} {
		if !strings.Contains(batch, want) {
			t.Errorf("batch prompt missing %q:\n%s", want, batch)
		}
	}

	ctxPrompt, err := BuildContextPrompt(ContextPromptData{
		Template:   types.Chapter{Title: "Encryption", Level: 4, ParentPath: "Design"},
		Candidates: []types.Chapter{{Title: "Crypto", Level: 4}},
	})
	if err != nil {
		t.Fatalf("BuildContextPrompt() error = %v", err)
	}
	for _, want := range []string{"Template heading: Encryption", "Template parents: Design", "1. Crypto (level 4)"} {
		if !strings.Contains(ctxPrompt, want) {
			t.Errorf("context prompt missing %q:\n%s", want, ctxPrompt)
		}
	}
}

func TestLLMOracle_BatchSemanticMatch(t *testing.T) {
	t.Run("tiles and fills matrix", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.Responder = func(req *providers.ChatRequest) (string, error) {
			if req.PromptKey != BatchPromptKey {
				t.Errorf("PromptKey = %q", req.PromptKey)
			}
			return `{"scores":[{"template":1,"target":1,"score":0.9,"reason":"same"},{"template":7,"target":1,"score":1}]}`, nil
		}

		o := NewLLMOracle(mock, DefaultLLMConfig(), nil)
		res := o.BatchSemanticMatch(context.Background(),
			[]string{"A", "B", "C"}, []string{"X", "Y"}, "", 2)

		if res.Calls != 2 || mock.RequestCount() != 2 || o.CallCount() != 2 {
			t.Errorf("calls = %d, requests = %d", res.Calls, mock.RequestCount())
		}
		if res.Degraded {
			t.Error("unexpected Degraded")
		}
		if res.Matrix[0][0] != 0.9 || res.Matrix[2][0] != 0.9 {
			t.Errorf("tile origins not filled: %v", res.Matrix)
		}
		if res.Matrix[1][1] != 0 || res.Reasoning[0][0] != "same" {
			t.Errorf("matrix = %v reasoning = %v", res.Matrix, res.Reasoning)
		}

		user := mock.Requests()[0].Messages[1].Content
		if !strings.Contains(user, "T2. B") || strings.Contains(user, "T3. C") {
			t.Errorf("first tile prompt = %s", user)
		}
	})

	t.Run("failure zero-fills with exact shape", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ShouldFail = true

		o := NewLLMOracle(mock, DefaultLLMConfig(), nil)
		res := o.BatchSemanticMatch(context.Background(), []string{"A", "B"}, []string{"X", "Y", "Z"}, "", 0)

		if !res.Degraded {
			t.Error("expected Degraded")
		}
		if len(res.Matrix) != 2 || len(res.Matrix[0]) != 3 || len(res.Matrix[1]) != 3 {
			t.Fatalf("shape = %v", res.Matrix)
		}
		for _, row := range res.Matrix {
			for _, v := range row {
				if v != 0 {
					t.Errorf("failed cell = %v, want 0", v)
				}
			}
		}
		if o.FailureCount() != 1 {
			t.Errorf("FailureCount = %d", o.FailureCount())
		}
	})

	t.Run("empty input makes no calls", func(t *testing.T) {
		mock := providers.NewMockClient()
		o := NewLLMOracle(mock, DefaultLLMConfig(), nil)
		res := o.BatchSemanticMatch(context.Background(), []string{"A"}, nil, "", 10)
		if len(res.Matrix) != 1 || len(res.Matrix[0]) != 0 || mock.RequestCount() != 0 {
			t.Errorf("res = %+v, requests = %d", res, mock.RequestCount())
		}
	})
}

func TestLLMOracle_ContextAwareMatch(t *testing.T) {
	candidates := []types.Chapter{{Title: "Logging"}, {Title: "Crypto"}}

	tests := []struct {
		name      string
		reply     string
		fail      bool
		wantIndex int
		degraded  bool
	}{
		{"picks candidate", `{"best":2,"score":0.8,"reason":"crypto is encryption"}`, false, 1, false},
		{"none", `{"best":0,"score":0,"reason":"no match"}`, false, -1, false},
		{"out of range", `{"best":9,"score":0.9}`, false, -1, false},
		{"client failure", "", true, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockClient()
			mock.ShouldFail = tt.fail
			mock.Responder = func(req *providers.ChatRequest) (string, error) {
				return tt.reply, nil
			}
			o := NewLLMOracle(mock, DefaultLLMConfig(), nil)
			got := o.ContextAwareMatch(context.Background(), types.Chapter{Title: "Encryption"}, candidates, "")
			if got.Index != tt.wantIndex || got.Degraded != tt.degraded {
				t.Errorf("ContextAwareMatch = %+v", got)
			}
		})
	}
}

// countingOracle records the inputs of every batch call.
type countingOracle struct {
	TextOracle
	batches  [][2][]string
	degraded bool
}

func (c *countingOracle) BatchSemanticMatch(ctx context.Context, templates, targets []string, info string, n int) BatchResult {
	c.batches = append(c.batches, [2][]string{templates, targets})
	res := c.TextOracle.BatchSemanticMatch(ctx, templates, targets, info, n)
	res.Calls = 1
	res.Degraded = c.degraded
	return res
}

func TestCachedOracle(t *testing.T) {
	ctx := context.Background()

	t.Run("serves repeat pairs from cache", func(t *testing.T) {
		inner := &countingOracle{}
		o := NewCachedOracle(inner, cache.NewMemory(0), nil)

		templates := []string{"Overview", "Encryption"}
		first := o.BatchSemanticMatch(ctx, templates, []string{"Encryption"}, "", 10)
		second := o.BatchSemanticMatch(ctx, templates, []string{"Encryption"}, "", 10)

		if len(inner.batches) != 1 {
			t.Fatalf("inner called %d times, want 1", len(inner.batches))
		}
		if second.Calls != 0 || second.Matrix[1][0] != first.Matrix[1][0] {
			t.Errorf("second = %+v", second)
		}
		if s := o.Stats(); s.Hits != 2 || s.Misses != 2 {
			t.Errorf("Stats = %+v", s)
		}
	})

	t.Run("only misses reach inner oracle", func(t *testing.T) {
		inner := &countingOracle{}
		o := NewCachedOracle(inner, cache.NewMemory(0), nil)

		o.BatchSemanticMatch(ctx, []string{"Overview"}, []string{"Overview"}, "", 10)
		res := o.BatchSemanticMatch(ctx, []string{"Overview"}, []string{"Overview", "Logging"}, "", 10)

		last := inner.batches[len(inner.batches)-1]
		if len(last[1]) != 1 || last[1][0] != "Logging" {
			t.Errorf("inner targets = %v, want [Logging]", last[1])
		}
		if res.Matrix[0][0] != 1.0 || res.Matrix[0][1] != 0 {
			t.Errorf("matrix = %v", res.Matrix)
		}
	})

	t.Run("context hint is part of the key", func(t *testing.T) {
		inner := &countingOracle{}
		o := NewCachedOracle(inner, cache.NewMemory(0), nil)

		o.BatchSemanticMatch(ctx, []string{"Overview"}, []string{"Overview"}, "numbering shifted by +1 at H1", 10)
		o.BatchSemanticMatch(ctx, []string{"Overview"}, []string{"Overview"}, "chapters inserted at H2", 10)
		o.BatchSemanticMatch(ctx, []string{"Overview"}, []string{"Overview"}, "numbering shifted by +1 at H1", 10)

		if len(inner.batches) != 2 {
			t.Errorf("inner called %d times, want 2", len(inner.batches))
		}
	})

	t.Run("degraded results are not cached", func(t *testing.T) {
		inner := &countingOracle{degraded: true}
		o := NewCachedOracle(inner, cache.NewMemory(0), nil)

		res := o.BatchSemanticMatch(ctx, []string{"A"}, []string{"A"}, "", 10)
		o.BatchSemanticMatch(ctx, []string{"A"}, []string{"A"}, "", 10)

		if !res.Degraded {
			t.Error("Degraded flag not propagated")
		}
		if len(inner.batches) != 2 {
			t.Errorf("inner called %d times, want 2", len(inner.batches))
		}
	})
}
