package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/outline/internal/providers"
	"github.com/jackzampolin/outline/internal/types"
)

// LLMConfig tunes the requests an LLMOracle sends.
type LLMConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultLLMConfig returns low-temperature settings suited to scoring.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Temperature: 0.1,
		MaxTokens:   4000,
		Timeout:     60 * time.Second,
	}
}

// LLMOracle scores title pairs by asking a chat model for structured JSON.
// Large comparisons are split into tiles of at most maxBatchSize titles per side.
type LLMOracle struct {
	client providers.LLMClient
	cfg    LLMConfig
	logger *slog.Logger

	calls    atomic.Int64
	failures atomic.Int64
}

// NewLLMOracle creates an oracle backed by client. Pacing and retries are the
// client's concern; wrap it in providers.Limited for production use.
func NewLLMOracle(client providers.LLMClient, cfg LLMConfig, logger *slog.Logger) *LLMOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMOracle{client: client, cfg: cfg, logger: logger}
}

// Name returns the oracle identifier.
func (o *LLMOracle) Name() string {
	if o.cfg.Model != "" {
		return "llm:" + o.client.Name() + ":" + o.cfg.Model
	}
	return "llm:" + o.client.Name()
}

// CallCount returns the number of LLM requests issued.
func (o *LLMOracle) CallCount() int64 {
	return o.calls.Load()
}

// FailureCount returns the number of LLM requests that failed.
func (o *LLMOracle) FailureCount() int64 {
	return o.failures.Load()
}

// BatchSemanticMatch scores templates × targets tile by tile. A failed tile is
// left zero-filled and marks the result Degraded.
func (o *LLMOracle) BatchSemanticMatch(ctx context.Context, templates, targets []string, contextInfo string, maxBatchSize int) BatchResult {
	res := NewBatchResult(len(templates), len(targets))
	if len(templates) == 0 || len(targets) == 0 {
		return res
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	for rs := 0; rs < len(templates); rs += maxBatchSize {
		re := min(rs+maxBatchSize, len(templates))
		for cs := 0; cs < len(targets); cs += maxBatchSize {
			ce := min(cs+maxBatchSize, len(targets))
			res.Calls++
			if err := o.scoreTile(ctx, &res, templates[rs:re], targets[cs:ce], rs, cs, contextInfo); err != nil {
				res.Degraded = true
				o.logger.Warn("semantic batch tile failed, scoring as zero",
					"oracle", o.Name(),
					"rows", fmt.Sprintf("%d-%d", rs, re-1),
					"cols", fmt.Sprintf("%d-%d", cs, ce-1),
					"error", err)
			}
		}
	}
	return res
}

func (o *LLMOracle) scoreTile(ctx context.Context, res *BatchResult, templates, targets []string, rowOff, colOff int, contextInfo string) error {
	prompt, err := BuildBatchPrompt(BatchPromptData{
		Templates: templates,
		Targets:   targets,
		Context:   contextInfo,
	})
	if err != nil {
		return fmt.Errorf("failed to render batch prompt: %w", err)
	}

	parsed, err := o.chat(ctx, BatchPromptKey, prompt, batchSchema)
	if err != nil {
		return err
	}

	var resp batchResponse
	if err := json.Unmarshal(parsed, &resp); err != nil {
		return fmt.Errorf("failed to decode batch scores: %w", err)
	}

	for _, s := range resp.Scores {
		i, j := s.Template-1, s.Target-1
		if i < 0 || i >= len(templates) || j < 0 || j >= len(targets) {
			o.logger.Debug("ignoring out-of-range score", "template", s.Template, "target", s.Target)
			continue
		}
		res.Matrix[rowOff+i][colOff+j] = clamp01(s.Score)
		res.Reasoning[rowOff+i][colOff+j] = s.Reason
	}
	return nil
}

// ContextAwareMatch asks the model to choose among candidates. Failures and
// invalid choices yield NoMatch.
func (o *LLMOracle) ContextAwareMatch(ctx context.Context, template types.Chapter, candidates []types.Chapter, contextInfo string) ContextMatch {
	if len(candidates) == 0 {
		return NoMatch()
	}

	out := NoMatch()
	out.Calls = 1

	prompt, err := BuildContextPrompt(ContextPromptData{
		Template:   template,
		Candidates: candidates,
		Context:    contextInfo,
	})
	if err != nil {
		out.Degraded = true
		o.logger.Warn("failed to render context prompt", "error", err)
		return out
	}

	parsed, err := o.chat(ctx, ContextPromptKey, prompt, contextSchema)
	if err != nil {
		out.Degraded = true
		o.logger.Warn("context-aware match failed", "oracle", o.Name(), "template", template.Title, "error", err)
		return out
	}

	var resp contextResponse
	if err := json.Unmarshal(parsed, &resp); err != nil {
		out.Degraded = true
		o.logger.Warn("failed to decode context match", "error", err)
		return out
	}
	if resp.Best < 1 || resp.Best > len(candidates) {
		out.Reasoning = resp.Reason
		return out
	}

	out.Index = resp.Best - 1
	out.Score = clamp01(resp.Score)
	out.Reasoning = resp.Reason
	return out
}

func (o *LLMOracle) chat(ctx context.Context, promptKey, prompt string, schema json.RawMessage) (json.RawMessage, error) {
	o.calls.Add(1)
	parsed, _, err := providers.ChatStructured(ctx, o.client, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: prompt},
		},
		Model:          o.cfg.Model,
		Temperature:    o.cfg.Temperature,
		MaxTokens:      o.cfg.MaxTokens,
		Timeout:        o.cfg.Timeout,
		ResponseFormat: &providers.ResponseFormat{Type: "json_object", JSONSchema: schema},
		PromptKey:      promptKey,
	})
	if err != nil {
		o.failures.Add(1)
		return nil, err
	}
	return parsed, nil
}

var _ Oracle = (*LLMOracle)(nil)
