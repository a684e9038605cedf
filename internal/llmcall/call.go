// Package llmcall provides LLM call recording for traceability.
// Every oracle request is recorded with its prompt key, response, and metrics.
package llmcall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/outline/internal/providers"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Unique identifier
	ID string `json:"id" db:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	LatencyMs int       `json:"latency_ms" db:"latency_ms"`

	// RunID links the call to the comparison run that issued it.
	RunID string `json:"run_id,omitempty" db:"run_id"`

	// Prompt traceability
	PromptKey string `json:"prompt_key" db:"prompt_key"`

	// Model info
	Provider    string   `json:"provider" db:"provider"`
	Model       string   `json:"model" db:"model"`
	Temperature *float64 `json:"temperature,omitempty" db:"temperature"`
	Attempts    int      `json:"attempts" db:"attempts"`

	// Token usage
	InputTokens  int `json:"input_tokens" db:"input_tokens"`
	OutputTokens int `json:"output_tokens" db:"output_tokens"`

	// Response
	Response string `json:"response" db:"response"`

	// Status
	Success bool   `json:"success" db:"success"`
	Error   string `json:"error,omitempty" db:"error"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	RunID string

	// Prompt identification (required for traceability)
	PromptKey string

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		RunID:        opts.RunID,
		PromptKey:    opts.PromptKey,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		Temperature:  opts.Temperature,
		Attempts:     result.Attempts,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Response:     result.Content,
		Success:      result.Success,
	}
	if !result.Success {
		call.Error = result.ErrorMessage
	}
	return call
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	RunID     string
	PromptKey string
	Provider  string
	Model     string
	After     *time.Time
	Before    *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

type runIDKey struct{}

// WithRunID returns a context whose LLM calls are attributed to runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run ID attached by WithRunID, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
