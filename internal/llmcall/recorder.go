package llmcall

import (
	"context"

	"github.com/jackzampolin/outline/internal/providers"
)

// Recorder handles fire-and-forget LLM call recording via a Sink.
type Recorder struct {
	sink *Sink
}

// NewRecorder creates a new LLM call recorder.
func NewRecorder(sink *Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record captures an LLM call asynchronously.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	if r == nil || r.sink == nil {
		return
	}
	if call := FromChatResult(result, opts); call != nil {
		r.sink.Send(*call)
	}
}

// RecordingClient wraps an LLMClient and records every call it makes.
type RecordingClient struct {
	inner    providers.LLMClient
	recorder *Recorder
}

// NewRecordingClient wraps inner so each Chat is recorded through recorder.
func NewRecordingClient(inner providers.LLMClient, recorder *Recorder) *RecordingClient {
	return &RecordingClient{inner: inner, recorder: recorder}
}

// Name returns the wrapped client's name.
func (c *RecordingClient) Name() string {
	return c.inner.Name()
}

// Chat forwards to the wrapped client and records the result, including failures.
func (c *RecordingClient) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	result, err := c.inner.Chat(ctx, req)
	temp := req.Temperature
	c.recorder.Record(result, RecordOptions{
		RunID:       RunIDFrom(ctx),
		PromptKey:   req.PromptKey,
		Temperature: &temp,
	})
	return result, err
}

var _ providers.LLMClient = (*RecordingClient)(nil)
