package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

const (
	OllamaName         = "ollama"
	ollamaDefaultModel = "qwen2.5:7b"
)

// OllamaConfig holds configuration for a local Ollama server.
type OllamaConfig struct {
	// BaseURL defaults to OLLAMA_HOST (or http://127.0.0.1:11434).
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaClient implements LLMClient against a local Ollama server.
type OllamaClient struct {
	client       *api.Client
	baseURL      string
	defaultModel string
	timeout      time.Duration
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	base := envconfig.Host()
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base url %q: %w", cfg.BaseURL, err)
		}
		base = u
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &OllamaClient{
		client:       api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		baseURL:      base.String(),
		defaultModel: cfg.DefaultModel,
		timeout:      cfg.Timeout,
	}, nil
}

// Name returns the client identifier.
func (c *OllamaClient) Name() string {
	return OllamaName
}

// Chat sends a non-streaming chat request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: make([]api.Message, 0, len(req.Messages)),
		Stream:   &stream,
		Options:  map[string]any{},
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, api.Message{Role: m.Role, Content: m.Content})
	}
	if req.Temperature > 0 {
		chatReq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}
	if req.ResponseFormat != nil {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OllamaName,
		Attempts:  1,
	}

	var final api.ChatResponse
	var content string
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		err = mapOllamaError(err)
		result.fail(start, "http_error", err)
		return result, err
	}
	if content == "" {
		result.fail(start, "empty_response", ErrEmptyResponse)
		return result, ErrEmptyResponse
	}

	result.Success = true
	result.Content = content
	result.ModelUsed = final.Model
	if result.ModelUsed == "" {
		result.ModelUsed = model
	}
	result.PromptTokens = final.PromptEvalCount
	result.CompletionTokens = final.EvalCount
	result.TotalTokens = final.PromptEvalCount + final.EvalCount
	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime

	if req.ResponseFormat != nil {
		if parsed, err := ParseStructuredJSON(content); err == nil {
			result.ParsedJSON = parsed
		} else {
			result.Success = false
			result.ErrorType = "json_parse"
			result.ErrorMessage = err.Error()
		}
	}

	return result, nil
}

func mapOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		body := statusErr.ErrorMessage
		if body == "" {
			body = statusErr.Status
		}
		return &StatusError{
			Provider:   OllamaName,
			StatusCode: statusErr.StatusCode,
			Body:       body,
		}
	}
	return fmt.Errorf("ollama request failed: %w", err)
}

// Verify interface
var _ LLMClient = (*OllamaClient)(nil)
