package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestMockClient(t *testing.T) {
	t.Run("chat", func(t *testing.T) {
		c := NewMockClient()
		c.ResponseText = "hello world"

		result, err := c.Chat(context.Background(), &ChatRequest{
			Model:    "test-model",
			Messages: []Message{{Role: "user", Content: "test"}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !result.Success {
			t.Errorf("Success = false, want true")
		}
		if result.Content != "hello world" {
			t.Errorf("Content = %q, want %q", result.Content, "hello world")
		}
		if c.RequestCount() != 1 {
			t.Errorf("RequestCount = %d, want 1", c.RequestCount())
		}
	})

	t.Run("structured output", func(t *testing.T) {
		c := NewMockClient()
		c.ResponseJSON = json.RawMessage(`{"key": "value"}`)

		result, err := c.Chat(context.Background(), &ChatRequest{
			Messages:       []Message{{Role: "user", Content: "test"}},
			ResponseFormat: &ResponseFormat{Type: "json_object"},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if string(result.ParsedJSON) != `{"key":"value"}` {
			t.Errorf("ParsedJSON = %s", result.ParsedJSON)
		}
	})

	t.Run("should fail", func(t *testing.T) {
		c := NewMockClient()
		c.ShouldFail = true

		result, err := c.Chat(context.Background(), &ChatRequest{})
		if err == nil {
			t.Fatal("expected error")
		}
		if result.Success {
			t.Error("expected Success = false")
		}
	})

	t.Run("fail after N requests", func(t *testing.T) {
		c := NewMockClient()
		c.FailAfter = 2

		for i := 0; i < 2; i++ {
			if _, err := c.Chat(context.Background(), &ChatRequest{}); err != nil {
				t.Fatalf("request %d failed: %v", i+1, err)
			}
		}
		if _, err := c.Chat(context.Background(), &ChatRequest{}); err == nil {
			t.Error("expected third request to fail")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		c := NewMockClient()
		c.Latency = time.Second

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := c.Chat(ctx, &ChatRequest{}); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("records requests", func(t *testing.T) {
		c := NewMockClient()
		c.Chat(context.Background(), &ChatRequest{PromptKey: "batch"})
		reqs := c.Requests()
		if len(reqs) != 1 || reqs[0].PromptKey != "batch" {
			t.Errorf("Requests() = %+v", reqs)
		}
		c.Reset()
		if c.RequestCount() != 0 || len(c.Requests()) != 0 {
			t.Error("Reset did not clear state")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("spaces requests by interval", func(t *testing.T) {
		rl := NewRateLimiter(30 * time.Millisecond)
		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := rl.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
			t.Errorf("three calls took %v, want >= 60ms", elapsed)
		}
		if got := rl.Status().TotalConsumed; got != 3 {
			t.Errorf("TotalConsumed = %d, want 3", got)
		}
	})

	t.Run("zero interval does not wait", func(t *testing.T) {
		rl := NewRateLimiter(0)
		start := time.Now()
		for i := 0; i < 100; i++ {
			rl.Wait(context.Background())
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("unpaced limiter took %v", elapsed)
		}
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		rl := NewRateLimiter(time.Hour)
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("first Wait() error = %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})

	t.Run("record 429 pushes next slot", func(t *testing.T) {
		rl := NewRateLimiter(0)
		rl.Record429(time.Hour)
		status := rl.Status()
		if status.TimeUntilToken < 59*time.Minute {
			t.Errorf("TimeUntilToken = %v", status.TimeUntilToken)
		}
		if status.Last429Time.IsZero() {
			t.Error("Last429Time not recorded")
		}
	})
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestLimited(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		mock := NewMockClient()
		mock.Responder = func(req *ChatRequest) (string, error) {
			if calls.Add(1) <= 2 {
				return "", &StatusError{Provider: "mock", StatusCode: http.StatusServiceUnavailable}
			}
			return "ok", nil
		}

		l := NewLimited(mock, 0, fastRetry(3), nil)
		result, err := l.Chat(context.Background(), &ChatRequest{})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Content != "ok" || !result.Success {
			t.Errorf("result = %+v", result)
		}
		if result.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", result.Attempts)
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		mock := NewMockClient()
		mock.ShouldFail = true
		mock.Err = &StatusError{Provider: "mock", StatusCode: http.StatusBadRequest}

		l := NewLimited(mock, 0, fastRetry(5), nil)
		_, err := l.Chat(context.Background(), &ChatRequest{})
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
			t.Fatalf("err = %v, want 400 StatusError", err)
		}
		if mock.RequestCount() != 1 {
			t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		mock := NewMockClient()
		mock.ShouldFail = true
		mock.Err = fmt.Errorf("connection reset")

		l := NewLimited(mock, 0, fastRetry(2), nil)
		result, err := l.Chat(context.Background(), &ChatRequest{})
		if err == nil {
			t.Fatal("expected error")
		}
		if mock.RequestCount() != 3 {
			t.Errorf("RequestCount = %d, want 3", mock.RequestCount())
		}
		if result == nil || result.Success {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("name passes through", func(t *testing.T) {
		l := NewLimited(NewMockClient(), 0, DefaultRetryConfig(), nil)
		if l.Name() != MockClientName {
			t.Errorf("Name() = %q", l.Name())
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"rate limited", &StatusError{StatusCode: 429}, true},
		{"server error", &StatusError{StatusCode: 502}, true},
		{"unprocessable", &StatusError{StatusCode: 422}, true},
		{"unauthorized", &StatusError{StatusCode: 401}, false},
		{"wrapped bad request", fmt.Errorf("call: %w", &StatusError{StatusCode: 400}), false},
		{"network", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
