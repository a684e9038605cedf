package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig controls exponential backoff for failed LLM calls.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultRetryConfig returns the default backoff policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// Limited wraps an LLMClient with request pacing and retry with backoff.
type Limited struct {
	inner   LLMClient
	limiter *RateLimiter
	retry   RetryConfig
	logger  *slog.Logger
}

// NewLimited wraps inner so that calls are at least interval apart and
// retryable failures are retried per cfg.
func NewLimited(inner LLMClient, interval time.Duration, cfg RetryConfig, logger *slog.Logger) *Limited {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limited{
		inner:   inner,
		limiter: NewRateLimiter(interval),
		retry:   cfg,
		logger:  logger,
	}
}

// Name returns the wrapped client's name.
func (l *Limited) Name() string {
	return l.inner.Name()
}

// Inner returns the wrapped client.
func (l *Limited) Inner() LLMClient {
	return l.inner
}

// Limiter exposes the pacing state for status reporting.
func (l *Limited) Limiter() *RateLimiter {
	return l.limiter
}

// Chat paces and retries the wrapped client's Chat.
func (l *Limited) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	var result *ChatResult
	attempts := 0

	err := retry.Do(
		func() error {
			if err := l.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			attempts++
			res, err := l.inner.Chat(ctx, req)
			result = res
			if err == nil {
				return nil
			}
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
				l.limiter.Record429(se.RetryAfter)
			}
			if ctx.Err() != nil || !IsRetryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		l.retryOptions(ctx)...,
	)

	if result == nil {
		result = &ChatResult{Provider: l.inner.Name(), RequestID: req.RequestID}
		if err != nil {
			result.fail(start, "request_failed", err)
		}
	}
	result.Attempts = attempts
	result.TotalTime = time.Since(start)
	if result.ExecutionTime > 0 && result.TotalTime > result.ExecutionTime {
		result.QueueTime = result.TotalTime - result.ExecutionTime
	}
	return result, err
}

func (l *Limited) retryOptions(ctx context.Context) []retry.Option {
	attempts := uint(l.retry.MaxRetries + 1)
	if attempts < 1 {
		attempts = 1
	}
	delayType := retry.BackOffDelay
	if l.retry.Jitter {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(l.retry.InitialDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			l.logger.Warn("llm call failed, retrying",
				"provider", l.inner.Name(),
				"attempt", n+1,
				"error", err)
		}),
	}
	if l.retry.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(l.retry.MaxDelay))
	}
	if l.retry.Jitter && l.retry.InitialDelay > 0 {
		opts = append(opts, retry.MaxJitter(l.retry.InitialDelay))
	}
	return opts
}

// IsRetryable reports whether an LLM call error is worth another attempt.
// Cancellation and client errors other than 408/409/413/422/429 are final;
// network failures, timeouts and malformed responses are retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusRequestTimeout, http.StatusConflict, http.StatusRequestEntityTooLarge,
			http.StatusUnprocessableEntity, http.StatusTooManyRequests:
			return true
		}
		return se.StatusCode >= 500
	}
	return true
}

// Verify interface
var _ LLMClient = (*Limited)(nil)
