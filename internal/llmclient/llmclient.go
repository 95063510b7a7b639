// Package llmclient wraps a single prompt/response round trip to a model
// provider with exponential backoff over transient failures, honouring an
// abort signal across both the in-flight request and any pending sleep.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/wardenhq/warden/internal/core"
)

// Options configures retry behaviour. The zero value is invalid; use
// DefaultOptions as a base.
type Options struct {
	Model             string
	MaxRetries        int
	InitialDelayMs    int
	BackoffMultiplier float64
	MaxDelayMs        int
}

// DefaultOptions matches the retry defaults every caller should start
// from: three retries, one second initial backoff, doubling, capped at
// thirty seconds.
func DefaultOptions(model string) Options {
	return Options{
		Model:             model,
		MaxRetries:        3,
		InitialDelayMs:    1000,
		BackoffMultiplier: 2,
		MaxDelayMs:        30000,
	}
}

// Response is one completed model call.
type Response struct {
	Text  string
	Usage core.UsageStats
}

// Caller performs the actual provider round trip. Implementations wrap a
// specific SDK (Anthropic, OpenAI, Gemini, Ollama, ...); llmclient only
// owns the retry/backoff policy around it.
type Caller interface {
	Call(ctx context.Context, systemPrompt, userPrompt, model string) (Response, error)
}

// OnRetry is invoked before each retry sleep.
type OnRetry func(attempt int, delayMs int, errText string)

// Client retries a Caller's round trips per Options.
type Client struct {
	caller Caller
	opts   Options
}

// New builds a Client wrapping caller with the given retry policy.
func New(caller Caller, opts Options) *Client {
	return &Client{caller: caller, opts: opts}
}

// Call performs one prompt/response round trip, retrying transient
// failures up to opts.MaxRetries times. onRetry may be nil.
func (c *Client) Call(ctx context.Context, systemPrompt, userPrompt string, onRetry OnRetry) (Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, fmt.Errorf("%w: %w", core.ErrAborted, err)
		}

		resp, err := c.caller.Call(ctx, systemPrompt, userPrompt, c.opts.Model)
		if err == nil {
			return resp, nil
		}

		if IsAuthError(err) {
			return Response{}, core.NewLLMAuthError(err)
		}

		lastErr = err
		if !IsRetryable(err) || attempt > c.opts.MaxRetries {
			break
		}

		delay := c.backoffDelay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err.Error())
		}

		select {
		case <-ctx.Done():
			return Response{}, fmt.Errorf("%w: %w", core.ErrAborted, ctx.Err())
		case <-time.After(time.Duration(delay) * time.Millisecond):
		}
	}

	return Response{}, core.NewLLMTransientError(c.opts.MaxRetries+1, lastErr)
}

// backoffDelay computes min(maxDelayMs, initialDelayMs * multiplier^(k-1))
// for 1-indexed attempt k.
func (c *Client) backoffDelay(attempt int) int {
	delay := float64(c.opts.InitialDelayMs) * math.Pow(c.opts.BackoffMultiplier, float64(attempt-1))
	if int(delay) > c.opts.MaxDelayMs {
		return c.opts.MaxDelayMs
	}
	return int(delay)
}

// AuthError marks a provider response as a non-retryable authentication
// failure (expired/invalid credentials, revoked key).
type AuthError struct{ err error }

// NewAuthError wraps err as a non-retryable authentication failure.
func NewAuthError(err error) *AuthError { return &AuthError{err: err} }

func (e *AuthError) Error() string { return "authentication failed: " + e.err.Error() }
func (e *AuthError) Unwrap() error { return e.err }

// RetryableStatusError marks an HTTP response as retryable (429 or 5xx).
type RetryableStatusError struct {
	StatusCode int
}

func (e *RetryableStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.StatusCode)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRetryable reports whether err should be retried: HTTP 429/5xx,
// connection errors, or a deadline/timeout from the transport. 4xx
// statuses other than 429, and authentication errors, are never
// retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthError(err) {
		return false
	}

	var statusErr *RetryableStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
