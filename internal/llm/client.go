// Package llm is the generation client. It speaks the OpenAI chat
// completions protocol against the Groq endpoint, with a fixed retry
// table for transient upstream failures.
package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
	"github.com/clearpath-ai/clearpath-rag/internal/prompt"
)

// DefaultBaseURL is the Groq OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

var (
	// attemptTimeout bounds each upstream attempt. For streaming it
	// covers establishment only; an open stream may run longer.
	attemptTimeout = 30 * time.Second

	// retryDelays are the waits before the second and third attempts.
	// The table length fixes the retry count.
	retryDelays = []time.Duration{1 * time.Second, 3 * time.Second}
)

// Usage carries final token counts from the upstream response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is a completed non-streaming generation.
type Result struct {
	Content string
	Usage   Usage
}

// StreamEvent is one element of a streaming generation. Exactly one of
// the fields is meaningful per event: a token fragment, final usage,
// the terminal Done marker, or an error that ends the stream.
type StreamEvent struct {
	Token string
	Usage *Usage
	Done  bool
	Err   error
}

// Client wraps the upstream chat completions API.
type Client struct {
	api *openai.Client
}

// New creates a generation client. baseURL falls back to the Groq
// endpoint when empty.
func New(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = baseURL
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []prompt.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Generate runs a non-streaming completion with retries. Client errors
// (4xx) propagate immediately; timeouts, transport failures and 5xx
// are retried per the delay table, and exhaustion surfaces as a single
// upstream-unavailable error carrying the last cause.
func (c *Client) Generate(ctx context.Context, model string, messages []prompt.Message, maxTokens int) (*Result, error) {
	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAIMessages(messages),
		MaxTokens: maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			slog.Warn("retrying generation",
				"attempt", attempt+1,
				"model", model,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt-1]):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		resp, err := c.api.CreateChatCompletion(attemptCtx, req)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, cperrors.UpstreamError("upstream returned no choices", nil)
			}
			return &Result{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
				},
			}, nil
		}

		lastErr = err
		if !isRetryable(ctx, err) {
			return nil, classifyTerminal(err)
		}
	}

	return nil, cperrors.UpstreamError("generation failed after all retries", lastErr)
}

// GenerateStream starts a streaming completion. Establishing the stream
// follows the same retry policy as Generate; once tokens flow, any error
// ends the stream with an Err event. The returned channel is closed
// after the Done or Err event.
func (c *Client) GenerateStream(ctx context.Context, model string, messages []prompt.Message, maxTokens int) (<-chan StreamEvent, error) {
	req := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      toOpenAIMessages(messages),
		MaxTokens:     maxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	var stream *openai.ChatCompletionStream
	var streamCancel context.CancelFunc
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt-1]):
			}
		}

		// The stream keeps using this context for its whole lifetime,
		// so the attempt timeout is a timer cleared once the stream is
		// established rather than a deadline on the context.
		streamCtx, cancel := context.WithCancel(ctx)
		connectTimer := time.AfterFunc(attemptTimeout, cancel)
		s, err := c.api.CreateChatCompletionStream(streamCtx, req)
		connectTimer.Stop()

		if err == nil {
			stream = s
			streamCancel = cancel
			break
		}
		cancel()
		lastErr = err
		if !isRetryable(ctx, err) {
			return nil, classifyTerminal(err)
		}
	}
	if stream == nil {
		return nil, cperrors.UpstreamError("generation failed after all retries", lastErr)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer streamCancel()
		defer func() { _ = stream.Close() }()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				c.emit(ctx, events, StreamEvent{Done: true})
				return
			}
			if err != nil {
				c.emit(ctx, events, StreamEvent{Err: classifyTerminal(err)})
				return
			}

			if resp.Usage != nil {
				c.emit(ctx, events, StreamEvent{Usage: &Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
				}})
			}
			if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
				if !c.emit(ctx, events, StreamEvent{Token: resp.Choices[0].Delta.Content}) {
					return
				}
			}
		}
	}()

	return events, nil
}

// emit sends an event unless the consumer is gone. Returning false stops
// the producer so an abandoned stream releases the upstream connection.
func (c *Client) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// isRetryable classifies an attempt failure. Caller cancellation is
// never retried; explicit 4xx responses are client bugs and propagate
// immediately; everything else (5xx, timeouts, transport) retries.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	if status, ok := upstreamStatus(err); ok {
		return status < 400 || status >= 500
	}
	return true
}

// upstreamStatus extracts the HTTP status from either error shape the
// client library produces.
func upstreamStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// classifyTerminal maps an upstream error to the engine's error kinds.
func classifyTerminal(err error) error {
	if err == nil {
		return nil
	}

	if status, ok := upstreamStatus(err); ok && status >= 400 && status < 500 {
		return cperrors.New(cperrors.ErrCodeUpstreamRejected, "upstream rejected request", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return cperrors.New(cperrors.ErrCodeUpstreamTimeout, "upstream timed out", err)
	}
	return cperrors.UpstreamError("upstream request failed", err)
}
