package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
	"github.com/clearpath-ai/clearpath-rag/internal/prompt"
)

func fastRetries(t *testing.T) {
	t.Helper()
	orig := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = orig })
}

func testMessages() []prompt.Message {
	return []prompt.Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "question"},
	}
}

func completionBody(content string) string {
	return fmt.Sprintf(`{
		"id": "cmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
	}`, content)
}

func errorBody(msg string) string {
	return fmt.Sprintf(`{"error": {"message": %q, "type": "invalid_request_error"}}`, msg)
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("The Pro plan costs $49/month.")))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL)
	res, err := c.Generate(context.Background(), "llama-3.1-8b-instant", testMessages(), 512)
	require.NoError(t, err)

	assert.Equal(t, "The Pro plan costs $49/month.", res.Content)
	assert.Equal(t, 42, res.Usage.PromptTokens)
	assert.Equal(t, 7, res.Usage.CompletionTokens)
}

func TestGenerate_RetriesServerErrorsThenSucceeds(t *testing.T) {
	fastRetries(t)

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(errorBody("overloaded")))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("recovered")))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL)
	res, err := c.Generate(context.Background(), "m", testMessages(), 512)
	require.NoError(t, err)

	assert.Equal(t, "recovered", res.Content)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestGenerate_ExhaustedRetriesMakeExactlyThreeAttempts(t *testing.T) {
	fastRetries(t)

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("test-key", srv.URL)
	_, err := c.Generate(context.Background(), "m", testMessages(), 512)

	require.Error(t, err)
	assert.Equal(t, cperrors.ErrCodeUpstreamUnavailable, cperrors.GetCode(err))
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestGenerate_NoRetryOnClientError(t *testing.T) {
	fastRetries(t)

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(errorBody("bad request")))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL)
	_, err := c.Generate(context.Background(), "m", testMessages(), 512)

	require.Error(t, err)
	assert.Equal(t, cperrors.ErrCodeUpstreamRejected, cperrors.GetCode(err))
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGenerate_RetriesTransportFailure(t *testing.T) {
	fastRetries(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New("test-key", srv.URL)
	_, err := c.Generate(context.Background(), "m", testMessages(), 512)

	require.Error(t, err)
	assert.Equal(t, cperrors.ErrCodeUpstreamUnavailable, cperrors.GetCode(err))
	assert.True(t, cperrors.IsRetryable(err))
}

func sseChunk(w http.ResponseWriter, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestGenerateStream_TokensUsageAndDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, map[string]any{
			"id": "cmpl-1", "object": "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": "Hello"}}},
		})
		sseChunk(w, map[string]any{
			"id": "cmpl-1", "object": "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": " world"}}},
		})
		sseChunk(w, map[string]any{
			"id": "cmpl-1", "object": "chat.completion.chunk",
			"choices": []map[string]any{},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 2},
		})
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New("test-key", srv.URL)
	events, err := c.GenerateStream(context.Background(), "m", testMessages(), 512)
	require.NoError(t, err)

	var tokens []string
	var usage *Usage
	var done bool
	for ev := range events {
		switch {
		case ev.Err != nil:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		case ev.Done:
			done = true
		case ev.Usage != nil:
			usage = ev.Usage
		case ev.Token != "":
			tokens = append(tokens, ev.Token)
		}
	}

	assert.Equal(t, []string{"Hello", " world"}, tokens)
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 2, usage.CompletionTokens)
	assert.True(t, done)
}

func fastAttemptTimeout(t *testing.T, d time.Duration) {
	t.Helper()
	orig := attemptTimeout
	attemptTimeout = d
	t.Cleanup(func() { attemptTimeout = orig })
}

func TestGenerateStream_EstablishmentBoundedByAttemptTimeout(t *testing.T) {
	fastRetries(t)
	fastAttemptTimeout(t, 50*time.Millisecond)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Never send headers within the attempt bound
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New("test-key", srv.URL)
	start := time.Now()
	_, err := c.GenerateStream(context.Background(), "m", testMessages(), 512)

	require.Error(t, err)
	assert.Equal(t, cperrors.ErrCodeUpstreamUnavailable, cperrors.GetCode(err))
	assert.Equal(t, int32(3), calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerateStream_EstablishedStreamOutlivesAttemptTimeout(t *testing.T) {
	fastAttemptTimeout(t, 50*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, map[string]any{
			"id": "cmpl-1", "object": "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": "early"}}},
		})
		// Token gap well past the establishment bound
		time.Sleep(200 * time.Millisecond)
		sseChunk(w, map[string]any{
			"id": "cmpl-1", "object": "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": "late"}}},
		})
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New("test-key", srv.URL)
	events, err := c.GenerateStream(context.Background(), "m", testMessages(), 512)
	require.NoError(t, err)

	var tokens []string
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		if ev.Token != "" {
			tokens = append(tokens, ev.Token)
		}
	}
	assert.Equal(t, []string{"early", "late"}, tokens)
}

func TestGenerateStream_ConsumerCancelReleasesProducer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 1000; i++ {
			sseChunk(w, map[string]any{
				"id": "cmpl-1", "object": "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": "x"}}},
			})
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New("test-key", srv.URL)
	events, err := c.GenerateStream(ctx, "m", testMessages(), 512)
	require.NoError(t, err)

	// Read one token, then walk away
	<-events
	cancel()

	// The producer must close the channel instead of blocking forever
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after consumer cancel")
		}
	}
}
