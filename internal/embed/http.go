package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
)

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// Host is the embedding server endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use (default: all-minilm:l6-v2).
	Model string

	// BatchSize for batch embedding requests (default: 32).
	BatchSize int

	// Timeout for a single API request (default: 60s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3).
	MaxRetries int
}

const (
	defaultHost  = "http://localhost:11434"
	defaultModel = "all-minilm:l6-v2"

	retryDelay = 500 * time.Millisecond
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// HTTPEmbedder generates embeddings via an Ollama-protocol HTTP server.
type HTTPEmbedder struct {
	client *http.Client
	config HTTPConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an HTTP embedder. No network call is made here;
// reachability is checked via Available or surfaces on first Embed.
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	// Per-request timeouts come from context, not the client, so a
	// caller-supplied deadline always wins.
	return &HTTPEmbedder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     10 * time.Second,
			},
		},
		config: cfg,
	}
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Empty texts map to
// zero vectors without hitting the API. Output order matches input order.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, cperrors.InternalError("embedder is closed", nil)
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var pendingIdx []int
	var pending []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, Dimensions)
			continue
		}
		pendingIdx = append(pendingIdx, i)
		pending = append(pending, text)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(start+e.config.BatchSize, len(pending))
		vecs, err := e.doEmbedWithRetry(ctx, pending[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, cperrors.UpstreamError(
				fmt.Sprintf("embedding count mismatch: sent %d texts, got %d vectors", end-start, len(vecs)), nil)
		}
		for j, vec := range vecs {
			if len(vec) != Dimensions {
				return nil, cperrors.DimensionError(Dimensions, len(vec))
			}
			results[pendingIdx[start+j]] = normalizeVector(vec)
		}
	}

	return results, nil
}

// doEmbedWithRetry posts one batch, retrying transient failures with a
// short fixed delay. HTTP 4xx responses are not retried.
func (e *HTTPEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying embedding request",
				"attempt", attempt,
				"max_retries", e.config.MaxRetries,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		vecs, retryable, err := e.doEmbed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, cperrors.New(cperrors.ErrCodeEmbedUnavailable,
		fmt.Sprintf("embedding failed after %d attempts", e.config.MaxRetries+1), lastErr)
}

func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) (vecs [][]float32, retryable bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, false, cperrors.InternalError("marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, false, cperrors.InternalError("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, true, cperrors.New(cperrors.ErrCodeEmbedUnavailable, "embedding server unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := cperrors.New(cperrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("embedding request failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
		return nil, resp.StatusCode >= 500, err
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, true, cperrors.New(cperrors.ErrCodeEmbedUnavailable, "decode embed response", err)
	}
	return result.Embeddings, false, nil
}

// Dimensions returns the embedding width.
func (e *HTTPEmbedder) Dimensions() int { return Dimensions }

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string { return e.config.Model }

// Available probes the embedding server's model list endpoint.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close marks the embedder closed and drops idle connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
