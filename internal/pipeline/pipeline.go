// Package pipeline is the query engine: route, retrieve, assemble,
// generate, evaluate, log. One Engine instance owns the process-wide
// singletons and serves concurrent queries.
package pipeline

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearpath-ai/clearpath-rag/internal/config"
	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
	"github.com/clearpath-ai/clearpath-rag/internal/eval"
	"github.com/clearpath-ai/clearpath-rag/internal/llm"
	"github.com/clearpath-ai/clearpath-rag/internal/prompt"
	"github.com/clearpath-ai/clearpath-rag/internal/querylog"
	"github.com/clearpath-ai/clearpath-rag/internal/retrieve"
	"github.com/clearpath-ai/clearpath-rag/internal/router"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
	"github.com/clearpath-ai/clearpath-rag/internal/text"
)

// Token budgets by classification.
const (
	simpleMaxTokens  = 512
	complexMaxTokens = 1024

	healthProbeTimeout = 5 * time.Second
)

// Source cites one retrieved chunk in a query result.
type Source struct {
	SourceFile string  `json:"source_file"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
}

// Debug carries per-query diagnostics.
type Debug struct {
	Classification string   `json:"classification"`
	ModelUsed      string   `json:"model_used"`
	TokensInput    int      `json:"tokens_input"`
	TokensOutput   int      `json:"tokens_output"`
	LatencyMS      float64  `json:"latency_ms"`
	RetrievalCount int      `json:"retrieval_count"`
	EvaluatorFlags []string `json:"evaluator_flags"`
}

// QueryResult is the non-streaming answer.
type QueryResult struct {
	RequestID string   `json:"request_id"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Debug     Debug    `json:"debug"`
}

// StreamEvent is one server-sent event of a streaming answer.
type StreamEvent struct {
	// Event is "token", "done" or "error".
	Event string
	// Token is set for token events.
	Token string
	// Result is set for the done event.
	Result *QueryResult
	// Err and StatusCode are set for the error event.
	Err        error
	StatusCode int
}

// Health is the service health snapshot.
type Health struct {
	IndexLoaded       bool    `json:"faiss_index_loaded"`
	TotalChunks       int     `json:"total_chunks"`
	UpstreamReachable bool    `json:"upstream_reachable"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Status            string  `json:"status"`
}

// Engine owns the query path singletons.
type Engine struct {
	cfg       *config.Config
	embedder  embed.Embedder
	store     store.VectorStore
	retriever *retrieve.Retriever
	client    *llm.Client
	log       *querylog.Log
	startTime time.Time
	httpProbe *http.Client
}

// New wires an engine from its shared components.
func New(cfg *config.Config, embedder embed.Embedder, st store.VectorStore, client *llm.Client, log *querylog.Log) *Engine {
	return &Engine{
		cfg:       cfg,
		embedder:  embedder,
		store:     st,
		retriever: retrieve.New(embedder, st, cfg.RAG.TopK, float32(cfg.RAG.SimilarityThreshold)),
		client:    client,
		log:       log,
		startTime: time.Now(),
		httpProbe: &http.Client{Timeout: healthProbeTimeout},
	}
}

// validateQuery trims and checks the raw query. A cleaned query is
// returned on success.
func (e *Engine) validateQuery(raw string) (string, error) {
	q := text.SanitizeInput(raw)
	if q == "" {
		return "", cperrors.New(cperrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if len(q) > e.cfg.Limits.MaxQueryChars {
		return "", cperrors.New(cperrors.ErrCodeQueryTooLong, "query exceeds maximum length", nil)
	}
	return q, nil
}

// routeQuery picks the model and token budget for a query.
func (e *Engine) routeQuery(q string) (classification router.Classification, model string, maxTokens int) {
	classification = router.Classify(q)
	if classification == router.Complex {
		return classification, e.cfg.Models.Complex, complexMaxTokens
	}
	return classification, e.cfg.Models.Simple, simpleMaxTokens
}

// Query answers a question without streaming. Every attempt writes
// exactly one query log line, failures included.
func (e *Engine) Query(ctx context.Context, rawQuery, requestID string) (*QueryResult, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start := time.Now()

	q, err := e.validateQuery(rawQuery)
	if err != nil {
		e.logFailure(requestID, rawQuery, "", "", start, err)
		return nil, err
	}

	classification, model, maxTokens := e.routeQuery(q)

	chunks, err := e.retriever.Retrieve(ctx, q)
	if err != nil {
		e.logFailure(requestID, q, string(classification), model, start, err)
		return nil, err
	}

	messages := prompt.Assemble(q, chunks)

	res, err := e.client.Generate(ctx, model, messages, maxTokens)
	if err != nil {
		e.logFailure(requestID, q, string(classification), model, start, err)
		return nil, err
	}

	flags := eval.Evaluate(res.Content, len(chunks), chunkMetas(chunks))
	latency := float64(time.Since(start).Microseconds()) / 1000.0

	_ = e.log.Append(querylog.Entry{
		RequestID:      requestID,
		Query:          q,
		Classification: string(classification),
		ModelUsed:      model,
		TokensInput:    res.Usage.PromptTokens,
		TokensOutput:   res.Usage.CompletionTokens,
		LatencyMS:      latency,
		RetrievalCount: len(chunks),
		RetrievalScore: scores(chunks),
		EvaluatorFlags: flags,
	})

	return &QueryResult{
		RequestID: requestID,
		Answer:    res.Content,
		Sources:   sources(chunks),
		Debug: Debug{
			Classification: string(classification),
			ModelUsed:      model,
			TokensInput:    res.Usage.PromptTokens,
			TokensOutput:   res.Usage.CompletionTokens,
			LatencyMS:      latency,
			RetrievalCount: len(chunks),
			EvaluatorFlags: flags,
		},
	}, nil
}

// QueryStream answers a question as a lazy event sequence: token events
// for each fragment, then one done event carrying sources and debug, or
// an error event that ends the stream. Tokens are teed into an
// accumulator so the final answer can be evaluated and logged.
func (e *Engine) QueryStream(ctx context.Context, rawQuery, requestID string) (<-chan StreamEvent, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start := time.Now()

	q, err := e.validateQuery(rawQuery)
	if err != nil {
		e.logFailure(requestID, rawQuery, "", "", start, err)
		return nil, err
	}

	classification, model, maxTokens := e.routeQuery(q)

	chunks, err := e.retriever.Retrieve(ctx, q)
	if err != nil {
		e.logFailure(requestID, q, string(classification), model, start, err)
		return nil, err
	}

	messages := prompt.Assemble(q, chunks)

	upstream, err := e.client.GenerateStream(ctx, model, messages, maxTokens)
	if err != nil {
		e.logFailure(requestID, q, string(classification), model, start, err)
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		var answer strings.Builder
		var usage llm.Usage
		finished := false

		logPartial := func(cause error) {
			e.logFailure(requestID, q, string(classification), model, start, cause)
		}

		for ev := range upstream {
			switch {
			case ev.Err != nil:
				logPartial(ev.Err)
				e.send(ctx, out, StreamEvent{
					Event:      "error",
					Err:        ev.Err,
					StatusCode: statusFor(ev.Err),
				})
				return
			case ev.Done:
				finished = true
			case ev.Usage != nil:
				usage = *ev.Usage
			case ev.Token != "":
				answer.WriteString(ev.Token)
				if !e.send(ctx, out, StreamEvent{Event: "token", Token: ev.Token}) {
					logPartial(ctx.Err())
					return
				}
			}
		}

		if !finished {
			// Upstream closed without a terminal marker; treat the
			// consumer walking away as the cause.
			logPartial(ctx.Err())
			return
		}

		flags := eval.Evaluate(answer.String(), len(chunks), chunkMetas(chunks))
		latency := float64(time.Since(start).Microseconds()) / 1000.0

		_ = e.log.Append(querylog.Entry{
			RequestID:      requestID,
			Query:          q,
			Classification: string(classification),
			ModelUsed:      model,
			TokensInput:    usage.PromptTokens,
			TokensOutput:   usage.CompletionTokens,
			LatencyMS:      latency,
			RetrievalCount: len(chunks),
			RetrievalScore: scores(chunks),
			EvaluatorFlags: flags,
		})

		e.send(ctx, out, StreamEvent{
			Event: "done",
			Result: &QueryResult{
				RequestID: requestID,
				Answer:    answer.String(),
				Sources:   sources(chunks),
				Debug: Debug{
					Classification: string(classification),
					ModelUsed:      model,
					TokensInput:    usage.PromptTokens,
					TokensOutput:   usage.CompletionTokens,
					LatencyMS:      latency,
					RetrievalCount: len(chunks),
					EvaluatorFlags: flags,
				},
			},
		})
	}()

	return out, nil
}

func (e *Engine) send(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// logFailure writes the single log line for a failed query attempt.
func (e *Engine) logFailure(requestID, query, classification, model string, start time.Time, cause error) {
	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	_ = e.log.Append(querylog.Entry{
		RequestID:      requestID,
		Query:          query,
		Classification: classification,
		ModelUsed:      model,
		LatencyMS:      float64(time.Since(start).Microseconds()) / 1000.0,
		Error:          &msg,
	})
}

// CheckHealth probes the index and the upstream endpoint.
func (e *Engine) CheckHealth(ctx context.Context) Health {
	h := Health{
		IndexLoaded:       e.store.IsLoaded(),
		TotalChunks:       e.store.TotalChunks(),
		UpstreamReachable: e.upstreamReachable(ctx),
		UptimeSeconds:     time.Since(e.startTime).Seconds(),
	}
	if h.IndexLoaded && h.UpstreamReachable {
		h.Status = "healthy"
	} else {
		h.Status = "degraded"
	}
	return h
}

// upstreamReachable considers any response below 500 proof of life; an
// auth rejection still means the endpoint is up.
func (e *Engine) upstreamReachable(ctx context.Context) bool {
	base := e.cfg.GroqBaseURL
	if base == "" {
		base = llm.DefaultBaseURL
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return false
	}
	resp, err := e.httpProbe.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 500
}

// statusFor maps an error to the HTTP status reported in stream error
// events.
func statusFor(err error) int {
	switch cperrors.GetCategory(err) {
	case cperrors.CategoryValidation:
		return http.StatusBadRequest
	case cperrors.CategoryUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func chunkMetas(chunks []retrieve.Result) []store.ChunkMeta {
	out := make([]store.ChunkMeta, len(chunks))
	for i, c := range chunks {
		out[i] = c.Meta
	}
	return out
}

func sources(chunks []retrieve.Result) []Source {
	out := make([]Source, len(chunks))
	for i, c := range chunks {
		out[i] = Source{
			SourceFile: c.Meta.SourceFile,
			PageNumber: c.Meta.Page,
			Score:      float64(c.Score),
		}
	}
	return out
}

func scores(chunks []retrieve.Result) []float64 {
	out := make([]float64, len(chunks))
	for i, c := range chunks {
		out[i] = float64(c.Score)
	}
	return out
}
