package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	"github.com/clearpath-ai/clearpath-rag/internal/llm"
	"github.com/clearpath-ai/clearpath-rag/internal/pipeline"
	"github.com/clearpath-ai/clearpath-rag/internal/querylog"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
)

func newQueryCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "query <question>...",
		Short: "Ask a question against the local index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), strings.Join(args, " "), debug)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Show routing and retrieval details")
	return cmd
}

func runQuery(ctx context.Context, question string, debug bool) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	p := printer()

	embedder, err := embed.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	st := store.NewFlatStore(cfg.IndexPath(), cfg.SidecarPath(), cfg.RAG.EmbeddingDim)
	if err := st.Load(ctx); err != nil {
		return err
	}

	engine := pipeline.New(cfg, embedder, st,
		llm.New(cfg.GroqAPIKey, cfg.GroqBaseURL),
		querylog.New(cfg.Paths.QueryLogPath))

	res, err := engine.Query(ctx, question, "")
	if err != nil {
		return err
	}

	p.Raw(res.Answer)
	p.Raw("\n")

	if len(res.Sources) > 0 {
		p.Raw("\n")
		p.Header("Sources")
		for _, s := range res.Sources {
			p.Dim("  %s p.%d (%.3f)", s.SourceFile, s.PageNumber, s.Score)
		}
	}

	if debug {
		p.Raw("\n")
		p.KeyValue("Classification", "%s", res.Debug.Classification)
		p.KeyValue("Model", "%s", res.Debug.ModelUsed)
		p.KeyValue("Tokens in/out", "%d/%d", res.Debug.TokensInput, res.Debug.TokensOutput)
		p.KeyValue("Latency", "%.1f ms", res.Debug.LatencyMS)
		p.KeyValue("Chunks retrieved", "%d", res.Debug.RetrievalCount)
		if len(res.Debug.EvaluatorFlags) > 0 {
			p.Warn("Evaluator flags: %s", strings.Join(res.Debug.EvaluatorFlags, ", "))
		}
	}
	return nil
}
