package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	"github.com/clearpath-ai/clearpath-rag/internal/llm"
	"github.com/clearpath-ai/clearpath-rag/internal/pipeline"
	"github.com/clearpath-ai/clearpath-rag/internal/querylog"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index and upstream health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	cfg, err := loadConfig(false)
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
	h := engine.CheckHealth(ctx)

	p.Header("Clearpath status")
	p.KeyValue("Index", "%s", cfg.IndexPath())
	p.KeyValue("Chunks", "%d", h.TotalChunks)
	p.KeyValue("Embedding backend", "%s (%s)", cfg.Embed.Backend, embedder.ModelName())
	p.KeyValue("Embedder available", "%t", embedder.Available(ctx))
	p.KeyValue("Upstream reachable", "%t", h.UpstreamReachable)

	if h.Status == "healthy" {
		p.Success("Status: healthy")
	} else {
		p.Warn("Status: %s", h.Status)
	}
	return nil
}
