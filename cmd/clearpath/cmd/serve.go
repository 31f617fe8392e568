package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clearpath-ai/clearpath-rag/internal/api"
	"github.com/clearpath-ai/clearpath-rag/internal/config"
	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	"github.com/clearpath-ai/clearpath-rag/internal/ingest"
	"github.com/clearpath-ai/clearpath-rag/internal/llm"
	"github.com/clearpath-ai/clearpath-rag/internal/logging"
	"github.com/clearpath-ai/clearpath-rag/internal/pipeline"
	"github.com/clearpath-ai/clearpath-rag/internal/querylog"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
	"github.com/clearpath-ai/clearpath-rag/internal/token"
	"github.com/clearpath-ai/clearpath-rag/internal/watcher"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve loads the vector index, verifies the upstream configuration
and starts the HTTP API. With --watch, PDFs dropped into the
document directory are ingested automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Auto-ingest new PDFs from the document directory")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, watch bool) error {
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Server.LogLevel,
		FilePath:      cfg.Paths.AppLogPath,
		WriteToStderr: true,
	})
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(logger)

	embedder, err := embed.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	st := store.NewFlatStore(cfg.IndexPath(), cfg.SidecarPath(), cfg.RAG.EmbeddingDim)
	if err := st.Load(ctx); err != nil {
		return err
	}
	slog.Info("index loaded", "chunks", st.TotalChunks(), "dim", st.Dimension())

	qlog := querylog.New(cfg.Paths.QueryLogPath)
	engine := pipeline.New(cfg, embedder, st, llm.New(cfg.GroqAPIKey, cfg.GroqBaseURL), qlog)
	ingestor := ingest.New(embedder, st, token.NewCounter())

	srv := api.NewServer(cfg, engine, ingestor, qlog)
	httpSrv := srv.HTTPServer()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", srv.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if watch {
		w, err := watcher.New(cfg.Paths.PDFDir, func(ctx context.Context, path string) error {
			_, err := ingestor.IngestPDF(ctx, path)
			return err
		}, watcher.Options{})
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
