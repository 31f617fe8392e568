package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	"github.com/clearpath-ai/clearpath-rag/internal/ingest"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
	"github.com/clearpath-ai/clearpath-rag/internal/token"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest PDF files or directories into the index",
		Long: `Ingest extracts text from the given PDFs, chunks and embeds it,
and persists the updated index. Directory arguments are scanned
for *.pdf files (non-recursively).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args)
		},
	}
}

func runIngest(ctx context.Context, args []string) error {
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

	paths, err := collectPDFs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF files found in %s", strings.Join(args, ", "))
	}

	ingestor := ingest.New(embedder, st, token.NewCounter())

	var total, failed int
	start := time.Now()
	for _, path := range paths {
		metas, err := ingestor.IngestPDF(ctx, path)
		if err != nil {
			p.Error("%s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		p.Success("%s: %d chunks", filepath.Base(path), len(metas))
		total += len(metas)
	}

	p.KeyValue("Files processed", "%d (%d failed)", len(paths)-failed, failed)
	p.KeyValue("Chunks added", "%d", total)
	p.KeyValue("Index size", "%d chunks", st.TotalChunks())
	p.KeyValue("Elapsed", "%s", time.Since(start).Round(10*time.Millisecond))

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

// collectPDFs expands file and directory arguments into a list of PDF paths.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				paths = append(paths, filepath.Join(arg, e.Name()))
			}
		}
	}
	return paths, nil
}
