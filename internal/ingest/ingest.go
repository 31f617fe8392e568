// Package ingest turns PDF files into embedded, persisted chunks. The
// pipeline is extract, annotate with page markers, recursively split,
// attribute pages, embed in batches, then append to the vector store
// and persist. Ingestion is serialized per process.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dslipak/pdf"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
	"github.com/clearpath-ai/clearpath-rag/internal/text"
	"github.com/clearpath-ai/clearpath-rag/internal/token"
)

// embedConcurrency bounds parallel embedding batches during ingestion.
const embedConcurrency = 4

// Ingestor runs the PDF ingestion pipeline. The mutex keeps at most one
// ingestion in flight per process; queries keep reading the store
// concurrently.
type Ingestor struct {
	mu       sync.Mutex
	embedder embed.Embedder
	store    store.VectorStore
	splitter *splitter
}

// New creates an ingestor sharing the process-wide embedder, store and
// token counter.
func New(embedder embed.Embedder, st store.VectorStore, tokens *token.Counter) *Ingestor {
	return &Ingestor{
		embedder: embedder,
		store:    st,
		splitter: &splitter{tokens: tokens},
	}
}

// IngestPDF ingests one PDF and returns the chunk metadata that was
// added to the index. The store is persisted before returning, so a
// completed ingest is visible to every later query.
func (ing *Ingestor) IngestPDF(ctx context.Context, path string) ([]store.ChunkMeta, error) {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	filename := filepath.Base(path)
	slog.Info("starting ingestion", "file", filename)

	fullText, totalPages, err := extractText(path)
	if err != nil {
		return nil, err
	}
	slog.Info("extracted pdf text", "file", filename, "pages", totalPages)

	return ing.ingestText(ctx, fullText, filename)
}

// ingestText chunks, embeds and stores already-extracted annotated text.
func (ing *Ingestor) ingestText(ctx context.Context, fullText, filename string) ([]store.ChunkMeta, error) {
	chunks := ing.splitter.chunkText(fullText)
	if len(chunks) == 0 {
		return nil, cperrors.ValidationError(
			fmt.Sprintf("PDF %q produced no chunks after splitting", filename), nil)
	}
	slog.Info("split into chunks", "file", filename, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ing.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	metas := make([]store.ChunkMeta, len(chunks))
	for i, c := range chunks {
		metas[i] = store.ChunkMeta{
			ID:         uuid.NewString(),
			Text:       c.Text,
			SourceFile: filename,
			Page:       c.Page,
			ChunkIndex: i,
		}
	}

	if err := ing.store.Add(vectors, metas); err != nil {
		return nil, err
	}
	if err := ing.store.Persist(ctx); err != nil {
		return nil, err
	}

	slog.Info("ingestion complete", "file", filename, "chunks", len(metas))
	return metas, nil
}

// embedAll embeds chunk texts in fixed-size batches run concurrently,
// writing results into position so output order matches input order.
func (ing *Ingestor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embed.DefaultBatchSize {
		start := start
		end := min(start+embed.DefaultBatchSize, len(texts))
		g.Go(func() error {
			vecs, err := ing.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, cperrors.New(cperrors.ErrCodeEmbeddingFailed, "embed chunks", err)
	}
	return vectors, nil
}

// extractText opens a PDF and concatenates sanitized page text, with a
// [PAGE_BREAK:N] marker after each page.
func extractText(path string) (fullText string, totalPages int, err error) {
	reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, cperrors.New(cperrors.ErrCodeInvalidPDF,
			fmt.Sprintf("cannot open PDF %q", filepath.Base(path)), err)
	}

	totalPages = reader.NumPage()
	var sb strings.Builder
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		pageText := ""
		if !page.V.IsNull() {
			if extracted, err := page.GetPlainText(nil); err == nil {
				pageText = extracted
			}
		}
		sb.WriteString(text.SanitizePageText(pageText))
		fmt.Fprintf(&sb, "\n[PAGE_BREAK:%d]\n", pageNum)
	}
	fullText = sb.String()

	if strings.TrimSpace(pageBreakRE.ReplaceAllString(fullText, "")) == "" {
		return "", 0, cperrors.New(cperrors.ErrCodeNoExtractableText,
			fmt.Sprintf("PDF %q contains no extractable text; scanned image-only PDFs are not supported", filepath.Base(path)), nil)
	}

	return fullText, totalPages, nil
}
