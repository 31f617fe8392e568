package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
	"github.com/clearpath-ai/clearpath-rag/internal/token"
)

func newTestIngestor(t *testing.T) (*Ingestor, *store.FlatStore, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewFlatStore(
		filepath.Join(dir, "index.faiss"),
		filepath.Join(dir, "index.pkl"),
		embed.Dimensions,
	)
	require.NoError(t, st.Load(context.Background()))
	return New(embed.NewStaticEmbedder(), st, token.NewCounter()), st, dir
}

// annotate joins page texts with [PAGE_BREAK:N] markers the way
// extraction does.
func annotate(pages ...string) string {
	var sb strings.Builder
	for i, p := range pages {
		sb.WriteString(p)
		sb.WriteString("\n[PAGE_BREAK:")
		sb.WriteString(string(rune('0' + i + 1)))
		sb.WriteString("]\n")
	}
	return sb.String()
}

func TestIngestText_ChunkInvariants(t *testing.T) {
	// Given a two-page document
	ing, st, _ := newTestIngestor(t)
	fullText := annotate(
		"Clearpath offers Pro and Enterprise plans.\n\nThe Pro plan costs $49/month.",
		"Refunds are available within 30 days of purchase.",
	)

	// When ingesting
	metas, err := ing.ingestText(context.Background(), fullText, "plans.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, metas)

	// Then every chunk satisfies the structural invariants
	for i, m := range metas {
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, "plans.pdf", m.SourceFile)
		assert.GreaterOrEqual(t, m.Page, 1)
		assert.Equal(t, i, m.ChunkIndex)
		assert.NotContains(t, m.Text, "PAGE_BREAK")
	}
	assert.Equal(t, len(metas), st.TotalChunks())
}

func TestIngestText_PersistsToDisk(t *testing.T) {
	ing, st, dir := newTestIngestor(t)

	_, err := ing.ingestText(context.Background(), annotate("Some document text worth indexing."), "doc.pdf")
	require.NoError(t, err)

	// A fresh store sees the chunks
	st2 := store.NewFlatStore(
		filepath.Join(dir, "index.faiss"),
		filepath.Join(dir, "index.pkl"),
		embed.Dimensions,
	)
	require.NoError(t, st2.Load(context.Background()))
	assert.Equal(t, st.TotalChunks(), st2.TotalChunks())
}

func TestIngestText_EmptyTextRejected(t *testing.T) {
	ing, _, _ := newTestIngestor(t)

	_, err := ing.ingestText(context.Background(), annotate("   ", "  "), "blank.pdf")
	require.Error(t, err)
	assert.Equal(t, cperrors.ErrCodeInvalidInput, cperrors.GetCode(err))
}

func TestIngestPDF_GarbageFileRejected(t *testing.T) {
	ing, _, _ := newTestIngestor(t)
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	_, err := ing.IngestPDF(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, cperrors.ErrCodeInvalidPDF, cperrors.GetCode(err))
	// An unparsable PDF is a processing failure, not bad caller input
	assert.Equal(t, cperrors.CategoryInternal, cperrors.GetCategory(err))
}

func TestRecursiveSplit_ShortTextSingleChunk(t *testing.T) {
	s := &splitter{tokens: token.NewCounter()}

	chunks := s.recursiveSplit("a short paragraph", separators)
	assert.Equal(t, []string{"a short paragraph"}, chunks)
}

func TestRecursiveSplit_LongTextSplitsWithOverlap(t *testing.T) {
	// Given many paragraphs that together exceed the chunk budget
	s := &splitter{tokens: token.NewCounter()}
	para := strings.Repeat("support documentation sentence with useful words ", 20)
	full := strings.TrimSpace(strings.Repeat(para+"\n\n", 8))

	chunks := s.recursiveSplit(full, separators)

	// Then every chunk respects the token budget
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, s.tokens.Count(c), chunkSize, "chunk %d", i)
	}

	// And consecutive chunks share overlap text
	tail := s.tokens.LastN(chunks[0], chunkOverlap)
	assert.True(t, strings.HasPrefix(chunks[1], tail))
}

func TestRecursiveSplit_NoSeparatorFallsBackToHalving(t *testing.T) {
	// Given a single run of words with no hierarchy separator but spaces,
	// stripped of all separators for the pathological path
	s := &splitter{tokens: token.NewCounter()}
	long := strings.TrimSpace(strings.Repeat("word ", 900))

	chunks := s.recursiveSplit(long, nil)

	require.Len(t, chunks, 2)
	firstWords := len(strings.Fields(chunks[0]))
	secondWords := len(strings.Fields(chunks[1]))
	assert.Equal(t, 900, firstWords+secondWords)
	assert.InDelta(t, firstWords, secondWords, 1)
}

func TestChunkText_PageAttribution(t *testing.T) {
	s := &splitter{tokens: token.NewCounter()}
	fullText := annotate(
		"First page content about billing.",
		"Second page content about refunds.",
		"Third page content about cancellation.",
	)

	chunks := s.chunkText(fullText)

	// Short document: one chunk, attributed to a valid page
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.Page, 1)
		assert.LessOrEqual(t, c.Page, 3)
	}
}

func TestChunkText_MultiChunkPagesNondecreasing(t *testing.T) {
	// Given two long pages
	s := &splitter{tokens: token.NewCounter()}
	pageOne := strings.TrimSpace(strings.Repeat("alpha beta gamma delta epsilon zeta eta theta ", 120))
	pageTwo := strings.TrimSpace(strings.Repeat("one two three four five six seven eight ", 120))
	fullText := annotate(pageOne, pageTwo)

	chunks := s.chunkText(fullText)
	require.Greater(t, len(chunks), 1)

	last := 0
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.Page, last)
		last = c.Page
	}
}

func TestBuildPageMap(t *testing.T) {
	fullText := "aaa\n[PAGE_BREAK:1]\nbbb\n[PAGE_BREAK:2]\n"
	pm := buildPageMap(fullText)

	require.Len(t, pm, 2)
	assert.Equal(t, 1, pm[0][1])
	assert.Equal(t, 2, pm[1][1])
	assert.Less(t, pm[0][0], pm[1][0])
}

func TestLookupPage(t *testing.T) {
	pm := [][2]int{{10, 1}, {30, 2}, {60, 3}}

	assert.Equal(t, 1, lookupPage(0, pm))
	assert.Equal(t, 1, lookupPage(15, pm))
	assert.Equal(t, 2, lookupPage(30, pm))
	assert.Equal(t, 3, lookupPage(999, pm))
}

