// Package retrieve turns a query into a ranked, deduplicated set of
// chunks: embed, search the flat index, filter by score threshold, boost
// chunks whose source filename keywords appear in the query, then drop
// near-duplicate texts.
package retrieve

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/clearpath-ai/clearpath-rag/internal/embed"
	"github.com/clearpath-ai/clearpath-rag/internal/store"
)

const (
	// DefaultTopK is the number of candidates fetched from the index.
	DefaultTopK = 5

	// DefaultThreshold drops weak matches before boosting.
	DefaultThreshold = 0.35

	// filenameBoost is added when a source filename keyword occurs in
	// the query, at most once per chunk.
	filenameBoost = 0.05

	// dedupJaccardLimit is the character-set similarity above which two
	// chunk texts count as duplicates.
	dedupJaccardLimit = 0.80

	// minFilenameToken filters out short filename fragments like "v2".
	minFilenameToken = 3
)

var filenameSeparators = regexp.MustCompile(`[_\-.\s]+`)

// Result is a retrieved chunk with its final score.
type Result struct {
	Meta  store.ChunkMeta
	Score float32
}

// Retriever performs semantic retrieval against the vector store.
type Retriever struct {
	embedder embed.Embedder
	store    store.VectorStore

	topK      int
	threshold float32
}

// New creates a retriever with the given defaults. topK and threshold
// fall back to the package defaults when non-positive.
func New(embedder embed.Embedder, st store.VectorStore, topK int, threshold float32) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Retriever{
		embedder:  embedder,
		store:     st,
		topK:      topK,
		threshold: threshold,
	}
}

// Retrieve returns the top chunks for a query. The threshold applies to
// raw index scores, before the filename boost.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.store.Search(vec, r.topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.threshold {
			continue
		}
		results = append(results, Result{Meta: h.Meta, Score: h.Score})
	}

	results = applyFilenameBoost(query, results)
	return dedupe(results), nil
}

// applyFilenameBoost rewards chunks from files whose name keywords occur
// in the query, then re-sorts. A chunk from billing_guide.pdf ranks
// higher for a query mentioning "billing".
func applyFilenameBoost(query string, results []Result) []Result {
	lowerQuery := strings.ToLower(query)

	for i := range results {
		for _, token := range filenameKeywords(results[i].Meta.SourceFile) {
			if strings.Contains(lowerQuery, token) {
				results[i].Score += filenameBoost
				break
			}
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results
}

// filenameKeywords splits a source filename into lowercase tokens of at
// least three characters, with the .pdf suffix stripped.
func filenameKeywords(sourceFile string) []string {
	stem := strings.TrimSuffix(strings.ToLower(sourceFile), ".pdf")
	parts := filenameSeparators.Split(stem, -1)

	tokens := parts[:0]
	for _, p := range parts {
		if len(p) >= minFilenameToken {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// dedupe drops candidates whose text is near-identical to an already
// accepted chunk. A higher-scoring duplicate replaces the accepted one
// in place, keeping its rank position.
func dedupe(results []Result) []Result {
	accepted := make([]Result, 0, len(results))

	for _, cand := range results {
		candSet := charSet(cand.Meta.Text)
		duplicate := false
		for i := range accepted {
			if jaccard(candSet, charSet(accepted[i].Meta.Text)) > dedupJaccardLimit {
				duplicate = true
				if cand.Score > accepted[i].Score {
					accepted[i] = cand
				}
				break
			}
		}
		if !duplicate {
			accepted = append(accepted, cand)
		}
	}
	return accepted
}

func charSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

// jaccard computes set similarity. Two empty sets score 0, not 1, so
// empty chunks never collapse into each other.
func jaccard(a, b map[rune]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for r := range a {
		if _, ok := b[r]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
