// Package store holds the flat inner-product vector index and its
// position-addressed metadata sidecar.
//
// The index is exact: every search scans all vectors. At the corpus
// sizes this engine serves (thousands of chunks, not millions) a flat
// scan is faster than an approximate structure and has no recall loss.
//
// Two artifacts live on disk side by side: index.faiss holds the raw
// vectors in a small binary format, index.pkl holds a JSON array of
// chunk metadata. Position i in the vector block and position i in the
// sidecar describe the same chunk; the pair is loaded and persisted
// together and rejected if the lengths disagree.
package store

import "context"

// ChunkMeta is the metadata record stored alongside each vector. Field
// order and names match the on-disk sidecar schema.
type ChunkMeta struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SourceFile string `json:"source_file"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// SearchResult pairs a matched chunk with its inner-product score.
type SearchResult struct {
	Position int
	Score    float32
	Meta     ChunkMeta
}

// VectorStore is the retrieval-facing surface of the index.
type VectorStore interface {
	// Load reads the index pair from disk. Missing files yield an
	// empty, usable store.
	Load(ctx context.Context) error

	// Add appends vectors and their metadata in lockstep.
	Add(vectors [][]float32, metas []ChunkMeta) error

	// Search returns the top-k chunks by inner product, highest first.
	// An empty index returns an empty slice.
	Search(query []float32, k int) ([]SearchResult, error)

	// Persist writes both artifacts atomically.
	Persist(ctx context.Context) error

	// TotalChunks reports the number of stored chunks.
	TotalChunks() int

	// Dimension reports the vector width.
	Dimension() int

	// IsLoaded reports whether Load has completed.
	IsLoaded() bool
}
