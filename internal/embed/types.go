// Package embed generates vector embeddings for queries and chunks.
//
// Two backends are available: an HTTP backend speaking the Ollama embed
// protocol (the default, serving all-minilm:l6-v2 at 384 dimensions) and
// a deterministic hash-based static backend used for tests and offline
// operation. Both produce unit-normalized vectors so inner product
// equals cosine similarity in the vector store.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// Dimensions is the embedding width the index is built with. The
	// store rejects vectors of any other width.
	Dimensions = 384

	// DefaultBatchSize is the number of texts per embedding request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// ConnectTimeout bounds the availability probe.
	ConnectTimeout = 5 * time.Second

	// DefaultMaxRetries for transient embedding failures.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks whether the backend is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. The zero vector is
// returned unchanged so empty inputs stay inert under inner product.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
