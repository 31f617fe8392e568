package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
)

// FlatStore is an exact inner-product vector store guarded by a single
// RWMutex: searches take the read lock, ingestion takes the write lock.
type FlatStore struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	meta    []ChunkMeta
	loaded  bool

	indexPath   string
	sidecarPath string
	fileLock    *flock.Flock
}

var _ VectorStore = (*FlatStore)(nil)

// NewFlatStore creates a store persisting to the given artifact paths.
// The expected dimension is fixed at construction; vectors of any other
// width are rejected.
func NewFlatStore(indexPath, sidecarPath string, dim int) *FlatStore {
	return &FlatStore{
		dim:         dim,
		indexPath:   indexPath,
		sidecarPath: sidecarPath,
		fileLock:    flock.New(indexPath + ".lock"),
	}
}

// Load reads the index pair from disk. If neither artifact exists the
// store comes up empty and usable. A dimension mismatch or a length
// disagreement between the two artifacts is fatal.
func (s *FlatStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexExists := fileExists(s.indexPath)
	sidecarExists := fileExists(s.sidecarPath)

	if !indexExists && !sidecarExists {
		s.vectors = nil
		s.meta = nil
		s.loaded = true
		slog.Info("no index on disk, starting empty",
			"index_path", s.indexPath)
		return nil
	}

	if indexExists != sidecarExists {
		return cperrors.New(cperrors.ErrCodeCorruptIndex,
			fmt.Sprintf("index artifacts out of sync: index=%v sidecar=%v", indexExists, sidecarExists), nil)
	}

	f, err := os.Open(s.indexPath)
	if err != nil {
		return cperrors.New(cperrors.ErrCodeCorruptIndex, "open index", err)
	}
	defer func() { _ = f.Close() }()

	dim, vectors, err := readIndex(f)
	if err != nil {
		return cperrors.New(cperrors.ErrCodeCorruptIndex, "decode index", err)
	}
	if dim != s.dim {
		return cperrors.DimensionError(s.dim, dim)
	}

	sidecarData, err := os.ReadFile(s.sidecarPath)
	if err != nil {
		return cperrors.New(cperrors.ErrCodeCorruptIndex, "read sidecar", err)
	}
	var meta []ChunkMeta
	if err := json.Unmarshal(sidecarData, &meta); err != nil {
		return cperrors.New(cperrors.ErrCodeCorruptIndex, "decode sidecar", err)
	}

	if len(meta) != len(vectors) {
		return cperrors.New(cperrors.ErrCodeCorruptIndex,
			fmt.Sprintf("sidecar length %d does not match vector count %d", len(meta), len(vectors)), nil)
	}

	s.vectors = vectors
	s.meta = meta
	s.loaded = true
	slog.Info("index loaded",
		"chunks", len(vectors),
		"dimensions", dim,
		"index_path", s.indexPath)
	return nil
}

// Add appends vectors and metadata in lockstep. Either everything is
// appended or nothing is.
func (s *FlatStore) Add(vectors [][]float32, metas []ChunkMeta) error {
	if len(vectors) != len(metas) {
		return cperrors.InternalError(
			fmt.Sprintf("vectors and metadata length mismatch: %d vs %d", len(vectors), len(metas)), nil)
	}
	for _, v := range vectors {
		if len(v) != s.dim {
			return cperrors.DimensionError(s.dim, len(v))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = append(s.vectors, vectors...)
	s.meta = append(s.meta, metas...)
	return nil
}

// Search scans all vectors and returns the top-k by inner product,
// highest first. Queries are unit vectors, so this is cosine ranking.
func (s *FlatStore) Search(query []float32, k int) ([]SearchResult, error) {
	if len(query) != s.dim {
		return nil, cperrors.DimensionError(s.dim, len(query))
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, len(s.vectors))
	for i, vec := range s.vectors {
		results[i] = SearchResult{
			Position: i,
			Score:    dotProduct(query, vec),
			Meta:     s.meta[i],
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Persist writes both artifacts with temp-file-plus-rename so a crash
// mid-write never leaves a torn index. A file lock on the index path
// serializes persists across processes.
func (s *FlatStore) Persist(ctx context.Context) error {
	locked, err := s.fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return cperrors.New(cperrors.ErrCodePersist, "acquire index lock", err)
	}
	if !locked {
		return cperrors.New(cperrors.ErrCodePersist, "index lock held by another process", nil)
	}
	defer func() { _ = s.fileLock.Unlock() }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0o755); err != nil {
		return cperrors.New(cperrors.ErrCodePersist, "create index directory", err)
	}

	tmpIndex := s.indexPath + ".tmp"
	f, err := os.Create(tmpIndex)
	if err != nil {
		return cperrors.New(cperrors.ErrCodePersist, "create temp index", err)
	}
	if err := writeIndex(f, s.dim, s.vectors); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpIndex)
		return cperrors.New(cperrors.ErrCodePersist, "write index", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpIndex)
		return cperrors.New(cperrors.ErrCodePersist, "close temp index", err)
	}

	sidecarData, err := json.Marshal(s.meta)
	if err != nil {
		_ = os.Remove(tmpIndex)
		return cperrors.New(cperrors.ErrCodePersist, "encode sidecar", err)
	}
	tmpSidecar := s.sidecarPath + ".tmp"
	if err := os.WriteFile(tmpSidecar, sidecarData, 0o644); err != nil {
		_ = os.Remove(tmpIndex)
		return cperrors.New(cperrors.ErrCodePersist, "write sidecar", err)
	}

	if err := os.Rename(tmpIndex, s.indexPath); err != nil {
		_ = os.Remove(tmpIndex)
		_ = os.Remove(tmpSidecar)
		return cperrors.New(cperrors.ErrCodePersist, "rename index", err)
	}
	if err := os.Rename(tmpSidecar, s.sidecarPath); err != nil {
		_ = os.Remove(tmpSidecar)
		return cperrors.New(cperrors.ErrCodePersist, "rename sidecar", err)
	}

	slog.Info("index persisted",
		"chunks", len(s.meta),
		"index_path", s.indexPath)
	return nil
}

// TotalChunks reports the number of stored chunks.
func (s *FlatStore) TotalChunks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta)
}

// Dimension reports the vector width.
func (s *FlatStore) Dimension() int { return s.dim }

// IsLoaded reports whether Load has completed.
func (s *FlatStore) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
