package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ingestRecorder records every path handed to the ingest callback.
type ingestRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *ingestRecorder) ingest(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *ingestRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, rec *ingestRecorder) {
	t.Helper()
	w, err := New(dir, rec.ingest, Options{QuietWindow: 100 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	// Give the watcher a moment to register the directory
	time.Sleep(50 * time.Millisecond)
}

func waitForCalls(t *testing.T, rec *ingestRecorder, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if calls := rec.calls(); len(calls) >= n {
			return calls
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d ingest calls, got %d", n, len(rec.calls()))
	return nil
}

func TestWatcher_IngestsNewPDF(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	startWatcher(t, dir, rec)

	path := filepath.Join(dir, "guide.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	calls := waitForCalls(t, rec, 1)
	assert.Equal(t, path, calls[0])
}

func TestWatcher_CoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	startWatcher(t, dir, rec)

	path := filepath.Join(dir, "guide.pdf")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 rev"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	waitForCalls(t, rec, 1)
	// Allow a second quiet window to elapse; no further calls should land
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, rec.calls(), 1)
}

func TestWatcher_IgnoresNonPDF(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	startWatcher(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.pdf"), []byte("%PDF-1.4"), 0o644))

	calls := waitForCalls(t, rec, 1)
	require.Len(t, calls, 1)
	assert.Equal(t, filepath.Join(dir, "real.pdf"), calls[0])
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	dir := t.TempDir()
	rec := &ingestRecorder{}
	w, err := New(dir, rec.ingest, Options{QuietWindow: 100 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.pdf"), []byte("%PDF-1.4"), 0o644))
	w.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.calls())
}
