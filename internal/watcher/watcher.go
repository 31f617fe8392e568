// Package watcher auto-ingests PDFs dropped into the document directory.
// Events are debounced per file so a document is only ingested after
// writes to it have quieted down.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// IngestFunc processes one PDF file.
type IngestFunc func(ctx context.Context, path string) error

// Options configures the watcher behavior.
type Options struct {
	// QuietWindow is how long a file must go without write events
	// before it is ingested. Default: 2s.
	QuietWindow time.Duration
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.QuietWindow == 0 {
		o.QuietWindow = 2 * time.Second
	}
	return o
}

// PDFWatcher watches a single flat directory for new or rewritten PDFs.
type PDFWatcher struct {
	dir    string
	ingest IngestFunc
	opts   Options
	fsw    *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// New creates a watcher over dir. Run must be called to start it.
func New(dir string, ingest IngestFunc, opts Options) (*PDFWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &PDFWatcher{
		dir:     dir,
		ingest:  ingest,
		opts:    opts.WithDefaults(),
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches until the context is cancelled or Stop is called.
func (w *PDFWatcher) Run(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.Info("watching for new PDFs", "dir", w.dir, "quiet_window", w.opts.QuietWindow)

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *PDFWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
		return
	}
	w.schedule(ctx, event.Name)
}

// schedule resets the quiet timer for path. When the timer fires without
// further writes, the file is ingested.
func (w *PDFWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.opts.QuietWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		slog.Info("auto-ingesting PDF", "file", filepath.Base(path))
		if err := w.ingest(ctx, path); err != nil {
			slog.Error("auto-ingest failed", "file", filepath.Base(path), "error", err)
		}
	})
}

// Stop stops the watcher and cancels all pending ingests.
// Safe to call multiple times.
func (w *PDFWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	_ = w.fsw.Close()
}
