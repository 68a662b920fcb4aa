package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces rapid write events on the same file.
const defaultDebounce = 500 * time.Millisecond

// watchedExtensions lists the file types the watcher ingests.
var watchedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".xlsx": true,
	".md": true, ".markdown": true, ".txt": true,
	".json": true, ".jsonl": true,
}

// Watcher ingests files dropped into a directory. Created and modified
// files are re-ingested after a debounce window; the dedup stage makes
// duplicate events harmless.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ingestor *Ingestor
	basePath string
	debounce time.Duration
	opts     *Options

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher creates a watcher over basePath. opts applies to every
// ingested file and may be nil.
func NewWatcher(ingestor *Ingestor, basePath string, opts *Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fsw,
		ingestor: ingestor,
		basePath: basePath,
		debounce: defaultDebounce,
		opts:     opts,
		pending:  make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is cancelled. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addRecursive(w.basePath); err != nil {
		return err
	}
	defer w.watcher.Close()

	slog.Info("Watching for documents", "path", w.basePath)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher error", "path", w.basePath, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// New subdirectories join the watch set.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.addRecursive(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
	w.mu.Unlock()
}

// flush ingests every pending file.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		res, err := w.ingestor.IngestFile(ctx, path, w.opts)
		if err != nil {
			slog.Error("Watcher ingest failed", "path", path, "error", err)
			continue
		}
		if res.Skipped {
			continue
		}
		slog.Info("Watcher ingested file", "path", path, "chunks", res.ChunksCreated)
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				slog.Warn("Failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}
