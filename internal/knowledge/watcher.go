package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"JarvisChat/internal/backend"

	"github.com/fsnotify/fsnotify"
)

// WatchEvent reports what happened to one file
type WatchEvent struct {
	Path    string
	Result  *backend.IngestResult
	Skipped bool // content unchanged since the last ingest
	Err     error
}

// WatcherOptions configures a Watcher
type WatcherOptions struct {
	Extensions []string // e.g. ".txt", ".md"
	Category   string
	MaxBytes   int64
	Logger     *slog.Logger
}

// Watcher ingests files that are created or modified in a directory
type Watcher struct {
	svc        *Service
	watcher    *fsnotify.Watcher
	extensions []string
	category   string
	maxBytes   int64
	logger     *slog.Logger

	mu   sync.Mutex
	seen map[string]string // path -> content hash
}

// NewWatcher creates a directory watcher that feeds svc
func NewWatcher(svc *Service, opts WatcherOptions) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = []string{".txt", ".md"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		svc:        svc,
		watcher:    w,
		extensions: extensions,
		category:   opts.Category,
		maxBytes:   opts.MaxBytes,
		logger:     logger.With("component", "watcher"),
		seen:       make(map[string]string),
	}, nil
}

// Watch ingests matching files already in dir, then every file created or
// written there, until ctx is done. onEvent may be nil.
func (w *Watcher) Watch(ctx context.Context, dir string, onEvent func(WatchEvent)) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info("watching directory", "dir", dir, "extensions", w.extensions)

	emit := func(ev WatchEvent) {
		if onEvent != nil {
			onEvent(ev)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if w.isWatchedExtension(path) {
			emit(w.ingest(ctx, path))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.isWatchedExtension(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			emit(w.ingest(ctx, event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) ingest(ctx context.Context, path string) WatchEvent {
	ev := WatchEvent{Path: path}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		ev.Err = err
		if ev.Err == nil {
			ev.Err = fmt.Errorf("%s is a directory", path)
		}
		return ev
	}

	doc, err := ReadDocument(path, w.category, w.maxBytes)
	if err != nil {
		ev.Err = err
		w.logger.Warn("failed to read file", "path", path, "error", err)
		return ev
	}
	if strings.TrimSpace(doc.Text) == "" {
		// editors often create the file before writing to it
		ev.Skipped = true
		return ev
	}

	hash := ContentHash(doc.Text)
	if w.unchanged(ctx, path, doc.Source, hash) {
		ev.Skipped = true
		return ev
	}

	res, err := w.svc.Ingest(ctx, doc)
	if err != nil {
		ev.Err = err
		w.logger.Warn("failed to ingest file", "path", path, "error", err)
		return ev
	}

	w.mu.Lock()
	w.seen[path] = hash
	w.mu.Unlock()

	ev.Result = res
	return ev
}

func (w *Watcher) unchanged(ctx context.Context, path, source, hash string) bool {
	w.mu.Lock()
	prev, ok := w.seen[path]
	w.mu.Unlock()
	if ok {
		return prev == hash
	}

	latest, found, err := w.svc.LatestHash(ctx, source)
	if err != nil {
		w.logger.Warn("failed to look up previous ingest", "source", source, "error", err)
		return false
	}
	return found && latest == hash
}

// isWatchedExtension checks if the file has a watched extension
func (w *Watcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
