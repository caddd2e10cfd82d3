// Package watch ingests prescription images dropped into an inbox directory.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
)

var defaultExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Ingester stores the text found in one image.
type Ingester interface {
	ExtractAndStore(ctx context.Context, image []byte) (prescription.Record, error)
}

// Result reports the outcome for one file.
type Result struct {
	Path   string
	Record prescription.Record
	Err    error
}

// Watcher feeds new or rewritten image files to an Ingester. Events for the
// same path are debounced so a file is processed once per write burst.
type Watcher struct {
	ingest     Ingester
	extensions []string
	debounce   time.Duration
	onResult   func(Result)
	logger     zerolog.Logger
}

type Option func(*Watcher)

func WithExtensions(exts ...string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithResultHandler is called after every processed file.
func WithResultHandler(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

func New(ingest Ingester, opts ...Option) *Watcher {
	w := &Watcher{
		ingest:     ingest,
		extensions: defaultExtensions,
		debounce:   500 * time.Millisecond,
		logger:     logging.Component("watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Scan processes every image already present in dir, in name order.
func (w *Watcher) Scan(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && w.isWatchedExtension(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.process(ctx, filepath.Join(dir, name))
	}
	return nil
}

// Run watches dir until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return err
	}
	w.logger.Info().Str("dir", dir).Msg("watching inbox")

	ready := make(chan string, 64)
	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[path] = time.AfterFunc(w.debounce, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-ready:
			w.process(ctx, path)
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.isWatchedExtension(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				schedule(event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	result := Result{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Err = err
	} else {
		result.Record, result.Err = w.ingest.ExtractAndStore(ctx, data)
	}

	if result.Err != nil {
		w.logger.Warn().Err(result.Err).Str("path", path).Msg("skipping file")
	} else {
		w.logger.Info().Str("path", path).Str("id", result.Record.ID).Msg("prescription ingested")
	}
	if w.onResult != nil {
		w.onResult(result)
	}
}

func (w *Watcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
