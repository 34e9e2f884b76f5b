// Package watcher ingests files dropped into per-project inbox folders.
//
// Each project has one flat directory under the inbox root. A file
// dropped there is debounced until writes settle, handed to the ingest
// callback, and deleted on success. A file whose ingestion fails stays
// in place so the drop can be inspected and retried.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// IngestFunc receives a settled inbox file. A nil return means the file
// was absorbed and the watcher removes it from the inbox.
type IngestFunc func(ctx context.Context, projectID, path string) error

// Inbox watches per-project drop folders and feeds settled files to an
// ingest callback.
type Inbox struct {
	baseDir    string
	extensions []string
	ingest     IngestFunc
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]*time.Timer
	projects map[string]string // inbox dir -> project id
	started  bool
	ctx      context.Context

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithDebounce overrides how long a file must stay quiet before it is
// ingested.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewInbox creates a watcher over baseDir. extensions filters which
// files are picked up; an empty list accepts everything.
func NewInbox(baseDir string, extensions []string, ingest IngestFunc, logger *zap.Logger, opts ...Option) *Inbox {
	in := &Inbox{
		baseDir:    baseDir,
		extensions: extensions,
		ingest:     ingest,
		debounce:   defaultDebounce,
		logger:     logger,
		pending:    make(map[string]*time.Timer),
		projects:   make(map[string]string),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins watching. It runs until ctx is cancelled or Stop is
// called. Project folders are attached with AddProject.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(in.baseDir, 0755); err != nil {
		in.mu.Unlock()
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	in.watcher = w
	in.started = true
	in.ctx = ctx
	in.mu.Unlock()

	go in.run(ctx, w)
	return nil
}

func (in *Inbox) run(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err != nil {
				in.logger.Debug("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	projectID, ok := in.projectFor(path)
	if !ok {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		if matchExtension(path, in.extensions) {
			in.schedule(projectID, path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		in.cancelPending(path)
	}
}

// projectFor maps an event path to the project whose inbox contains it.
// Inbox folders are flat, so the parent directory decides.
func (in *Inbox) projectFor(path string) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	id, ok := in.projects[filepath.Dir(path)]
	return id, ok
}

// schedule (re)starts the settle timer for a path. Every write pushes
// the timer back, so a file being copied in slowly is not picked up
// until the copy finishes.
func (in *Inbox) schedule(projectID, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		ctx := in.ctx
		in.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		in.consume(ctx, projectID, path)
	})
}

func (in *Inbox) cancelPending(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

// consume hands one settled file to the ingest callback. Absorbed files
// are deleted from the inbox; failed files stay where they are.
func (in *Inbox) consume(ctx context.Context, projectID, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if err := in.ingest(ctx, projectID, path); err != nil {
		in.logger.Warn("inbox file not ingested",
			zap.String("project", projectID),
			zap.String("file", filepath.Base(path)),
			zap.Error(err))
		return
	}
	if err := os.Remove(path); err != nil {
		in.logger.Warn("failed to clear ingested file",
			zap.String("file", path),
			zap.Error(err))
		return
	}
	in.logger.Info("inbox file ingested",
		zap.String("project", projectID),
		zap.String("file", filepath.Base(path)))
}

// AddProject creates and begins watching the project's inbox folder.
// Files already sitting in the folder are scheduled as if just dropped.
func (in *Inbox) AddProject(projectID string) error {
	dir := filepath.Clean(filepath.Join(in.baseDir, projectID))

	in.mu.Lock()
	if !in.started || in.watcher == nil {
		in.mu.Unlock()
		return fmt.Errorf("inbox watcher is not running")
	}
	if _, ok := in.projects[dir]; ok {
		in.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		in.mu.Unlock()
		return err
	}
	if err := in.watcher.Add(dir); err != nil {
		in.mu.Unlock()
		return err
	}
	in.projects[dir] = projectID
	in.mu.Unlock()

	in.logger.Debug("inbox folder watched",
		zap.String("project", projectID),
		zap.String("dir", dir))
	in.sweep(projectID, dir)
	return nil
}

// RemoveProject stops watching a project's inbox folder. Files in the
// folder are left alone.
func (in *Inbox) RemoveProject(projectID string) {
	dir := filepath.Clean(filepath.Join(in.baseDir, projectID))

	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.projects[dir]; !ok {
		return
	}
	delete(in.projects, dir)
	if in.watcher != nil {
		_ = in.watcher.Remove(dir)
	}
	for path, t := range in.pending {
		if filepath.Dir(path) == dir {
			t.Stop()
			delete(in.pending, path)
		}
	}
}

// Projects returns the ids currently being watched.
func (in *Inbox) Projects() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	ids := make([]string, 0, len(in.projects))
	for _, id := range in.projects {
		ids = append(ids, id)
	}
	return ids
}

// sweep schedules files that were dropped while the folder was not
// watched.
func (in *Inbox) sweep(projectID, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		in.logger.Debug("inbox sweep failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if matchExtension(path, in.extensions) {
			in.schedule(projectID, path)
		}
	}
}

// Stop stops the watcher, cancels settle timers, and releases resources.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started || in.watcher == nil {
		in.mu.Unlock()
		return
	}
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	_ = in.watcher.Close()
	in.watcher = nil
	in.started = false
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
