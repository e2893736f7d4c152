// Package inbox turns text files dropped into a directory into captures.
//
// Every accepted file is read, captured for the configured owner and then
// removed. A file that cannot be captured is moved under .failed/ with the
// same relative path so it is never retried in a loop, together with a
// .err file holding the reason.
package inbox

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/zettel/internal/noteservice"
	"github.com/starford/zettel/internal/storage"
)

// FailedDir holds files that could not be captured.
const FailedDir = ".failed"

// ErrSuffix names the file beside a failed capture that holds the reason.
const ErrSuffix = ".err"

// DefaultSettle is how long a file must stay quiet before it is captured.
const DefaultSettle = 200 * time.Millisecond

// Extensions accepted by default.
var DefaultExtensions = []string{".md", ".txt"}

// Capturer persists a capture.
type Capturer interface {
	CreateNote(ctx context.Context, owner int64, in noteservice.CreateInput) (*noteservice.NoteDetail, error)
}

// Watcher captures files from an inbox directory.
type Watcher struct {
	fs     *storage.FS
	svc    Capturer
	owner  int64
	logger *slog.Logger
	exts   []string
	settle time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithExtensions overrides the accepted file extensions (with leading dot).
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.exts = make([]string, len(exts))
		for i, e := range exts {
			w.exts[i] = strings.ToLower(e)
		}
	}
}

// WithSettle overrides the quiet period before a changed file is captured.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

func New(fsys *storage.FS, svc Capturer, owner int64, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		fs:     fsys,
		svc:    svc,
		owner:  owner,
		logger: logger,
		exts:   DefaultExtensions,
		settle: DefaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Scan captures every file already in the inbox and returns how many
// captures were created.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	files, err := w.fs.List("", w.exts...)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if w.capture(ctx, f.Path) {
			n++
		}
	}
	return n, nil
}

// Run scans the inbox once and then captures new and changed files until ctx
// is cancelled. New directories are watched as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.fs.Root()); err != nil {
		return err
	}
	w.logger.Info("inbox: started", slog.String("root", w.fs.Root()))

	if n, err := w.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("inbox: initial scan failed", slog.String("error", err.Error()))
	} else if n > 0 {
		w.logger.Info("inbox: captured existing files", slog.Int("count", n))
	}

	// Editors write in several steps; pending paths are captured once they
	// have been quiet for the settle period.
	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time
	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if settleTimer == nil {
			settleTimer = time.NewTimer(w.settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(w.settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			w.logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for rel := range pending {
				delete(pending, rel)
				w.capture(ctx, rel)
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			rel, err := w.fs.Rel(ev.Name)
			if err != nil || hidden(rel) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						w.logger.Warn("inbox: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					}
					// Files can land in the directory before it is watched.
					files, _ := w.fs.List(rel, w.exts...)
					for _, f := range files {
						schedule(f.Path)
					}
					continue
				}
			}
			if storage.Accepts(rel, w.exts...) {
				schedule(rel)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// capture turns one file into a capture and reports whether it succeeded.
func (w *Watcher) capture(ctx context.Context, rel string) bool {
	data, err := w.fs.Read(rel)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if err != nil {
		w.logger.Warn("inbox: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}

	d, err := w.svc.CreateNote(ctx, w.owner, noteservice.CreateInput{Content: string(data)})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.logger.Warn("inbox: capture failed",
			slog.String("path", rel),
			slog.String("error", err.Error()))
		w.moveToFailed(rel, err)
		return false
	}
	if err := w.fs.Delete(rel); err != nil {
		w.logger.Error("inbox: remove captured file", slog.String("path", rel), slog.String("error", err.Error()))
	}
	w.logger.Info("inbox: captured",
		slog.String("path", rel),
		slog.Int64("note_id", d.ID),
		slog.String("slug", d.Slug))
	return true
}

// moveToFailed parks rel under FailedDir and records the cause next to it
// as <name>.err.
func (w *Watcher) moveToFailed(rel string, cause error) {
	dst := filepath.Join(FailedDir, rel)
	if err := w.fs.Move(rel, dst); err != nil {
		w.logger.Error("inbox: move to failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if err := w.fs.Write(dst+ErrSuffix, []byte(cause.Error()+"\n")); err != nil {
		w.logger.Error("inbox: write failure reason", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

// hidden reports whether any element of rel starts with a dot.
func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
