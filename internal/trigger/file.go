package trigger

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/HendryAvila/devpulse/internal/engine"
	"github.com/HendryAvila/devpulse/internal/logging"
)

// FileSource watches source directories and emits a file_change event for
// every write or create of a recognized source file.
type FileSource struct {
	root       string
	paths      []string
	extensions map[string]bool
	excludes   []string
	resolver   Resolver
	logger     *log.Logger
}

// FileOptions configures a FileSource.
type FileOptions struct {
	// Paths are watched recursively; relative entries resolve against root.
	Paths []string
	// Extensions is the allow-list, with leading dots.
	Extensions []string
	// Excludes are glob patterns. A trailing slash matches a directory
	// name anywhere in the path; other patterns match the base name or,
	// when they contain a slash, the root-relative path.
	Excludes []string
	Logger   *log.Logger
}

// NewFileSource creates a FileSource for the project at root.
func NewFileSource(root string, r Resolver, opts FileOptions) *FileSource {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &FileSource{
		root:       root,
		paths:      opts.Paths,
		extensions: exts,
		excludes:   opts.Excludes,
		resolver:   r,
		logger:     opts.Logger.With("source", "file"),
	}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Run implements Source. Watch paths that do not exist are skipped.
func (s *FileSource) Run(ctx context.Context, emit func(Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: creating watcher: %v", engine.ErrSignalUnavailable, err)
	}
	defer func() { _ = w.Close() }()

	watched := 0
	for _, p := range s.paths {
		dir := p
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(s.root, dir)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			s.logger.Debug("watch path missing", "path", p)
			continue
		}
		watched += s.addTree(w, dir)
	}
	s.logger.Info("watching", "directories", watched)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handle(w, ev, emit)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "err", err)
		}
	}
}

func (s *FileSource) handle(w *fsnotify.Watcher, ev fsnotify.Event, emit func(Event)) {
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !s.Excluded(ev.Name) {
				s.addTree(w, ev.Name)
			}
			return
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !s.Accept(ev.Name) {
		return
	}

	ref, err := s.resolver.TaskForFile(ev.Name)
	if err != nil {
		s.logger.Debug("unresolved file change", "path", ev.Name, "err", err)
		return
	}
	emit(Event{
		ReqID:  ref.ReqID,
		TaskID: ref.TaskID,
		Kind:   engine.KindFileChange,
		Detail: s.rel(ev.Name),
		At:     timeNow(),
	})
}

// addTree watches dir and every non-excluded directory below it and
// returns how many directories were added.
func (s *FileSource) addTree(w *fsnotify.Watcher, dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != dir && s.Excluded(p) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			s.logger.Warn("cannot watch directory", "path", p, "err", err)
			return nil
		}
		n++
		return nil
	})
	return n
}

// Accept reports whether a changed file should produce an event.
func (s *FileSource) Accept(p string) bool {
	if len(s.extensions) > 0 && !s.extensions[strings.ToLower(filepath.Ext(p))] {
		return false
	}
	return !s.Excluded(p)
}

// Excluded reports whether p matches any exclude pattern.
func (s *FileSource) Excluded(p string) bool {
	rel := s.rel(p)
	segments := strings.Split(rel, "/")
	base := path.Base(rel)

	for _, pattern := range s.excludes {
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			for _, seg := range segments {
				if m, _ := path.Match(dir, seg); m {
					return true
				}
			}
			continue
		}
		target := base
		if strings.Contains(pattern, "/") {
			target = rel
		}
		if m, _ := path.Match(pattern, target); m {
			return true
		}
	}
	return false
}

// rel returns p relative to the project root with forward slashes.
func (s *FileSource) rel(p string) string {
	if filepath.IsAbs(p) {
		if r, err := filepath.Rel(s.root, p); err == nil && !strings.HasPrefix(r, "..") {
			p = r
		}
	}
	return filepath.ToSlash(p)
}
