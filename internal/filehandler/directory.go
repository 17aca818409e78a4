package filehandler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ScanError is returned when the scan root cannot be used at all.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("cannot scan %s: %v", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// WorkItem is one discovered image awaiting processing.
type WorkItem struct {
	// Path is the absolute path of the file.
	Path string
	// RelPath is Path relative to the scan root.
	RelPath string
}

// RelDir is the directory part of RelPath, "." for files at the root.
func (w WorkItem) RelDir() string {
	return filepath.Dir(w.RelPath)
}

// SkipFunc decides whether a matching file should be left out of the run.
// It returns a short reason for the skip, used in logs.
type SkipFunc func(item WorkItem) (skip bool, reason string)

// WalkOptions configures a Walker.
type WalkOptions struct {
	// Extensions are the accepted file extensions, lower-case with a leading dot.
	// Empty means every extension in SupportedImageExtensions.
	Extensions []string
	// ExcludeDirs are absolute directories never descended into.
	ExcludeDirs []string
	// Skip, if set, is consulted for every matching file.
	Skip SkipFunc
}

// Walker produces the WorkItems under a root directory. Each call to Items
// starts a fresh traversal; there is no resuming a partial one.
type Walker struct {
	root       string
	extensions map[string]bool
	exclude    map[string]bool
	skip       SkipFunc

	mu       sync.Mutex
	skipped  int
	warnings []string
}

// NewWalker validates root and returns a Walker over it. A missing,
// non-directory or unreadable root is a *ScanError.
func NewWalker(root string, opts WalkOptions) (*Walker, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}
	absRoot = realPath(absRoot)

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, &ScanError{Root: absRoot, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Root: absRoot, Err: fmt.Errorf("not a directory")}
	}
	f, err := os.Open(absRoot)
	if err != nil {
		return nil, &ScanError{Root: absRoot, Err: err}
	}
	_, err = f.ReadDir(1)
	f.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &ScanError{Root: absRoot, Err: err}
	}

	w := &Walker{
		root:       absRoot,
		extensions: make(map[string]bool),
		exclude:    make(map[string]bool),
		skip:       opts.Skip,
	}
	for _, ext := range opts.Extensions {
		w.extensions[strings.ToLower(ext)] = true
	}
	if len(w.extensions) == 0 {
		for ext := range SupportedImageExtensions {
			w.extensions[ext] = true
		}
	}
	for _, dir := range opts.ExcludeDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			w.exclude[realPath(abs)] = true
		}
	}
	return w, nil
}

// realPath resolves symlinks in an absolute path, leaving it unchanged when
// it cannot be resolved. Walked paths are compared against resolved excludes.
func realPath(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Root returns the absolute scan root.
func (w *Walker) Root() string {
	return w.root
}

// Items lazily walks the tree in lexical order, yielding one WorkItem per
// matching file. Unreadable subdirectories are recorded as warnings and
// skipped. Iteration stops early when ctx is done or the consumer breaks.
// Symlinks to files are followed; symlinks to directories are not.
func (w *Walker) Items(ctx context.Context) iter.Seq[WorkItem] {
	return func(yield func(WorkItem) bool) {
		log.Info().
			Str("path", w.root).
			Int("extensions", len(w.extensions)).
			Msg("Scanning directory for images")

		w.mu.Lock()
		w.skipped = 0
		w.warnings = nil
		w.mu.Unlock()

		found := 0
		_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			if err != nil {
				if path == w.root {
					return err
				}
				w.warn(path, err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path != w.root && w.exclude[path] {
					log.Debug().Str("path", path).Msg("Skipping excluded directory")
					return fs.SkipDir
				}
				return nil
			}

			if !w.extensions[strings.ToLower(filepath.Ext(d.Name()))] {
				return nil
			}

			if d.Type()&fs.ModeSymlink != 0 {
				targetInfo, err := os.Stat(path)
				if err != nil {
					w.warn(path, fmt.Errorf("failed to resolve symlink: %w", err))
					return nil
				}
				if targetInfo.IsDir() {
					log.Debug().Str("path", path).Msg("Skipping symlink to directory")
					return nil
				}
			} else if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(w.root, path)
			if err != nil {
				w.warn(path, err)
				return nil
			}
			item := WorkItem{Path: path, RelPath: rel}

			if w.skip != nil {
				if skip, reason := w.skip(item); skip {
					w.mu.Lock()
					w.skipped++
					w.mu.Unlock()
					log.Debug().Str("path", rel).Str("reason", reason).Msg("Skipping file")
					return nil
				}
			}

			found++
			if !yield(item) {
				return fs.SkipAll
			}
			return nil
		})

		log.Info().
			Int("total_images", found).
			Int("skipped", w.Skipped()).
			Int("warnings", len(w.Warnings())).
			Str("directory", w.root).
			Msg("Directory scan complete")
	}
}

func (w *Walker) warn(path string, err error) {
	log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
	w.mu.Lock()
	w.warnings = append(w.warnings, fmt.Sprintf("%s: %v", path, err))
	w.mu.Unlock()
}

// Skipped returns how many matching files the skip filter rejected.
func (w *Walker) Skipped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skipped
}

// Warnings returns the paths that could not be read during the last traversal.
func (w *Walker) Warnings() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.warnings...)
}
