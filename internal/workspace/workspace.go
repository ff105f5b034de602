// Package workspace provides bounded filesystem I/O rooted at one
// per-session directory. Every path is normalized under the root; a
// resolved path outside it is rejected.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"webforge/internal/logging"
)

// Sentinel errors for the two failure modes callers branch on.
var (
	ErrPathEscape = errors.New("path resolves outside workspace root")
	ErrNotFound   = errors.New("file not found in workspace")
)

// skipDirs are never scanned or listed.
var skipDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

const maxScanDepth = 10

// Workspace is a directory owned exclusively by one session.
type Workspace struct {
	root string

	mu      sync.RWMutex
	tracked map[string]bool // relative paths of known files
}

// Create opens the workspace at root, creating the directory if needed
// and indexing any existing files. Idempotent.
func Create(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	ws := &Workspace{
		root:    abs,
		tracked: make(map[string]bool),
	}
	if err := ws.scanExisting(); err != nil {
		return nil, err
	}

	logging.Workspace("opened workspace %s (%d existing files)", abs, len(ws.tracked))
	return ws, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// resolve normalizes rel under the root, rejecting escapes.
func (w *Workspace) resolve(rel string) (string, error) {
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	abs = filepath.Clean(abs)
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return abs, nil
}

// Write stores data at rel, creating parent directories as needed.
func (w *Workspace) Write(rel string, data []byte) error {
	abs, err := w.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}

	w.mu.Lock()
	w.tracked[filepath.ToSlash(rel)] = true
	w.mu.Unlock()

	logging.WorkspaceDebug("wrote %s (%d bytes)", rel, len(data))
	return nil
}

// Read returns the contents of rel.
func (w *Workspace) Read(rel string) ([]byte, error) {
	abs, err := w.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether rel is a regular file in the workspace.
func (w *Workspace) Exists(rel string) bool {
	abs, err := w.resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Tracked returns the sorted relative paths of files written to or
// discovered in this workspace.
func (w *Workspace) Tracked() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	paths := make([]string, 0, len(w.tracked))
	for p := range w.tracked {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// List returns relative file paths under dir. Hidden entries and the
// usual build directories are filtered. dir "" means the root.
func (w *Workspace) List(dir string, recursive bool) ([]string, error) {
	base := w.root
	if dir != "" {
		abs, err := w.resolve(dir)
		if err != nil {
			return nil, err
		}
		base = abs
	}

	var out []string
	if !recursive {
		entries, err := os.ReadDir(base)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || hiddenOrSkipped(e.Name()) {
				continue
			}
			rel, _ := filepath.Rel(w.root, filepath.Join(base, e.Name()))
			out = append(out, filepath.ToSlash(rel))
		}
		sort.Strings(out)
		return out, nil
	}

	err := walkLimited(base, 0, func(path string, isDir bool) error {
		if isDir {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// scanExisting indexes files already present under the root.
func (w *Workspace) scanExisting() error {
	return walkLimited(w.root, 0, func(path string, isDir bool) error {
		if isDir {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		w.tracked[filepath.ToSlash(rel)] = true
		return nil
	})
}

// walkLimited walks the tree breadth-limited to maxScanDepth, skipping
// hidden entries and build directories.
func walkLimited(dir string, depth int, fn func(path string, isDir bool) error) error {
	if depth > maxScanDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if hiddenOrSkipped(e.Name()) {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := fn(full, true); err != nil {
				return err
			}
			if err := walkLimited(full, depth+1, fn); err != nil {
				return err
			}
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		if err := fn(full, false); err != nil {
			return err
		}
	}
	return nil
}

func hiddenOrSkipped(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}
