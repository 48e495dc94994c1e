package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListDir returns the absolute paths of the direct children of dir in
// lexical order. Missing or unreadable directories yield an empty slice.
func ListDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		abs, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		paths = append(paths, abs)
	}
	sort.Strings(paths)
	return paths
}

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string, mode os.FileMode) error {
	return os.MkdirAll(dir, mode)
}

// RemoveTree removes path and everything beneath it.
func RemoveTree(path string) error {
	return os.RemoveAll(path)
}

// Symlink links src to dest, creating dest's parent as needed and
// replacing any file already at dest. Empty src or dest is a no-op, and
// link errors are swallowed: a destination that already exists is the
// idempotent success case for re-materialized runs.
func Symlink(src, dest string) {
	if src == "" || dest == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}
	_ = os.Symlink(src, dest)
}

// Glob returns the paths under dir matching pattern, in lexical order.
// Bad patterns and unreadable directories yield an empty slice.
func Glob(dir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// ChmodTree applies dirMode to every directory and fileMode to every
// regular file under root, root included. Entries that vanish mid-walk
// are skipped.
func ChmodTree(root string, dirMode, fileMode os.FileMode) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		mode := fileMode
		if entry.IsDir() {
			mode = dirMode
		}
		if chmodErr := os.Chmod(path, mode); chmodErr != nil && !errors.Is(chmodErr, fs.ErrNotExist) {
			return chmodErr
		}
		return nil
	})
}

// RemoveSuffix strips trailing occurrences of suffix from s until none
// remains, so applying it twice equals applying it once.
func RemoveSuffix(s, suffix string) string {
	if suffix == "" {
		return s
	}
	for strings.HasSuffix(s, suffix) {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}
