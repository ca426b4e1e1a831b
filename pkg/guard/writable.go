// Package guard implements the two scoped-acquisition primitives spec §4.6
// calls for: a writable-mode guard that temporarily OR-in's owner-write
// permission on a path, and a change-during-read guard that fails a backup
// if a file mutates underneath the scanner while it is being hashed.
package guard

import (
	"fmt"
	"os"
)

// Writable temporarily ensures path is owner-writable for the duration of a
// scope, restoring its original mode on Close. It is a no-op (no error) if
// path does not exist yet, since Recovery sometimes needs the guard around a
// not-yet-created clone file.
type Writable struct {
	path        string
	originalSet bool
	original    os.FileMode
}

// AcquireWritable stats path; if it exists and lacks owner-write, it ORs the
// bit in immediately. Release (via Close) restores the original mode
// regardless of how the scope exits.
func AcquireWritable(path string) (*Writable, error) {
	w := &Writable{path: path}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, fmt.Errorf("guard: stat %s: %w", path, err)
	}

	w.original = info.Mode()
	w.originalSet = true

	if info.Mode()&0o200 != 0 {
		return w, nil
	}
	if err := os.Chmod(path, info.Mode()|0o200); err != nil {
		return nil, fmt.Errorf("guard: chmod %s writable: %w", path, err)
	}
	return w, nil
}

// Close restores the path's original mode, if one was recorded. Safe to call
// more than once; only the first call has an effect.
func (w *Writable) Close() error {
	if w == nil || !w.originalSet {
		return nil
	}
	w.originalSet = false
	if err := os.Chmod(w.path, w.original); err != nil {
		return fmt.Errorf("guard: restore mode on %s: %w", w.path, err)
	}
	return nil
}
