package guard

import (
	"fmt"
	"syscall"
)

// FileChangedDuringReadError is returned when a file's identity (mtime,
// size, inode, device) diverges between the start and end of a read scope,
// per spec §4.3's change-during-read guard.
type FileChangedDuringReadError struct {
	Path string
}

func (e *FileChangedDuringReadError) Error() string {
	return fmt.Sprintf("guard: %s changed during read", e.Path)
}

// statSnapshot is the identity tuple compared across a read scope.
type statSnapshot struct {
	mtimeNs int64
	size    int64
	inode   uint64
	device  uint64
}

func snapshot(path string) (statSnapshot, error) {
	var st syscall.Stat_t
	if err := syscall.Lstat(path, &st); err != nil {
		return statSnapshot{}, fmt.Errorf("guard: stat %s: %w", path, err)
	}
	return statSnapshot{
		mtimeNs: st.Mtim.Sec*1_000_000_000 + st.Mtim.Nsec,
		size:    st.Size,
		inode:   st.Ino,
		device:  uint64(st.Dev),
	}, nil
}

// ChangeDuringRead is a scoped guard around reading path: construct it
// before opening the file, call Verify after the read completes. Verify
// fails with FileChangedDuringReadError if anything diverged.
type ChangeDuringRead struct {
	path   string
	before statSnapshot
}

// WatchForChange records path's current identity. Call this immediately
// before opening the file for reading.
func WatchForChange(path string) (*ChangeDuringRead, error) {
	before, err := snapshot(path)
	if err != nil {
		return nil, err
	}
	return &ChangeDuringRead{path: path, before: before}, nil
}

// Verify re-stats the watched path and compares it against the snapshot
// taken at construction time. Call this immediately after the read
// completes, before trusting the bytes read.
func (c *ChangeDuringRead) Verify() error {
	after, err := snapshot(c.path)
	if err != nil {
		return err
	}
	if after != c.before {
		return &FileChangedDuringReadError{Path: c.path}
	}
	return nil
}
