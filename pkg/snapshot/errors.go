package snapshot

import "fmt"

// FileChangedBeforeUploadError is returned when a file's content digest, as
// observed during upload, no longer matches the digest the inventory
// recorded during scanning.
type FileChangedBeforeUploadError struct {
	Path string
}

func (e *FileChangedBeforeUploadError) Error() string {
	return fmt.Sprintf("snapshot: %s changed before upload", e.Path)
}

// PruneToZeroError is returned when Prune is asked to retain fewer than one
// snapshot.
type PruneToZeroError struct {
	Remaining int
}

func (e *PruneToZeroError) Error() string {
	return fmt.Sprintf("snapshot: prune would keep %d snapshots, at least 1 is required", e.Remaining)
}

// SnapshotMismatchError is returned when a backup's inventory identity does
// not match the identity already recorded by this bucket's snapshots.
type SnapshotMismatchError struct {
	Expected string
	Found    string
}

func (e *SnapshotMismatchError) Error() string {
	return fmt.Sprintf("snapshot: identity mismatch: expected %q, found %q", e.Expected, e.Found)
}
