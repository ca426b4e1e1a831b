// Package recovery implements spec §4.5: restoring one snapshot's tree to
// a target directory. Structure creation (directories, symlinks, empty
// files, ownership, mode) happens single-threaded; content is then
// downloaded across a bounded worker pool, since restore favors speed over
// the conservative resource use backup aims for.
package recovery

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/envoy"
	"github.com/nyxstorage/spare/pkg/snapshot"
)

// Recovery restores one Snapshot to a target directory.
type Recovery struct {
	envoy    *envoy.Envoy
	snapshot *snapshot.Snapshot
	workers  int
	progress func(n int)
}

// Option configures a Recovery.
type Option func(*Recovery)

// WithWorkers overrides the download worker pool size. Defaults to
// runtime.NumCPU(), mirroring the original's per-core download process pool.
func WithWorkers(n int) Option {
	return func(r *Recovery) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithProgress registers fn to be called with the number of plaintext bytes
// written to disk for each chunk downloaded across the worker pool. fn is
// called concurrently from multiple workers.
func WithProgress(fn func(n int)) Option {
	return func(r *Recovery) {
		r.progress = fn
	}
}

// New builds a Recovery for snapshot s, downloading content through e.
func New(e *envoy.Envoy, s *snapshot.Snapshot, opts ...Option) *Recovery {
	r := &Recovery{envoy: e, snapshot: s, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore recreates the snapshot's tree under target. target is created if
// missing, but Restore refuses to proceed into an existing non-empty
// directory.
func (r *Recovery) Restore(ctx context.Context, target string) error {
	logger.Infof("restoring %s", target)

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("recovery: create %s: %w", target, err)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return fmt.Errorf("recovery: read %s: %w", target, err)
	}
	if len(entries) > 0 {
		return &TargetPathNotEmptyError{Path: target}
	}

	logger.Infof("restoring folder structure of %s", target)
	if err := r.restoreStructure(target); err != nil {
		return err
	}

	logger.Infof("downloading data for %s", target)
	if err := r.downloadData(ctx, target); err != nil {
		return err
	}

	logger.Infof("restored %s", target)
	return nil
}
