package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/envoy"
)

// Collection manages the snapshots stored in one bucket. Snapshot prefixes
// sort lexicographically by ULID, which is chronological order, so the
// loaded slice is oldest-first.
type Collection struct {
	envoy     *envoy.Envoy
	snapshots []*Snapshot
}

// NewCollection builds a Collection over e. Call Load before Get/Prune.
func NewCollection(e *envoy.Envoy) *Collection {
	return &Collection{envoy: e}
}

// Load enumerates every snapshot_ prefix, sorts it lexicographically, and
// materializes each Snapshot by downloading and decoding its metadata.
func (c *Collection) Load(ctx context.Context) error {
	var prefixes []string
	for prefix, err := range c.envoy.Prefixes(ctx, "snapshot") {
		if err != nil {
			return fmt.Errorf("snapshot: list snapshot prefixes: %w", err)
		}
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	snapshots := make([]*Snapshot, 0, len(prefixes))
	for _, prefix := range prefixes {
		s, err := Load(ctx, c.envoy, prefix)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, s)
	}
	c.snapshots = snapshots
	return nil
}

// Create returns a new, unsaved Snapshot bound to this collection's envoy.
func (c *Collection) Create() (*Snapshot, error) {
	return New(c.envoy)
}

// Get returns the snapshot matching selector. "latest" (and "") selects the
// most recently created snapshot. Requires a prior Load.
func (c *Collection) Get(selector string) (*Snapshot, bool) {
	if len(c.snapshots) == 0 {
		return nil, false
	}
	if selector == "" || selector == "latest" {
		return c.snapshots[len(c.snapshots)-1], true
	}
	for _, s := range c.snapshots {
		if s.Prefix == selector {
			return s, true
		}
	}
	return nil, false
}

// Snapshots returns the loaded snapshots, oldest first.
func (c *Collection) Snapshots() []*Snapshot {
	return c.snapshots
}

// PruneResult reports what Prune did (or, under DryRun, would do).
type PruneResult struct {
	DryRun           bool
	KeptSnapshots    []string
	DeletedSnapshots []string
	DeletedPrefixes  []string
}

// Prune reloads the collection, then if more than keep snapshots exist,
// deletes the oldest len-keep snapshots' metadata and every bucket prefix
// no longer referenced by a surviving snapshot. Fails with PruneToZeroError
// if keep < 1. DryRun reports what would be deleted without deleting it — a
// supplemental operational safeguard beyond the distilled spec.
func (c *Collection) Prune(ctx context.Context, keep int, dryRun bool) (*PruneResult, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	if keep < 1 {
		return nil, &PruneToZeroError{Remaining: keep}
	}

	result := &PruneResult{DryRun: dryRun}

	if len(c.snapshots) <= keep {
		for _, s := range c.snapshots {
			result.KeptSnapshots = append(result.KeptSnapshots, s.Prefix)
		}
		return result, nil
	}

	cut := len(c.snapshots) - keep
	old := c.snapshots[:cut]
	kept := c.snapshots[cut:]

	for _, s := range kept {
		result.KeptSnapshots = append(result.KeptSnapshots, s.Prefix)
	}

	deletedSnapshot := make(map[string]struct{}, len(old))
	for _, s := range old {
		result.DeletedSnapshots = append(result.DeletedSnapshots, s.Prefix)
		deletedSnapshot[s.Prefix] = struct{}{}
		if dryRun {
			continue
		}
		if err := s.Delete(ctx); err != nil {
			return nil, fmt.Errorf("snapshot: delete %s: %w", s.Prefix, err)
		}
	}

	live := make(map[string]struct{}, len(kept))
	for _, s := range kept {
		live[s.Prefix] = struct{}{}
		for digest := range s.Meta.Files {
			live[digest] = struct{}{}
		}
	}

	// Under DryRun, old snapshots' metadata prefixes are still present in
	// the bucket (nothing was actually deleted above), so this scan would
	// otherwise list them again as orphan content prefixes. They are
	// already accounted for in DeletedSnapshots; skip them here so a
	// dry-run report doesn't double-count the same prefix in both lists.
	for prefix, err := range c.envoy.Prefixes(ctx, "") {
		if err != nil {
			return nil, fmt.Errorf("snapshot: list prefixes for prune: %w", err)
		}
		if _, ok := live[prefix]; ok {
			continue
		}
		if _, ok := deletedSnapshot[prefix]; ok {
			continue
		}
		result.DeletedPrefixes = append(result.DeletedPrefixes, prefix)
		if dryRun {
			continue
		}
		if err := c.envoy.Delete(ctx, prefix); err != nil {
			return nil, fmt.Errorf("snapshot: delete orphan prefix %s: %w", prefix, err)
		}
	}

	if !dryRun {
		c.snapshots = kept
	}

	logger.Infof(
		"prune: kept %d, deleted %d snapshots and %d content prefixes (dry-run=%v)",
		len(result.KeptSnapshots), len(result.DeletedSnapshots), len(result.DeletedPrefixes), dryRun,
	)

	return result, nil
}
