// Package snapshot implements the content-addressed reference-counted
// metadata layer described in spec §4.4: a Snapshot records one backup run
// (structure + file digests + identity) and a Collection manages the
// ordered set of snapshots stored in one bucket, including pruning.
package snapshot

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"

	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/envoy"
	"github.com/nyxstorage/spare/pkg/inventory"
)

// prefixPrefix is the fixed literal every snapshot prefix begins with.
const prefixPrefix = "snapshot_"

// Meta is the JSON document stored under a snapshot's prefix, per spec §6.
type Meta struct {
	Files     map[string][]string                 `json:"files"`
	Structure map[string]inventory.StructureEntry `json:"structure"`
	Identity  string                               `json:"identity"`
}

func emptyMeta() Meta {
	return Meta{
		Files:     make(map[string][]string),
		Structure: make(map[string]inventory.StructureEntry),
	}
}

// Snapshot is a single backup run: a prefix (snapshot_<ULID>) and the
// metadata describing the tree it backed up.
type Snapshot struct {
	envoy  *envoy.Envoy
	Prefix string
	Meta   Meta

	// Progress, if set, is called with the number of plaintext bytes read
	// from each uploaded file as Backup streams it through envoy.Send.
	Progress func(n int)
}

func newULIDPrefix() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("snapshot: generate ulid: %w", err)
	}
	return prefixPrefix + id.String(), nil
}

// New creates a fresh, empty Snapshot with a new ULID-bearing prefix. It is
// not persisted until Save (directly, or via Backup) is called.
func New(e *envoy.Envoy) (*Snapshot, error) {
	prefix, err := newULIDPrefix()
	if err != nil {
		return nil, err
	}
	return &Snapshot{envoy: e, Prefix: prefix, Meta: emptyMeta()}, nil
}

// Load downloads and JSON-decodes the snapshot metadata stored under prefix.
func Load(ctx context.Context, e *envoy.Envoy, prefix string) (*Snapshot, error) {
	var buf bytes.Buffer
	if err := e.Recv(ctx, prefix, &buf, nil); err != nil {
		return nil, fmt.Errorf("snapshot: load %s: %w", prefix, err)
	}

	var meta Meta
	if err := json.Unmarshal(buf.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", prefix, err)
	}
	if meta.Files == nil {
		meta.Files = make(map[string][]string)
	}
	if meta.Structure == nil {
		meta.Structure = make(map[string]inventory.StructureEntry)
	}

	return &Snapshot{envoy: e, Prefix: prefix, Meta: meta}, nil
}

// ensureIdentityMatch fails with SnapshotMismatchError unless this
// snapshot's own recorded identity (if any) and every sibling snapshot's
// identity equal inv's, per spec §4.4.
func (s *Snapshot) ensureIdentityMatch(ctx context.Context, inv *inventory.Inventory) error {
	if s.Meta.Identity != "" && s.Meta.Identity != inv.Identity() {
		return &SnapshotMismatchError{Expected: inv.Identity(), Found: s.Meta.Identity}
	}

	coll := NewCollection(s.envoy)
	if err := coll.Load(ctx); err != nil {
		return err
	}
	for _, other := range coll.snapshots {
		if other.Prefix == s.Prefix {
			continue
		}
		if other.Meta.Identity != inv.Identity() {
			return &SnapshotMismatchError{Expected: inv.Identity(), Found: other.Meta.Identity}
		}
	}
	return nil
}

// Backup uploads every digest in inv not already present in the bucket,
// then writes the snapshot metadata, per spec §4.4. Unless force, the
// inventory's identity must match every existing snapshot's identity.
func (s *Snapshot) Backup(ctx context.Context, inv *inventory.Inventory, force bool) error {
	logger.Infof("backing up %s", inv.Identity())

	if !force {
		if err := s.ensureIdentityMatch(ctx, inv); err != nil {
			return err
		}
	}

	uploaded := make(map[string]struct{})
	for prefix, err := range s.envoy.Prefixes(ctx, "") {
		if err != nil {
			return fmt.Errorf("snapshot: list existing prefixes: %w", err)
		}
		uploaded[prefix] = struct{}{}
	}

	digests := make([]string, 0, len(inv.Files))
	for digest := range inv.Files {
		digests = append(digests, digest)
	}
	sort.Strings(digests)

	for _, digest := range digests {
		paths := inv.Files[digest]
		if _, ok := uploaded[digest]; ok {
			continue
		}

		for _, p := range paths {
			logger.Infof("uploading %s", p)
		}

		if err := s.uploadDigest(ctx, inv, digest, paths[0]); err != nil {
			return err
		}
	}

	s.Meta = Meta{Files: inv.Files, Structure: inv.Structure, Identity: inv.Identity()}
	if err := s.Save(ctx); err != nil {
		return err
	}

	logger.Infof("completed %s", s.Prefix)
	return nil
}

func (s *Snapshot) uploadDigest(ctx context.Context, inv *inventory.Inventory, digest, canonicalRel string) error {
	path := inv.AbsolutePath(canonicalRel)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	hasher, err := newRunningHash()
	if err != nil {
		return err
	}

	beforeEncrypt := hasher.update
	if s.Progress != nil {
		beforeEncrypt = func(p []byte) {
			hasher.update(p)
			s.Progress(len(p))
		}
	}

	if err := s.envoy.Send(ctx, digest, f, beforeEncrypt); err != nil {
		return fmt.Errorf("snapshot: upload %s: %w", path, err)
	}

	if hasher.hexDigest() != digest {
		return &FileChangedBeforeUploadError{Path: path}
	}
	return nil
}

// Save persists the snapshot's metadata, under lock: any existing metadata
// for this prefix is deleted first, then the JSON encoding is sent through
// the envoy as a single chunked, compressed, encrypted stream.
func (s *Snapshot) Save(ctx context.Context) error {
	known, err := s.envoy.IsKnownPrefix(ctx, s.Prefix)
	if err != nil {
		return fmt.Errorf("snapshot: check existing metadata %s: %w", s.Prefix, err)
	}
	if known {
		if err := s.envoy.Delete(ctx, s.Prefix); err != nil {
			return fmt.Errorf("snapshot: delete stale metadata %s: %w", s.Prefix, err)
		}
	}

	body, err := json.Marshal(s.Meta)
	if err != nil {
		return fmt.Errorf("snapshot: encode metadata: %w", err)
	}

	if err := s.envoy.Send(ctx, s.Prefix, bytes.NewReader(body), nil); err != nil {
		return fmt.Errorf("snapshot: save metadata %s: %w", s.Prefix, err)
	}
	return nil
}

// Delete removes this snapshot's metadata, but not the content prefixes it
// references — that is Collection.Prune's job.
func (s *Snapshot) Delete(ctx context.Context) error {
	return s.envoy.Delete(ctx, s.Prefix)
}

// Defect describes one problem Validate found.
type Defect struct {
	Digest  string
	Path    string
	Kind    string // "unknown", "checksum", or "missing"
	Message string
}

// Defects renders a defect list as a table, implementing
// internal/cli/output's TableRenderer so callers can hand Validate's result
// straight to a Printer without wrapping it in an ad-hoc table type.
type Defects []Defect

// Headers implements output.TableRenderer.
func (Defects) Headers() []string {
	return []string{"digest", "path", "kind", "message"}
}

// Rows implements output.TableRenderer.
func (d Defects) Rows() [][]string {
	rows := make([][]string, len(d))
	for i, defect := range d {
		rows[i] = []string{defect.Digest, defect.Path, defect.Kind, defect.Message}
	}
	return rows
}

// RowColor implements internal/cli/output's RowStyler, coloring a defect row
// by its Kind: corrupt content (checksum) or a path without structure
// metadata (missing) in red, a digest absent from the bucket (unknown) in
// yellow.
func (Defects) RowColor(row []string) *color.Color {
	if len(row) < 3 {
		return nil
	}
	switch row[2] {
	case "checksum", "missing":
		return color.New(color.FgRed)
	case "unknown":
		return color.New(color.FgYellow)
	default:
		return nil
	}
}

// Validate downloads and re-hashes every digest this snapshot references,
// comparing against the declared digest, and checks that every referenced
// path still has structure metadata. It never returns an error for content
// problems (per spec §7); it returns false and the full list of defects.
func (s *Snapshot) Validate(ctx context.Context) (bool, []Defect) {
	known := make(map[string]struct{})
	for prefix, err := range s.envoy.Prefixes(ctx, "") {
		if err != nil {
			return false, []Defect{{Kind: "unknown", Message: err.Error()}}
		}
		known[prefix] = struct{}{}
	}

	var defects []Defect
	fail := func(d Defect) {
		logger.Errorf("%s", d.Message)
		defects = append(defects, d)
	}

	digests := make([]string, 0, len(s.Meta.Files))
	for digest := range s.Meta.Files {
		digests = append(digests, digest)
	}
	sort.Strings(digests)

	for _, digest := range digests {
		if _, ok := known[digest]; !ok {
			fail(Defect{Digest: digest, Kind: "unknown", Message: fmt.Sprintf("%s is unknown", digest)})
		} else {
			hasher, err := newRunningHash()
			if err != nil {
				fail(Defect{Digest: digest, Kind: "checksum", Message: err.Error()})
			} else {
				if err := s.envoy.Recv(ctx, digest, envoy.NullSink, hasher.update); err != nil {
					fail(Defect{Digest: digest, Kind: "checksum", Message: err.Error()})
				} else if got := hasher.hexDigest(); got != digest {
					fail(Defect{Digest: digest, Kind: "checksum", Message: fmt.Sprintf("expected %s but got %s", digest, got)})
				}
			}
		}

		for _, path := range s.Meta.Files[digest] {
			if _, ok := s.Meta.Structure[path]; !ok {
				fail(Defect{Digest: digest, Path: path, Kind: "missing", Message: fmt.Sprintf("the metadata for %s is missing", path)})
			}
		}
	}

	return len(defects) == 0, defects
}
