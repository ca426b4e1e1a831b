package inventory

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/crypto/blake2b"

	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/chunkreader"
	"github.com/nyxstorage/spare/pkg/guard"
)

// Logger is the narrow warning sink the scanner uses for the non-fatal,
// per-entry conditions spec §7 says to log and continue past (special
// files, broken symlinks, out-of-tree symlink dereferences).
type Logger interface {
	Warnf(format string, args ...any)
}

// packageLogger adapts internal/logger's package-level functions to Logger.
type packageLogger struct{}

func (packageLogger) Warnf(format string, args ...any) { logger.Warnf(format, args...) }

// hashChunkSize is the frame size used while hashing file content; unrelated
// to Envoy's 1 MiB block size, chosen to keep the hashing pass's working set
// small regardless of file size.
const hashChunkSize = 64 * 1024

// Scanner walks one source tree, producing an Inventory. It is
// single-threaded, per spec §4.3.
type Scanner struct {
	root  string
	skip  *regexp.Regexp
	names *nameCache
	log   Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSkip compiles patterns (their leading "./" stripped) into a single
// alternation matched against every candidate's path relative to root, per
// spec §4.3. A match prunes that subtree.
func WithSkip(patterns []string) Option {
	return func(s *Scanner) {
		if len(patterns) == 0 {
			return
		}
		cleaned := make([]string, len(patterns))
		for i, p := range patterns {
			cleaned[i] = strings.TrimPrefix(p, "./")
		}
		s.skip = regexp.MustCompile("^(" + strings.Join(cleaned, "|") + ")")
	}
}

// WithLogger overrides the logger used for non-fatal per-entry warnings.
func WithLogger(log Logger) Option {
	return func(s *Scanner) { s.log = log }
}

// NewScanner builds a Scanner rooted at root.
func NewScanner(root string, opts ...Option) *Scanner {
	s := &Scanner{
		root:  root,
		names: newNameCache(),
		log:   packageLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks the source tree and returns a fresh Inventory. Each call
// produces an independent result; Scanner holds no state across calls
// besides the resolved name cache.
func (s *Scanner) Scan() (*Inventory, error) {
	identity, err := computeIdentity(s.root)
	if err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("inventory: absolute root: %w", err)
	}
	inv := newInventory(identity, absRoot)

	root := s.root
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("inventory: stat root %s: %w", root, err)
	}

	if !info.IsDir() {
		if _, err := s.scanEntry(inv, root, info); err != nil {
			return nil, err
		}
		return inv, nil
	}

	pending := []string{root}
	for len(pending) > 0 {
		dir := pending[0]
		pending = pending[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("inventory: read dir %s: %w", dir, err)
		}

		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			entryInfo, err := os.Lstat(path)
			if err != nil {
				return nil, fmt.Errorf("inventory: lstat %s: %w", path, err)
			}

			addToPending, err := s.scanEntry(inv, path, entryInfo)
			if err != nil {
				return nil, err
			}
			if addToPending != "" {
				pending = append(pending, addToPending)
			}
		}
	}

	return inv, nil
}

func (s *Scanner) relativePath(path string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", fmt.Errorf("inventory: relative path of %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// scanEntry classifies and records a single filesystem entry. It returns a
// non-empty path when the caller should push that path onto the pending
// work queue (a plain directory, or an out-of-tree symlink dereferenced as
// a directory).
func (s *Scanner) scanEntry(inv *Inventory, path string, info fs.FileInfo) (string, error) {
	rel, err := s.relativePath(path)
	if err != nil {
		return "", err
	}

	if s.skip != nil && s.skip.MatchString(rel) {
		return "", nil
	}

	mode := info.Mode()

	switch {
	case mode&os.ModeCharDevice != 0:
		s.log.Warnf("skipping character special device %s", path)
		return "", nil

	case mode&os.ModeDevice != 0:
		s.log.Warnf("skipping block special device %s", path)
		return "", nil

	case mode&os.ModeNamedPipe != 0:
		s.log.Warnf("skipping named pipe %s", path)
		return "", nil

	case mode&os.ModeSocket != 0:
		s.log.Warnf("skipping socket %s", path)
		return "", nil

	case mode&os.ModeSymlink != 0:
		return s.scanSymlink(inv, path, info)

	case mode.IsDir():
		if err := s.recordDirectory(inv, path, info); err != nil {
			return "", err
		}
		return path, nil

	case mode.IsRegular():
		return "", s.recordFile(inv, path, info)

	default:
		s.log.Warnf("skipping unsupported entry %s", path)
		return "", nil
	}
}

func (s *Scanner) scanSymlink(inv *Inventory, path string, lstatInfo fs.FileInfo) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("inventory: readlink %s: %w", path, err)
	}

	targetAbs := target
	if !filepath.IsAbs(targetAbs) {
		targetAbs = filepath.Join(filepath.Dir(path), target)
	}

	targetInfo, err := os.Stat(targetAbs)
	if err != nil {
		s.log.Warnf("skipping broken symlink %s", path)
		return "", nil
	}

	inside, err := s.isInsideRoot(targetAbs)
	if err != nil {
		return "", err
	}

	if !inside {
		if targetInfo.IsDir() {
			s.log.Warnf("processing symlink %s as a directory", path)
			if err := s.recordDirectory(inv, path, targetInfo); err != nil {
				return "", err
			}
			return path, nil
		}
		s.log.Warnf("processing symlink %s as a file", path)
		return "", s.recordFile(inv, path, targetInfo)
	}

	relTarget, err := s.relativePath(targetAbs)
	if err != nil {
		return "", err
	}
	return "", s.recordSymlink(inv, path, lstatInfo, relTarget)
}

// isInsideRoot reports whether targetAbs lies within the scanner's root,
// per spec §3's symlink policy (lexical containment on the resolved target
// path, matching the original's Path.parents check).
func (s *Scanner) isInsideRoot(targetAbs string) (bool, error) {
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return false, fmt.Errorf("inventory: absolute root: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return false, fmt.Errorf("inventory: relative target: %w", err)
	}
	if rel == "." {
		return true, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

func (s *Scanner) recordDirectory(inv *Inventory, path string, info fs.FileInfo) error {
	rel, err := s.relativePath(path)
	if err != nil {
		return err
	}
	entry, err := s.buildEntry(TypeDirectory, info)
	if err != nil {
		return err
	}
	inv.Structure[rel] = entry
	return nil
}

func (s *Scanner) recordSymlink(inv *Inventory, path string, info fs.FileInfo, target string) error {
	rel, err := s.relativePath(path)
	if err != nil {
		return err
	}
	entry, err := s.buildEntry(TypeSymlink, info)
	if err != nil {
		return err
	}
	entry.Target = target
	inv.Structure[rel] = entry
	return nil
}

func (s *Scanner) recordFile(inv *Inventory, path string, info fs.FileInfo) error {
	rel, err := s.relativePath(path)
	if err != nil {
		return err
	}
	entry, err := s.buildEntry(TypeFile, info)
	if err != nil {
		return err
	}
	entry.Empty = info.Size() == 0
	inv.Structure[rel] = entry

	if entry.Empty {
		return nil
	}

	digest, err := fileChecksum(path)
	if err != nil {
		return err
	}
	inv.Files[digest] = append(inv.Files[digest], rel)
	return nil
}

func (s *Scanner) buildEntry(t EntryType, info fs.FileInfo) (StructureEntry, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return StructureEntry{}, fmt.Errorf("inventory: unsupported platform stat for %s", info.Name())
	}
	return StructureEntry{
		Type:    t,
		User:    s.names.userName(st.Uid),
		Group:   s.names.groupName(st.Gid),
		Mode:    st.Mode,
		Size:    info.Size(),
		MtimeNs: st.Mtim.Sec*1_000_000_000 + st.Mtim.Nsec,
		Inode:   st.Ino,
	}, nil
}

// fileChecksum hashes path with BLAKE2b-256, guarded against concurrent
// mutation of the file during the read (spec §4.3's change-during-read
// guard).
func fileChecksum(path string) (string, error) {
	watch, err := guard.WatchForChange(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("inventory: open %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("inventory: init hash: %w", err)
	}

	for frame, ferr := range chunkreader.Frames(f, hashChunkSize) {
		if ferr != nil {
			return "", fmt.Errorf("inventory: read %s: %w", path, ferr)
		}
		h.Write(frame)
	}

	if err := watch.Verify(); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
