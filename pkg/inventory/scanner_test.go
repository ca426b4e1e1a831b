package inventory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxstorage/spare/pkg/inventory"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_BasicTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo"), "foo")
	writeFile(t, filepath.Join(root, "bar"), "bar")
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	writeFile(t, filepath.Join(root, "dir", "baz"), "baz")

	s := inventory.NewScanner(root)
	inv, err := s.Scan()
	require.NoError(t, err)

	assert.Contains(t, inv.Structure, "foo")
	assert.Contains(t, inv.Structure, "bar")
	assert.Contains(t, inv.Structure, "dir")
	assert.Contains(t, inv.Structure, "dir/baz")
	assert.Equal(t, inventory.TypeDirectory, inv.Structure["dir"].Type)
	assert.Equal(t, inventory.TypeFile, inv.Structure["foo"].Type)
	assert.Len(t, inv.Files, 3) // foo, bar, dir/baz each unique content
}

func TestScan_EmptyFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "empty"), "")

	inv, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)

	entry, ok := inv.Structure["empty"]
	require.True(t, ok)
	assert.True(t, entry.Empty)

	for _, paths := range inv.Files {
		assert.NotContains(t, paths, "empty")
	}
}

func TestScan_Deduplication(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "same content")
	writeFile(t, filepath.Join(root, "b"), "same content")

	inv, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)

	require.Len(t, inv.Files, 1)
	for _, paths := range inv.Files {
		assert.ElementsMatch(t, []string{"a", "b"}, paths)
	}
}

func TestScan_InternalSymlinkPreserved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo"), "foo")
	require.NoError(t, os.Symlink(filepath.Join(root, "foo"), filepath.Join(root, "link")))

	inv, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)

	entry, ok := inv.Structure["link"]
	require.True(t, ok)
	assert.Equal(t, inventory.TypeSymlink, entry.Type)
	assert.Equal(t, "foo", entry.Target)
}

func TestScan_BrokenSymlinkSkipped(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "broken")))

	inv, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)

	assert.NotContains(t, inv.Structure, "broken")
}

func TestScan_ExternalSymlinkDereferenced(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "external"), "outside content")
	require.NoError(t, os.Symlink(filepath.Join(outside, "external"), filepath.Join(root, "link")))

	inv, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)

	entry, ok := inv.Structure["link"]
	require.True(t, ok)
	assert.Equal(t, inventory.TypeFile, entry.Type)

	found := false
	for _, paths := range inv.Files {
		for _, p := range paths {
			if p == "link" {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestScan_SkipList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep"), "keep")
	writeFile(t, filepath.Join(root, "skip_me"), "skip")

	inv, err := inventory.NewScanner(root, inventory.WithSkip([]string{"skip_me"})).Scan()
	require.NoError(t, err)

	assert.Contains(t, inv.Structure, "keep")
	assert.NotContains(t, inv.Structure, "skip_me")
}

func TestScan_SkipListAnchoredAtPathStart(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "other"), 0o755))
	writeFile(t, filepath.Join(root, "other", "foobar"), "keep me, only a suffix match on foo")
	writeFile(t, filepath.Join(root, "xfoo"), "keep me, foo is not at path start")
	writeFile(t, filepath.Join(root, "foo"), "skip me, exact match at path start")

	inv, err := inventory.NewScanner(root, inventory.WithSkip([]string{"foo"})).Scan()
	require.NoError(t, err)

	assert.Contains(t, inv.Structure, filepath.ToSlash(filepath.Join("other", "foobar")))
	assert.Contains(t, inv.Structure, "xfoo")
	assert.NotContains(t, inv.Structure, "foo")
}

func TestScan_Hardlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "linked content")
	require.NoError(t, os.Link(filepath.Join(root, "a"), filepath.Join(root, "b")))
	require.NoError(t, os.Link(filepath.Join(root, "a"), filepath.Join(root, "c")))

	inv, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)

	require.Len(t, inv.Files, 1)
	var paths []string
	for _, p := range inv.Files {
		paths = p
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, paths)

	ia := inv.Structure["a"].Inode
	ib := inv.Structure["b"].Inode
	ic := inv.Structure["c"].Inode
	assert.Equal(t, ia, ib)
	assert.Equal(t, ia, ic)
}

func TestIdentity_StableAcrossScans(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo"), "foo")

	inv1, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)
	inv2, err := inventory.NewScanner(root).Scan()
	require.NoError(t, err)

	assert.Equal(t, inv1.Identity(), inv2.Identity())
	assert.NotEmpty(t, inv1.Identity())
}
