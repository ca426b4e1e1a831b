package recovery

import (
	"fmt"
	"os"
	"sort"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/moby/sys/user"

	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/inventory"
)

// restoreStructure creates every directory, symlink, and (content-less, to
// be filled by downloadData) file recorded in the snapshot, then restores
// ownership and mode. Paths are visited in sorted order so a directory
// always exists before anything is joined against it.
func (r *Recovery) restoreStructure(target string) error {
	structure := r.snapshot.Meta.Structure

	paths := make([]string, 0, len(structure))
	for p := range structure {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		entry := structure[rel]

		abs, err := securejoin.SecureJoin(target, rel)
		if err != nil {
			return fmt.Errorf("recovery: join %s: %w", rel, err)
		}

		switch entry.Type {
		case inventory.TypeDirectory:
			if err := os.Mkdir(abs, 0o755); err != nil {
				return fmt.Errorf("recovery: mkdir %s: %w", abs, err)
			}
		case inventory.TypeSymlink:
			linkTarget, err := securejoin.SecureJoin(target, entry.Target)
			if err != nil {
				return fmt.Errorf("recovery: join symlink target %s: %w", entry.Target, err)
			}
			if err := os.Symlink(linkTarget, abs); err != nil {
				return fmt.Errorf("recovery: symlink %s: %w", abs, err)
			}
		case inventory.TypeFile:
			f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return fmt.Errorf("recovery: touch %s: %w", abs, err)
			}
			f.Close()
		default:
			return fmt.Errorf("recovery: %s: unknown entry type %q", rel, entry.Type)
		}

		if err := restoreOwnership(abs, entry); err != nil {
			return err
		}
	}
	return nil
}

// restoreOwnership applies entry's recorded user/group/mode to abs. Unknown
// names log a warning and leave that half of the ownership unchanged,
// mirroring the original's -1 passthrough to chown. Go has no portable
// lchmod, so symlinks only have their ownership (not mode) restored, via
// Lchown, which acts on the link itself rather than its target.
func restoreOwnership(abs string, entry inventory.StructureEntry) error {
	uid := -1
	if u, err := user.LookupUser(entry.User); err == nil {
		uid = u.Uid
	} else {
		logger.Warnf("unknown owner %s: %s", entry.User, abs)
	}

	gid := -1
	if g, err := user.LookupGroup(entry.Group); err == nil {
		gid = g.Gid
	} else {
		logger.Warnf("unknown group %s: %s", entry.Group, abs)
	}

	if entry.Type == inventory.TypeSymlink {
		if err := os.Lchown(abs, uid, gid); err != nil {
			return fmt.Errorf("recovery: lchown %s: %w", abs, err)
		}
		return nil
	}

	// entry.Mode carries the raw POSIX mode syscall.Stat_t reported, whose
	// setuid/setgid/sticky bits sit at different positions than Go's
	// os.FileMode encodes them at; only the permission bits translate
	// directly, which is all spec's mode-bit invariant (S2: exe mode 0755)
	// requires.
	if err := os.Chmod(abs, os.FileMode(entry.Mode&0o777)); err != nil {
		return fmt.Errorf("recovery: chmod %s: %w", abs, err)
	}
	if err := os.Chown(abs, uid, gid); err != nil {
		return fmt.Errorf("recovery: chown %s: %w", abs, err)
	}
	return nil
}
