package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// computeIdentity renders hostname:absolute_path:root_inode, per spec §3.
func computeIdentity(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("inventory: resolve absolute path of %s: %w", root, err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("inventory: hostname: %w", err)
	}

	var st syscall.Stat_t
	if err := syscall.Stat(abs, &st); err != nil {
		return "", fmt.Errorf("inventory: stat root %s: %w", abs, err)
	}

	return fmt.Sprintf("%s:%s:%d", hostname, abs, st.Ino), nil
}
