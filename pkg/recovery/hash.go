package recovery

import (
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// runningHash wraps a BLAKE2b-256 hash behind the update/hexDigest shape
// Envoy.Recv's afterDecrypt hook expects, mirroring pkg/snapshot's hash.go.
type runningHash struct {
	h hash.Hash
}

func newRunningHash() (*runningHash, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("recovery: init hash: %w", err)
	}
	return &runningHash{h: h}, nil
}

func (r *runningHash) update(p []byte) {
	r.h.Write(p)
}

func (r *runningHash) hexDigest() string {
	return fmt.Sprintf("%x", r.h.Sum(nil))
}
