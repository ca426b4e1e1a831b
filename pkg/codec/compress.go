package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// compress returns the LZMA (default preset) encoding of p. Empty input is
// legal and still produces a non-empty frame (LZMA header + end marker).
func compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("codec: lzma writer: %w", err)
	}
	if _, err := w.Write(p); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("codec: lzma compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: lzma compress: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress inverts compress.
func decompress(c []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(c))
	if err != nil {
		return nil, fmt.Errorf("codec: lzma reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: lzma decompress: %w", err)
	}
	return out, nil
}
