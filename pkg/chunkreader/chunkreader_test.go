package chunkreader_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxstorage/spare/pkg/chunkreader"
)

func collect(t *testing.T, r *strings.Reader, size int) [][]byte {
	t.Helper()
	var frames [][]byte
	for frame, err := range chunkreader.Frames(r, size) {
		require.NoError(t, err)
		frames = append(frames, frame)
	}
	return frames
}

func TestFrames_ExactMultiple(t *testing.T) {
	frames := collect(t, strings.NewReader("aaaabbbb"), 4)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte("aaaa"), frames[0])
	assert.Equal(t, []byte("bbbb"), frames[1])
}

func TestFrames_ShortLastFrame(t *testing.T) {
	frames := collect(t, strings.NewReader("aaaabb"), 4)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte("aaaa"), frames[0])
	assert.Equal(t, []byte("bb"), frames[1])
}

func TestFrames_Empty(t *testing.T) {
	frames := collect(t, strings.NewReader(""), 4)
	assert.Empty(t, frames)
}

func TestFrames_EarlyStop(t *testing.T) {
	var seen int
	for range chunkreader.Frames(bytes.NewReader(bytes.Repeat([]byte("x"), 100)), 4) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestCount(t *testing.T) {
	assert.Equal(t, int64(0), chunkreader.Count(0, 1<<20))
	assert.Equal(t, int64(1), chunkreader.Count(1<<20, 1<<20))
	assert.Equal(t, int64(2), chunkreader.Count(1<<20+1, 1<<20))
	assert.Equal(t, int64(3), chunkreader.Count(2*(1<<20)+100, 1<<20))
}
