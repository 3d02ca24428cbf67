package shmem

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentNewWriteReadOpen(t *testing.T) {
	seg, err := New(os.Getpid(), 1, 1, 64)
	require.NoError(t, err)
	defer seg.Unlink()

	copy(seg.Bytes(), []byte("hello segment"))
	path := seg.Path
	require.NoError(t, seg.Close())

	reopened, err := Open(path, 64)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "hello segment", string(reopened.Bytes()[:13]))
}

func TestSegmentCollisionFallsBackToUUIDSuffix(t *testing.T) {
	first, err := New(os.Getpid(), 2, 1, 16)
	require.NoError(t, err)
	defer first.Close()
	defer first.Unlink()

	second, err := New(os.Getpid(), 2, 1, 16)
	require.NoError(t, err)
	defer second.Close()
	defer second.Unlink()

	assert.NotEqual(t, first.Path, second.Path)
}

func TestMsgAllocBoundsChecked(t *testing.T) {
	msg, err := NewMsg(1, 1, os.Getpid(), 3, 1, 32)
	require.NoError(t, err)
	defer msg.Segment.Unlink()
	defer msg.Segment.Close()

	off, err := msg.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0), off)

	_, err = msg.Alloc(32)
	assert.Error(t, err)
}
