package filehelper

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

func TestFill(t *testing.T) {
	a := []byte{1, 2, 3, 4, 5}
	Fill(a, 0, 10, 3)
	assert.Equal(t, []byte{1, 2, 3, 0, 0}, a)
	Fill(a, 9, 1, 0)
	assert.Equal(t, []byte{9, 2, 3, 0, 0}, a)
}

func TestFolderRoundTrip(t *testing.T) {
	mtime := time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)
	in := []types.Entry{
		{Path: "a.txt", Data: []byte("0123456789"), Mode: 0o640, ModTime: mtime},
		{Path: "sub/dir/b.bin", Data: bytes.Repeat([]byte{7}, 300), Mode: 0o600, ModTime: mtime},
	}
	dir := t.TempDir()
	require.NoError(t, WriteFolder(dir, in))

	out, err := ReadFolder(dir)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a.txt", out[0].Path)
	assert.Equal(t, in[0].Data, out[0].Data)
	assert.Equal(t, "sub/dir/b.bin", out[1].Path)
	assert.True(t, mtime.Equal(out[1].ModTime))
	assert.EqualValues(t, 0o600, out[1].Mode)
}

func TestWriteFolderRejectsEscape(t *testing.T) {
	err := WriteFolder(t.TempDir(), []types.Entry{{Path: "../x", Data: []byte("x")}})
	assert.ErrorIs(t, err, types.ErrPack)
}

func sampleStream() *voxel.Stream {
	s := &voxel.Stream{Planes: 3, VoxelsPerPlane: 5}
	for i := 0; i < 15; i++ {
		s.Voxels = append(s.Voxels, voxel.Voxel{Orientation: float32(i) * 11.5, Retardance: 0.25, Lost: i == 4})
	}
	return s
}

func TestStreamRoundTrip(t *testing.T) {
	s := sampleStream()
	man := []byte("manifest-bytes")
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, s, man))
	assert.Equal(t, 20+len(man)+15*9+8, buf.Len())

	res, err := ReadStream(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, res.ChecksumOK)
	assert.False(t, res.Truncated)
	assert.Equal(t, man, res.Manifest)
	assert.Equal(t, s, res.Stream)
}

func TestStreamDamage(t *testing.T) {
	s := sampleStream()
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, s, nil))
	raw := buf.Bytes()

	t.Run("flipped record", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[20+9*2] ^= 0x40
		res, err := ReadStream(bytes.NewReader(bad))
		require.NoError(t, err)
		assert.False(t, res.ChecksumOK)
	})

	t.Run("truncated", func(t *testing.T) {
		res, err := ReadStream(bytes.NewReader(raw[:20+9*7+3]))
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.False(t, res.ChecksumOK)
		require.Len(t, res.Stream.Voxels, 15)
		assert.Equal(t, s.Voxels[6], res.Stream.Voxels[6])
		for _, v := range res.Stream.Voxels[7:] {
			assert.True(t, v.Lost)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[0] = 'X'
		_, err := ReadStream(bytes.NewReader(bad))
		assert.Error(t, err)
	})
}

func TestStreamWriterCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	sw := NewStreamWriter(&buf, 2, 2)
	require.NoError(t, sw.WriteHeader(nil))
	require.NoError(t, sw.WriteVoxels(make([]voxel.Voxel, 3)))
	assert.Error(t, sw.Close())
}

func TestReadFolderMissing(t *testing.T) {
	_, err := ReadFolder(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
