package filehelper

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/zeebo/xxh3"

	"alexhalogen/crystalarchive/internal/voxel"
)

// Bounds on header fields, so a damaged header cannot trigger a huge
// allocation.
const (
	maxManifestLen = 64 << 20
	maxVoxels      = 1 << 32
)

// StreamReader reads the voxel records of a stream file in chunks.
type StreamReader struct {
	in        *bufio.Reader
	sum       *xxh3.Hasher
	Header    StreamHeader
	Manifest  []byte
	remaining int64
	truncated bool
}

// NewStreamReader reads and checks the header and manifest copy.
func NewStreamReader(r io.Reader) (*StreamReader, error) {
	sr := &StreamReader{in: bufio.NewReader(r), sum: xxh3.New()}
	if err := binary.Read(sr.in, binary.LittleEndian, &sr.Header); err != nil {
		return nil, fmt.Errorf("voxel stream: reading header: %w", err)
	}
	if sr.Header.Magic != StreamMagic {
		return nil, fmt.Errorf("voxel stream: bad magic %q", sr.Header.Magic[:])
	}
	if sr.Header.Version != StreamVersion {
		return nil, fmt.Errorf("voxel stream: unsupported version %d", sr.Header.Version)
	}
	if sr.Header.ManifestLen > maxManifestLen {
		return nil, fmt.Errorf("voxel stream: manifest copy of %d bytes", sr.Header.ManifestLen)
	}
	sr.Manifest = make([]byte, sr.Header.ManifestLen)
	if _, err := io.ReadFull(sr.in, sr.Manifest); err != nil {
		return nil, fmt.Errorf("voxel stream: reading manifest copy: %w", err)
	}
	sr.remaining = int64(sr.Header.Planes) * int64(sr.Header.VoxelsPerPlane)
	if sr.remaining > maxVoxels {
		return nil, fmt.Errorf("voxel stream: header claims %d voxels", sr.remaining)
	}
	return sr, nil
}

// ReadNext fills buffer with the next voxels. When the file ends early the
// unread part of buffer is marked lost and eof is set.
func (sr *StreamReader) ReadNext(buffer []voxel.Voxel) (n int, eof bool) {
	if int64(len(buffer)) > sr.remaining {
		buffer = buffer[:sr.remaining]
	}
	var rec [voxelRecordSize]byte
	for n < len(buffer) {
		if sr.truncated {
			break
		}
		if _, err := io.ReadFull(sr.in, rec[:]); err != nil {
			sr.truncated = true
			break
		}
		sr.sum.Write(rec[:])
		buffer[n] = voxel.Voxel{
			Orientation: math.Float32frombits(binary.LittleEndian.Uint32(rec[0:4])),
			Retardance:  math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8])),
			Lost:        rec[8]&flagLost != 0,
		}
		n++
	}
	if n < len(buffer) {
		Fill(buffer, voxel.Voxel{Lost: true}, len(buffer)-n, n)
	}
	sr.remaining -= int64(len(buffer))
	return len(buffer), sr.remaining == 0 || sr.truncated
}

// VerifyChecksum reads the trailer once every voxel has been read.
func (sr *StreamReader) VerifyChecksum() (bool, error) {
	if sr.truncated {
		return false, nil
	}
	if sr.remaining != 0 {
		return false, errors.New("voxel stream: checksum requested before the last voxel")
	}
	var want uint64
	if err := binary.Read(sr.in, binary.LittleEndian, &want); err != nil {
		return false, nil
	}
	return want == sr.sum.Sum64(), nil
}

// ReadResult is a fully read stream file.
type ReadResult struct {
	Stream     *voxel.Stream
	Manifest   []byte
	ChecksumOK bool
	// Truncated reports that the file ended early; missing voxels were
	// marked lost.
	Truncated bool
}

// ReadStream reads a whole stream file. Damage to the voxel records is not
// an error: it is reported through ChecksumOK and Truncated and left to
// the error correction layers.
func ReadStream(r io.Reader) (*ReadResult, error) {
	sr, err := NewStreamReader(r)
	if err != nil {
		return nil, err
	}
	s := &voxel.Stream{
		Planes:         int(sr.Header.Planes),
		VoxelsPerPlane: int(sr.Header.VoxelsPerPlane),
	}
	s.Voxels = make([]voxel.Voxel, int(sr.remaining))
	const chunk = 1 << 16
	for off := 0; off < len(s.Voxels); off += chunk {
		end := min(off+chunk, len(s.Voxels))
		sr.ReadNext(s.Voxels[off:end])
	}
	ok, err := sr.VerifyChecksum()
	if err != nil {
		return nil, err
	}
	return &ReadResult{Stream: s, Manifest: sr.Manifest, ChecksumOK: ok, Truncated: sr.truncated}, nil
}
