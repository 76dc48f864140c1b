package filehelper

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/zeebo/xxh3"

	"alexhalogen/crystalarchive/internal/voxel"
)

// StreamMagic opens every voxel stream file.
var StreamMagic = [4]byte{'C', 'R', 'V', 'X'}

const StreamVersion = 1

// voxelRecordSize is orientation float32, retardance float32, flags byte.
const voxelRecordSize = 9

const flagLost = 1

// StreamHeader precedes the embedded manifest copy and the voxel records.
type StreamHeader struct {
	Magic          [4]byte
	Version        uint16
	Flags          uint16
	Planes         uint32
	VoxelsPerPlane uint32
	ManifestLen    uint32
}

// StreamWriter writes a voxel stream file: header, CBOR manifest backup,
// little endian voxel records, then an xxh3 checksum of the records.
type StreamWriter struct {
	out    *bufio.Writer
	sum    *xxh3.Hasher
	header StreamHeader
	count  int64
}

func NewStreamWriter(w io.Writer, planes, voxelsPerPlane int) *StreamWriter {
	return &StreamWriter{
		out: bufio.NewWriter(w),
		sum: xxh3.New(),
		header: StreamHeader{
			Magic:          StreamMagic,
			Version:        StreamVersion,
			Planes:         uint32(planes),
			VoxelsPerPlane: uint32(voxelsPerPlane),
		},
	}
}

// WriteHeader writes the fixed header followed by manifest.
func (sw *StreamWriter) WriteHeader(manifestCBOR []byte) error {
	sw.header.ManifestLen = uint32(len(manifestCBOR))
	if err := binary.Write(sw.out, binary.LittleEndian, sw.header); err != nil {
		return err
	}
	_, err := sw.out.Write(manifestCBOR)
	return err
}

func (sw *StreamWriter) WriteVoxels(voxels []voxel.Voxel) error {
	var rec [voxelRecordSize]byte
	for _, v := range voxels {
		binary.LittleEndian.PutUint32(rec[0:4], math.Float32bits(v.Orientation))
		binary.LittleEndian.PutUint32(rec[4:8], math.Float32bits(v.Retardance))
		rec[8] = 0
		if v.Lost {
			rec[8] = flagLost
		}
		sw.sum.Write(rec[:])
		if _, err := sw.out.Write(rec[:]); err != nil {
			return err
		}
	}
	sw.count += int64(len(voxels))
	return nil
}

// Close writes the checksum trailer and flushes. It does not close the
// underlying writer.
func (sw *StreamWriter) Close() error {
	want := int64(sw.header.Planes) * int64(sw.header.VoxelsPerPlane)
	if sw.count != want {
		return fmt.Errorf("voxel stream: wrote %d voxels, header promises %d", sw.count, want)
	}
	if err := binary.Write(sw.out, binary.LittleEndian, sw.sum.Sum64()); err != nil {
		return err
	}
	return sw.out.Flush()
}

// WriteStream writes a complete stream file.
func WriteStream(w io.Writer, s *voxel.Stream, manifestCBOR []byte) error {
	if err := s.Validate(); err != nil {
		return err
	}
	sw := NewStreamWriter(w, s.Planes, s.VoxelsPerPlane)
	if err := sw.WriteHeader(manifestCBOR); err != nil {
		return err
	}
	if err := sw.WriteVoxels(s.Voxels); err != nil {
		return err
	}
	return sw.Close()
}
