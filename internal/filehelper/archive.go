package filehelper

import (
	"bytes"
	"fmt"
	"os"

	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/voxel"
)

// Archive is a stream file together with the manifest it will be decoded
// with.
type Archive struct {
	Stream     *voxel.Stream
	Manifest   *manifest.Manifest
	ChecksumOK bool
	Truncated  bool
}

// ParseManifest accepts the JSON or the CBOR form.
func ParseManifest(data []byte) (*manifest.Manifest, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return manifest.Unmarshal(trimmed)
	}
	return manifest.UnmarshalBinary(data)
}

// LoadArchive reads a stream file. A non-empty manifestPath replaces the
// manifest copy embedded in the stream, which is then never parsed.
func LoadArchive(path, manifestPath string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rr, err := ReadStream(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	raw := rr.Manifest
	if manifestPath != "" {
		if raw, err = os.ReadFile(manifestPath); err != nil {
			return nil, err
		}
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}
	return &Archive{Stream: rr.Stream, Manifest: m, ChecksumOK: rr.ChecksumOK, Truncated: rr.Truncated}, nil
}

// SaveArchive writes s with a CBOR copy of m to path.
func SaveArchive(path string, s *voxel.Stream, m *manifest.Manifest) error {
	cbor, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := WriteStream(f, s, cbor); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveManifest writes the indented JSON form of m.
func SaveManifest(path string, m *manifest.Manifest) error {
	doc, err := m.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, doc, 0o644)
}
