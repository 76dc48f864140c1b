// Package packer concatenates a folder's files into one blob with a
// parallel file index, and splits it apart again.
package packer

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/types"
)

// Blob is the packed folder. Index entries partition Data in order.
type Blob struct {
	Data  []byte
	Index []types.FileEntry
}

// NormalizePath turns a relative path from any platform into the archive
// form: forward slashes, no leading "./" or "/", no "." or ".." elements.
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("%w: empty path %q", types.ErrPack, p)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: path %q escapes the archive root", types.ErrPack, p)
	}
	return cleaned, nil
}

// Pack sorts entries by normalized path and concatenates their bytes.
// A maxBytes of zero or less disables the size cap.
func Pack(entries []types.Entry, maxBytes int64) (*Blob, error) {
	type item struct {
		path  string
		entry types.Entry
	}
	items := make([]item, 0, len(entries))
	seen := make(map[string]string, len(entries))
	var total int64
	for _, e := range entries {
		p, err := NormalizePath(e.Path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[p]; dup {
			return nil, fmt.Errorf("%w: %q and %q both normalize to %q", types.ErrPack, prev, e.Path, p)
		}
		seen[p] = e.Path
		total += int64(len(e.Data))
		if maxBytes > 0 && total > maxBytes {
			return nil, fmt.Errorf("%w: folder exceeds size cap of %d bytes", types.ErrPack, maxBytes)
		}
		items = append(items, item{path: p, entry: e})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].path < items[j].path })

	blob := &Blob{
		Data:  make([]byte, 0, total),
		Index: make([]types.FileEntry, 0, len(items)),
	}
	for _, it := range items {
		mode := it.entry.Mode.Perm()
		if mode == 0 {
			mode = 0o644
		}
		var mtime *int64
		if !it.entry.ModTime.IsZero() {
			ns := it.entry.ModTime.UnixNano()
			mtime = &ns
		}
		blob.Index = append(blob.Index, types.FileEntry{
			Path:    it.path,
			Offset:  uint64(len(blob.Data)),
			Length:  uint64(len(it.entry.Data)),
			Mode:    uint32(mode),
			ModTime: mtime,
			SHA256:  integrity.SHA256Hex(it.entry.Data),
		})
		blob.Data = append(blob.Data, it.entry.Data...)
	}
	return blob, nil
}

// ValidateIndex checks that index partitions a blob of size bytes with
// unique paths.
func ValidateIndex(index []types.FileEntry, size uint64) error {
	var next uint64
	seen := make(map[string]struct{}, len(index))
	for i, fe := range index {
		if _, dup := seen[fe.Path]; dup {
			return fmt.Errorf("%w: duplicate path %q in index", types.ErrPack, fe.Path)
		}
		seen[fe.Path] = struct{}{}
		if fe.Offset != next {
			return fmt.Errorf("%w: entry %d (%s) starts at %d, want %d", types.ErrPack, i, fe.Path, fe.Offset, next)
		}
		next += fe.Length
	}
	if next != size {
		return fmt.Errorf("%w: index covers %d bytes, blob has %d", types.ErrPack, next, size)
	}
	return nil
}

// Slice returns the bytes of one index entry.
func Slice(data []byte, fe types.FileEntry) []byte {
	return data[fe.Offset : fe.Offset+fe.Length]
}

// Unpack splits data back into entries using index.
func Unpack(data []byte, index []types.FileEntry) ([]types.Entry, error) {
	if err := ValidateIndex(index, uint64(len(data))); err != nil {
		return nil, err
	}
	entries := make([]types.Entry, len(index))
	for i, fe := range index {
		entries[i] = EntryFor(fe, Slice(data, fe))
	}
	return entries, nil
}

// EntryFor rebuilds a types.Entry from its index row and contents.
func EntryFor(fe types.FileEntry, data []byte) types.Entry {
	e := types.Entry{
		Path: fe.Path,
		Data: append([]byte(nil), data...),
		Mode: fs.FileMode(fe.Mode),
	}
	if fe.ModTime != nil {
		e.ModTime = time.Unix(0, *fe.ModTime).UTC()
	}
	return e
}
