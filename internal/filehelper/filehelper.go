package filehelper

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"alexhalogen/crystalarchive/internal/packer"
	"alexhalogen/crystalarchive/internal/types"
)

// ReadFolder loads every regular file under root. Paths are relative to
// root with forward slashes.
func ReadFolder(root string) ([]types.Entry, error) {
	var entries []types.Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, types.Entry{
			Path:    filepath.ToSlash(rel),
			Data:    data,
			Mode:    info.Mode().Perm(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading folder %s: %w", root, err)
	}
	return entries, nil
}

// WriteFolder recreates entries under root, restoring mode and
// modification time.
func WriteFolder(root string, entries []types.Entry) error {
	for _, e := range entries {
		rel, err := packer.NormalizePath(e.Path)
		if err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, filepath.Clean(root)+string(filepath.Separator)) {
			return fmt.Errorf("%w: %q escapes %s", types.ErrPack, e.Path, root)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		mode := e.Mode.Perm()
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(target, e.Data, mode); err != nil {
			return err
		}
		if !e.ModTime.IsZero() {
			if err := os.Chtimes(target, e.ModTime, e.ModTime); err != nil {
				return err
			}
		}
	}
	return nil
}
