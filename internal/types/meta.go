package types

import (
	"io/fs"
	"time"
)

// Entry is one file of the folder being archived, as handed over by the
// filesystem collaborator.
type Entry struct {
	Path    string
	Data    []byte
	Mode    fs.FileMode
	ModTime time.Time
}

// FileEntry is one row of the file index. Offset and Length address the
// packed blob.
type FileEntry struct {
	Path    string `json:"path"`
	Offset  uint64 `json:"offset"`
	Length  uint64 `json:"length"`
	Mode    uint32 `json:"mode"`
	ModTime *int64 `json:"mod_time,omitempty"` // unix nanoseconds, nil when unknown
	SHA256  string `json:"sha256"`
}

// FileState is the per-file outcome of a decode.
type FileState string

const (
	FileOK                FileState = "ok"
	FileIntegrityMismatch FileState = "integrity_mismatch"
	FileUnverified        FileState = "unverified"
	FileMissing           FileState = "missing"
)

type FileStatus struct {
	Path     string
	State    FileState
	Expected string
	Observed string
}
