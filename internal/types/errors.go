package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPack                    = errors.New("pack error")
	ErrCompression             = errors.New("compression error")
	ErrUnrecoverableErasure    = errors.New("unrecoverable erasure")
	ErrSoftDecodeDegraded      = errors.New("soft decode degraded")
	ErrIntegrityMismatch       = errors.New("integrity mismatch")
	ErrInvalidManifest         = errors.New("invalid manifest")
	ErrCorruptionBoundExceeded = errors.New("corruption bound exceeded")
)

// ErasureError reports an outer-code failure: fewer shards survived than
// the data shard count.
type ErasureError struct {
	Present  int
	Required int
	Missing  []int
}

func (e *ErasureError) Error() string {
	return fmt.Sprintf("%v: %d of %d required shards present, missing %v",
		ErrUnrecoverableErasure, e.Present, e.Required, e.Missing)
}

func (e *ErasureError) Unwrap() error { return ErrUnrecoverableErasure }

// IntegrityError lists everything whose recomputed hash did not match.
// Files holds paths, Shards holds outer shard indices.
type IntegrityError struct {
	Scope    string
	Files    []string
	Shards   []int
	Expected string
	Observed string
}

func (e *IntegrityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %s", ErrIntegrityMismatch, e.Scope)
	if len(e.Files) > 0 {
		fmt.Fprintf(&b, " files=%s", strings.Join(e.Files, ","))
	}
	if len(e.Shards) > 0 {
		fmt.Fprintf(&b, " shards=%v", e.Shards)
	}
	if e.Expected != "" || e.Observed != "" {
		fmt.Fprintf(&b, " expected=%s observed=%s", e.Expected, e.Observed)
	}
	return b.String()
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityMismatch }

// BoundError is returned when recovery failed and the observed damage
// was beyond what the profile was designed to absorb.
type BoundError struct {
	Observed  float64
	Tolerance float64
	Cause     error
}

func (e *BoundError) Error() string {
	return fmt.Sprintf("%v: observed loss %.4f exceeds designed tolerance %.4f: %v",
		ErrCorruptionBoundExceeded, e.Observed, e.Tolerance, e.Cause)
}

func (e *BoundError) Unwrap() []error {
	return []error{ErrCorruptionBoundExceeded, e.Cause}
}

type ManifestError struct {
	Field  string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidManifest, e.Field, e.Reason)
}

func (e *ManifestError) Unwrap() error { return ErrInvalidManifest }
