/*
This package depends on the reedsolomon library written by Klaus Post. The 
original license is reproduced below:

The MIT License (MIT)

Copyright (c) 2015 Klaus Post
Copyright (c) 2015 Backblaze

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.*/

// Package decoding runs the pipeline backwards and reports on the health
// of an archive.
package decoding

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"alexhalogen/crystalarchive/internal/compress"
	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/logging"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/packer"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

type Result struct {
	// Files holds every file that passed verification, or every file when
	// verification was off.
	Files  []types.Entry
	Status []types.FileStatus
	Scan   *ScanResult
	// ArchiveOK is false when the rebuilt blob does not hash to the
	// recorded archive digest.
	ArchiveOK bool
}

// Failed lists the paths whose content did not verify.
func (r *Result) Failed() []string {
	var out []string
	for _, st := range r.Status {
		if st.State == types.FileIntegrityMismatch || st.State == types.FileMissing {
			out = append(out, st.Path)
		}
	}
	return out
}

func checkManifest(m *manifest.Manifest, pub ed25519.PublicKey) error {
	if m == nil {
		return &types.ManifestError{Field: "manifest", Reason: "missing"}
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if err := m.VerifyDigest(); err != nil {
		return err
	}
	if pub != nil {
		return m.VerifySignature(pub)
	}
	return nil
}

// Decode recovers the files of an archive from a voxel stream and its
// manifest.
func Decode(ctx context.Context, s *voxel.Stream, m *manifest.Manifest, opts types.DecodeOptions) (*Result, error) {
	log := logging.OrNop(opts.Logger)
	if err := checkManifest(m, opts.PublicKey); err != nil {
		return nil, err
	}

	scan, err := Scan(ctx, s, m, opts)
	if err != nil {
		return nil, err
	}
	layout := m.ErasureLayout()
	data, err := erasure.Reconstruct(scan.shards(), layout, int(m.Compression.CompressedSize))
	if err != nil {
		lost := scan.LostFraction()
		if errors.Is(err, types.ErrUnrecoverableErasure) && lost > m.DesignedLossTolerance {
			return nil, &types.BoundError{Observed: lost, Tolerance: m.DesignedLossTolerance, Cause: err}
		}
		return nil, err
	}
	if bad := checkRebuilt(data, layout, scan.leaves); len(bad) > 0 {
		return nil, &types.IntegrityError{Scope: "rebuilt shards", Shards: bad, Expected: m.Integrity.MerkleRoot}
	}

	blob, err := compress.Decompress(data, m.CompressInfo())
	if err != nil {
		return nil, err
	}
	if err := packer.ValidateIndex(m.Files, uint64(len(blob))); err != nil {
		return nil, err
	}

	digest := integrity.SHA256Hex(blob)
	res := &Result{Scan: scan, ArchiveOK: digest == m.Integrity.ArchiveSHA256}
	var failed []string
	for _, fe := range m.Files {
		content := packer.Slice(blob, fe)
		st := types.FileStatus{Path: fe.Path, State: types.FileUnverified, Expected: fe.SHA256}
		if opts.VerifyIntegrity {
			st.Observed = integrity.SHA256Hex(content)
			if st.Observed == fe.SHA256 {
				st.State = types.FileOK
			} else {
				st.State = types.FileIntegrityMismatch
				failed = append(failed, fe.Path)
			}
		}
		res.Status = append(res.Status, st)
		if st.State != types.FileIntegrityMismatch {
			res.Files = append(res.Files, packer.EntryFor(fe, content))
		}
	}

	if opts.VerifyIntegrity && len(failed) > 0 {
		if !opts.RepairErrors {
			return nil, &types.IntegrityError{
				Scope:    "file hashes",
				Files:    failed,
				Expected: m.Integrity.ArchiveSHA256,
				Observed: digest,
			}
		}
		log.Warn("files failed verification", "count", len(failed), "files", failed)
	} else if opts.VerifyIntegrity && !res.ArchiveOK {
		return nil, &types.IntegrityError{Scope: "archive hash", Expected: m.Integrity.ArchiveSHA256, Observed: digest}
	}

	log.Info("decoded archive",
		"files", len(res.Files),
		"failed", len(failed),
		"repaired_shards", scan.Damage.Count(),
		"degraded_codewords", scan.Degraded())
	return res, nil
}

// checkRebuilt re-hashes every data shard of the reconstructed stream and
// returns the indices that do not match their leaf.
func checkRebuilt(data []byte, l erasure.Layout, leaves []integrity.Hash) []int {
	shards := make([][]byte, l.DataShards)
	for i := range shards {
		shards[i] = make([]byte, l.ShardSize)
		if off := i * l.ShardSize; off < len(data) {
			copy(shards[i], data[off:])
		}
	}
	return integrity.Localize(shards, leaves[:l.DataShards])
}

func shardError(i int, err error) error {
	return fmt.Errorf("shard %d: %w", i, err)
}
