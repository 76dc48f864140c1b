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

// Package encoding runs the archive pipeline forward: pack, compress,
// outer code, inner code, map to voxels, interleave, and describe it all
// in a sealed manifest.
package encoding

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"alexhalogen/crystalarchive/internal/compress"
	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/interleave"
	"alexhalogen/crystalarchive/internal/ldpc"
	"alexhalogen/crystalarchive/internal/logging"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/packer"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

// FillerSymbol is written into plane padding.
const FillerSymbol = 0

// Encode turns a folder into a voxel stream and its manifest.
func Encode(ctx context.Context, entries []types.Entry, profile types.ProfileID, opts types.EncodeOptions) (*voxel.Stream, *manifest.Manifest, error) {
	log := logging.OrNop(opts.Logger)
	params, err := profile.Params()
	if err != nil {
		return nil, nil, err
	}

	blob, err := packer.Pack(entries, opts.MaxArchiveBytes)
	if err != nil {
		return nil, nil, err
	}

	codec, level := compress.None, 0
	if opts.Compression {
		codec, level = compress.Codec(params.Codec), params.Level
		if opts.Codec != "" {
			if codec, err = compress.ParseCodec(opts.Codec); err != nil {
				return nil, nil, err
			}
			level = opts.Level
		}
	}
	comp, info, err := compress.Compress(blob.Data, codec, level)
	if err != nil {
		return nil, nil, err
	}
	log.Info("packed and compressed",
		"files", len(blob.Index),
		"size", humanize.Bytes(info.OriginalSize),
		"compressed", humanize.Bytes(info.CompressedSize),
		"codec", info.Codec)

	outer, err := erasure.Plan(len(comp), params.OuterOverhead, params.MinShardSize, opts.ErrorCorrection)
	if err != nil {
		return nil, nil, err
	}
	shards, err := erasure.Split(comp, outer)
	if err != nil {
		return nil, nil, fmt.Errorf("outer code: %w", err)
	}

	var code *ldpc.Code
	var inner *ldpc.Params
	codewordBits := outer.ShardSize * 8
	if opts.ErrorCorrection {
		p := ldpc.Params{
			DataBits:      codewordBits,
			ParityBits:    ldpc.ParityBitsFor(codewordBits, params.InnerRate),
			ColumnWeight:  params.ColumnWeight,
			Seed:          opts.Seed,
			MaxIterations: params.MaxIterations,
			Scale:         params.MinSumScale,
		}
		if code, err = ldpc.New(p); err != nil {
			return nil, nil, fmt.Errorf("inner code: %w", err)
		}
		inner = &p
		codewordBits = code.Len()
	}

	mapper, err := voxel.NewMapper(params.OrientationBits, params.RetardanceBits)
	if err != nil {
		return nil, nil, err
	}

	units := make([][]voxel.Voxel, len(shards))
	leaves := make([]integrity.Hash, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(types.Workers(opts.Workers))
	for i := range shards {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			leaves[i] = integrity.LeafHash(i, shards[i].Data)
			bits := ldpc.Unpack(shards[i].Data)
			if code != nil {
				var err error
				if bits, err = code.Encode(bits); err != nil {
					return fmt.Errorf("shard %d: %w", i, err)
				}
			}
			units[i] = mapper.MapCodeword(bits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	planes := params.PlaneCount
	if !opts.Interleaving {
		planes = 1
	}
	layout := interleave.Layout{
		Units:   len(units),
		UnitLen: mapper.SymbolsFor(codewordBits),
		Planes:  planes,
		Seed:    opts.Seed,
		Shuffle: opts.Interleaving,
	}
	plan, err := interleave.NewPlan(layout)
	if err != nil {
		return nil, nil, err
	}
	voxels, err := interleave.Interleave(plan, units, mapper.Voxel(FillerSymbol))
	if err != nil {
		return nil, nil, err
	}

	m := manifest.New(manifest.Layout{
		Profile:            params,
		CompressionEnabled: opts.Compression,
		Compression:        info,
		Outer:              outer,
		Inner:              inner,
		Mapper:             mapper,
		Interleave:         layout,
		FillerSymbol:       FillerSymbol,
	}, blob.Index, uint64(len(blob.Data)), integrity.SHA256Hex(blob.Data), leaves)
	if err := m.Seal(opts.SigningKey); err != nil {
		return nil, nil, fmt.Errorf("sealing manifest: %w", err)
	}

	stream := &voxel.Stream{Planes: planes, VoxelsPerPlane: layout.Slots(), Voxels: voxels}
	log.Info("encoded archive",
		"profile", params.ID,
		"data_shards", outer.DataShards,
		"parity_shards", outer.ParityShards,
		"shard_size", outer.ShardSize,
		"voxels", humanize.Comma(int64(len(voxels))),
		"planes", planes)
	return stream, m, nil
}
