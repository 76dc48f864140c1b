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

// Package erasure is the outer code: fixed-size data shards plus
// Reed-Solomon parity shards, any DataShards of which rebuild the input.
package erasure

import (
	"bytes"
	"fmt"
	"math"

	"github.com/klauspost/reedsolomon"

	"alexhalogen/crystalarchive/internal/types"
)

// MaxShards is the largest data+parity count the GF(2^8) code supports.
const MaxShards = 256

const Scheme = "reed-solomon GF(2^8) systematic, klauspost/reedsolomon Vandermonde matrix"

type Layout struct {
	DataShards   int
	ParityShards int
	ShardSize    int
}

func (l Layout) Total() int { return l.DataShards + l.ParityShards }

func (l Layout) Validate() error {
	if l.DataShards < 1 || l.ParityShards < 0 || l.ShardSize < 1 {
		return fmt.Errorf("bad shard layout %+v", l)
	}
	if l.Total() > MaxShards {
		return fmt.Errorf("shard layout %d+%d exceeds %d shards", l.DataShards, l.ParityShards, MaxShards)
	}
	return nil
}

// Plan sizes the outer code for length bytes. The data shard count is
// ceil(length/shardSize) and the parity count ceil(k*overhead), at least
// one when withParity is set. The shard size doubles until the total fits
// in MaxShards.
func Plan(length int, overhead float64, shardSize int, withParity bool) (Layout, error) {
	if shardSize < 1 || length < 0 || overhead < 0 {
		return Layout{}, fmt.Errorf("cannot plan %d bytes with shard size %d, overhead %v", length, shardSize, overhead)
	}
	for {
		k := (length + shardSize - 1) / shardSize
		if k < 1 {
			k = 1
		}
		parity := 0
		if withParity {
			parity = int(math.Ceil(float64(k)*overhead - 1e-9))
			if parity < 1 {
				parity = 1
			}
		}
		if k+parity <= MaxShards {
			return Layout{DataShards: k, ParityShards: parity, ShardSize: shardSize}, nil
		}
		shardSize *= 2
	}
}

// Shard is one outer-code unit. Absent shards have Present false and
// their Data is ignored.
type Shard struct {
	Index   int
	Parity  bool
	Present bool
	Data    []byte
}

// Split cuts data into DataShards shards, zero padding the last, and
// appends the parity shards.
func Split(data []byte, l Layout) ([]Shard, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if len(data) > l.DataShards*l.ShardSize {
		return nil, fmt.Errorf("%d bytes do not fit %d shards of %d", len(data), l.DataShards, l.ShardSize)
	}

	buffer := make([][]byte, l.Total())
	for i := range buffer {
		buffer[i] = make([]byte, l.ShardSize)
		if i < l.DataShards && i*l.ShardSize < len(data) {
			copy(buffer[i], data[i*l.ShardSize:])
		}
	}

	if l.ParityShards > 0 {
		enc, err := reedsolomon.New(l.DataShards, l.ParityShards)
		if err != nil {
			return nil, fmt.Errorf("coder initialization failed at (%d, %d): %w", l.DataShards, l.ParityShards, err)
		}
		if err := enc.Encode(buffer); err != nil {
			return nil, fmt.Errorf("encoding failed: %w", err)
		}
		ok, err := enc.Verify(buffer)
		if err != nil || !ok {
			return nil, fmt.Errorf("encoding verification failed: %v", err)
		}
	}

	shards := make([]Shard, l.Total())
	for i := range shards {
		shards[i] = Shard{Index: i, Parity: i >= l.DataShards, Present: true, Data: buffer[i]}
	}
	return shards, nil
}

func missing(shards []Shard, total int) ([][]byte, []int) {
	buffer := make([][]byte, total)
	var lost []int
	for i := 0; i < total; i++ {
		if i < len(shards) && shards[i].Present && shards[i].Data != nil {
			buffer[i] = shards[i].Data
		} else {
			lost = append(lost, i)
		}
	}
	return buffer, lost
}

// Reconstruct rebuilds the first size bytes of the original stream from
// the surviving shards. Fewer than DataShards present is final.
func Reconstruct(shards []Shard, l Layout, size int) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	buffer, lost := missing(shards, l.Total())
	present := l.Total() - len(lost)
	if present < l.DataShards {
		return nil, &types.ErasureError{Present: present, Required: l.DataShards, Missing: lost}
	}
	if size > l.DataShards*l.ShardSize {
		return nil, fmt.Errorf("requested %d bytes from %d shards of %d", size, l.DataShards, l.ShardSize)
	}

	var out bytes.Buffer
	out.Grow(size)
	if l.ParityShards > 0 {
		enc, err := reedsolomon.New(l.DataShards, l.ParityShards)
		if err != nil {
			return nil, err
		}
		if len(lost) > 0 {
			if err := enc.ReconstructData(buffer); err != nil {
				return nil, fmt.Errorf("reconstruction failed: %w", err)
			}
		}
		if err := enc.Join(&out, buffer, size); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}

	for _, b := range buffer[:l.DataShards] {
		if out.Len()+len(b) > size {
			out.Write(b[:size-out.Len()])
			break
		}
		out.Write(b)
	}
	return out.Bytes(), nil
}

// Recoverable reports whether the surviving shards rebuild a consistent
// codeword: enough are present and, after reconstruction, every parity
// shard agrees with the data.
func Recoverable(shards []Shard, l Layout) (bool, error) {
	if err := l.Validate(); err != nil {
		return false, err
	}
	buffer, lost := missing(shards, l.Total())
	present := l.Total() - len(lost)
	if present < l.DataShards {
		return false, &types.ErasureError{Present: present, Required: l.DataShards, Missing: lost}
	}
	if l.ParityShards == 0 {
		return true, nil
	}
	enc, err := reedsolomon.New(l.DataShards, l.ParityShards)
	if err != nil {
		return false, err
	}
	work := make([][]byte, len(buffer))
	for i, b := range buffer {
		if b != nil {
			work[i] = append([]byte(nil), b...)
		}
	}
	if err := enc.Reconstruct(work); err != nil {
		return false, err
	}
	return enc.Verify(work)
}
