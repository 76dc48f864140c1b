// Package compress wraps the codecs an archive may be compressed with.
// The chosen codec, level and sizes are returned as Info and stored in the
// manifest, so decompression never has to guess.
package compress

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"alexhalogen/crystalarchive/internal/types"
)

type Codec string

const (
	None Codec = "none"
	Zstd Codec = "zstd" // high ratio
	LZ4  Codec = "lz4"  // high speed
)

// Format versions recorded alongside the codec.
const (
	zstdVersion = "zstd frame format (RFC 8878)"
	lz4Version  = "lz4 block format, raw, no frame"
	noneVersion = "identity"
)

func ParseCodec(name string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(name))); c {
	case None, Zstd, LZ4:
		return c, nil
	case "":
		return None, nil
	}
	return "", fmt.Errorf("%w: unknown codec %q", types.ErrCompression, name)
}

// Info describes a compressed stream.
type Info struct {
	Codec          Codec
	Level          int
	Version        string
	OriginalSize   uint64
	CompressedSize uint64
}

func (i Info) Ratio() float64 {
	if i.CompressedSize == 0 {
		return 1
	}
	return float64(i.OriginalSize) / float64(i.CompressedSize)
}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder

	encoderMu sync.Mutex
	encoders  = map[zstd.EncoderLevel]*zstd.Encoder{}
)

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		var err error
		decoder, err = zstd.NewReader(nil)
		if err != nil {
			panic("compress: zstd decoder initialization failed: " + err.Error())
		}
	})
	return decoder
}

func zstdEncoder(level int) (*zstd.Encoder, error) {
	lvl := zstd.EncoderLevelFromZstd(level)
	encoderMu.Lock()
	defer encoderMu.Unlock()
	if enc, ok := encoders[lvl]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return nil, err
	}
	encoders[lvl] = enc
	return enc, nil
}

// Compress encodes data with codec. Empty input yields an empty stream
// whatever the codec. lz4 output that would not shrink is stored raw and
// reported with codec none.
func Compress(data []byte, codec Codec, level int) ([]byte, Info, error) {
	info := Info{Codec: codec, Level: level, OriginalSize: uint64(len(data))}
	if len(data) == 0 {
		info.Version = versionOf(codec)
		return []byte{}, info, nil
	}

	var out []byte
	switch codec {
	case None:
		out = append([]byte(nil), data...)
		info.Level = 0
	case Zstd:
		enc, err := zstdEncoder(level)
		if err != nil {
			return nil, info, fmt.Errorf("%w: zstd: %w", types.ErrCompression, err)
		}
		out = enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	case LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		var n int
		var err error
		if level > 0 {
			n, err = lz4.CompressBlockHC(data, dst, lz4Level(level), nil, nil)
		} else {
			n, err = lz4.CompressBlock(data, dst, nil)
		}
		if err != nil {
			return nil, info, fmt.Errorf("%w: lz4: %w", types.ErrCompression, err)
		}
		if n == 0 || n >= len(data) {
			out = append([]byte(nil), data...)
			info.Codec, info.Level = None, 0
		} else {
			out = dst[:n]
		}
	default:
		return nil, info, fmt.Errorf("%w: unknown codec %q", types.ErrCompression, codec)
	}
	info.Version = versionOf(info.Codec)
	info.CompressedSize = uint64(len(out))
	return out, info, nil
}

// Decompress reverses Compress and checks the output size.
func Decompress(data []byte, info Info) ([]byte, error) {
	if uint64(len(data)) != info.CompressedSize {
		return nil, fmt.Errorf("%w: have %d compressed bytes, manifest says %d",
			types.ErrCompression, len(data), info.CompressedSize)
	}
	if info.OriginalSize == 0 {
		return []byte{}, nil
	}

	var out []byte
	switch info.Codec {
	case None:
		out = append([]byte(nil), data...)
	case Zstd:
		var err error
		out, err = zstdDecoder().DecodeAll(data, make([]byte, 0, info.OriginalSize))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", types.ErrCompression, err)
		}
	case LZ4:
		out = make([]byte, info.OriginalSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", types.ErrCompression, err)
		}
		out = out[:n]
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", types.ErrCompression, info.Codec)
	}
	if uint64(len(out)) != info.OriginalSize {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", types.ErrCompression, len(out), info.OriginalSize)
	}
	return out, nil
}

func versionOf(c Codec) string {
	switch c {
	case Zstd:
		return zstdVersion
	case LZ4:
		return lz4Version
	default:
		return noneVersion
	}
}

// lz4Level maps 1..9 onto the HC depths; anything above 9 is clamped.
func lz4Level(level int) lz4.CompressionLevel {
	if level > 9 {
		level = 9
	}
	return lz4.CompressionLevel(1 << (8 + level))
}
