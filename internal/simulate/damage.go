// Package simulate corrupts voxel streams with physical damage models and
// measures how much of the archive the decoder gets back.
package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"

	"alexhalogen/crystalarchive/internal/voxel"
)

// DefaultTileSize is the run of consecutive voxels one lost tile covers.
const DefaultTileSize = 256

// Config selects the corruption models. Zero values switch a model off.
type Config struct {
	// BitFlip is the per-voxel probability that one bit of its symbol flips.
	BitFlip float64
	// TileLoss is the fraction of tiles marked lost.
	TileLoss float64
	TileSize int
	// PlaneErasures is the number of whole planes marked lost.
	PlaneErasures int
	// OrientationDrift is a systematic offset in degrees.
	OrientationDrift float64
	// RetardanceGain is the standard deviation of a multiplicative
	// retardance gain error, drawn once per trial.
	RetardanceGain float64
	NoiseSigmaDeg  float64
	NoiseSigmaRet  float64
	Seed           uint64
}

func (c Config) Validate() error {
	for _, p := range []struct {
		name string
		v    float64
	}{{"bit_flip", c.BitFlip}, {"tile_loss", c.TileLoss}} {
		if p.v < 0 || p.v > 1 {
			return fmt.Errorf("simulate: %s %v outside [0, 1]", p.name, p.v)
		}
	}
	if c.TileSize < 0 || c.PlaneErasures < 0 {
		return fmt.Errorf("simulate: negative tile size or plane count")
	}
	if c.RetardanceGain < 0 || c.NoiseSigmaDeg < 0 || c.NoiseSigmaRet < 0 {
		return fmt.Errorf("simulate: negative noise parameter")
	}
	return nil
}

func (c Config) tileSize() int {
	if c.TileSize > 0 {
		return c.TileSize
	}
	return DefaultTileSize
}

// Apply returns a corrupted copy of s. The models run in a fixed order:
// tile loss, plane erasure, bit flips, calibration drift, noise. Lost
// voxels are left alone by the later models.
func Apply(s *voxel.Stream, mapper *voxel.Mapper, cfg Config, rng *rand.Rand) (*voxel.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := s.Clone()
	v := out.Voxels

	if cfg.TileLoss > 0 {
		size := cfg.tileSize()
		tiles := (len(v) + size - 1) / size
		for _, tile := range rng.Perm(tiles)[:int(float64(tiles)*cfg.TileLoss)] {
			for i := tile * size; i < min((tile+1)*size, len(v)); i++ {
				v[i].Lost = true
			}
		}
	}

	if cfg.PlaneErasures > 0 {
		if cfg.PlaneErasures > out.Planes {
			return nil, fmt.Errorf("simulate: cannot erase %d of %d planes", cfg.PlaneErasures, out.Planes)
		}
		for _, q := range rng.Perm(out.Planes)[:cfg.PlaneErasures] {
			for i := q; i < len(v); i += out.Planes {
				v[i].Lost = true
			}
		}
	}

	if cfg.BitFlip > 0 {
		bits := mapper.Bits()
		for i := range v {
			if v[i].Lost || rng.Float64() >= cfg.BitFlip {
				continue
			}
			sym, _ := mapper.Demap(v[i])
			v[i] = mapper.Voxel(sym ^ 1<<rng.IntN(bits))
		}
	}

	gain := 1.0
	if cfg.RetardanceGain > 0 {
		gain += rng.NormFloat64() * cfg.RetardanceGain
	}
	analog := cfg.OrientationDrift != 0 || gain != 1 || cfg.NoiseSigmaDeg > 0 || cfg.NoiseSigmaRet > 0
	if analog {
		for i := range v {
			if v[i].Lost {
				continue
			}
			o := float64(v[i].Orientation) + cfg.OrientationDrift + rng.NormFloat64()*cfg.NoiseSigmaDeg
			r := float64(v[i].Retardance)*gain + rng.NormFloat64()*cfg.NoiseSigmaRet
			v[i].Orientation = wrap(o)
			v[i].Retardance = float32(math.Max(0, math.Min(1, r)))
		}
	}
	return out, nil
}

// wrap folds an angle into [0, 180).
func wrap(deg float64) float32 {
	deg = math.Mod(deg, 180)
	if deg < 0 {
		deg += 180
	}
	if f := float32(deg); f < 180 {
		return f
	}
	return 0
}
