package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"alexhalogen/crystalarchive/internal/decoding"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

type State int

const (
	Clean State = iota
	Corrupted
	Decoded
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Corrupted:
		return "corrupted"
	case Decoded:
		return "decoded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrTransition = errors.New("simulate: illegal trial transition")

// Outcome is what one trial measured.
type Outcome struct {
	Recovered int
	Total     int
	// RawBER is the symbol bit error rate over voxels that were not lost.
	RawBER float64
	// ResidualBER is the bit error rate of decoded shards, lost and
	// erased shards excluded.
	ResidualBER   float64
	LostFraction  float64
	Degraded      int
	BoundExceeded bool
	Err           error
}

// Complete reports whether every file came back verified.
func (o Outcome) Complete() bool { return o.Err == nil && o.Recovered == o.Total }

// Reference is the clean stream and its decoded shards, shared by all
// trials against one archive.
type Reference struct {
	Stream   *voxel.Stream
	Manifest *manifest.Manifest
	mapper   *voxel.Mapper
	shards   [][]byte
}

// NewReference scans the clean stream once.
func NewReference(ctx context.Context, s *voxel.Stream, m *manifest.Manifest, opts types.DecodeOptions) (*Reference, error) {
	mapper, err := m.Mapper()
	if err != nil {
		return nil, err
	}
	scan, err := decoding.Scan(ctx, s, m, opts)
	if err != nil {
		return nil, err
	}
	if d := scan.Damage.Count(); d > 0 {
		return nil, fmt.Errorf("simulate: reference stream already has %d damaged shards", d)
	}
	return &Reference{Stream: s, Manifest: m, mapper: mapper, shards: scan.Data}, nil
}

// Trial walks one corruption through Clean, Corrupted and Decoded.
type Trial struct {
	ref     *Reference
	state   State
	stream  *voxel.Stream
	outcome Outcome
}

func NewTrial(ref *Reference) *Trial {
	return &Trial{ref: ref, state: Clean, stream: ref.Stream}
}

func (t *Trial) State() State          { return t.state }
func (t *Trial) Stream() *voxel.Stream { return t.stream }

func (t *Trial) Corrupt(cfg Config, rng *rand.Rand) error {
	if t.state != Clean {
		return fmt.Errorf("%w: corrupt from %s", ErrTransition, t.state)
	}
	s, err := Apply(t.ref.Stream, t.ref.mapper, cfg, rng)
	if err != nil {
		return err
	}
	t.stream = s
	t.state = Corrupted
	return nil
}

// Decode runs the full decode path on the corrupted stream. Decode
// failures are recorded in the outcome, not returned.
func (t *Trial) Decode(ctx context.Context, opts types.DecodeOptions) (Outcome, error) {
	if t.state != Corrupted {
		return Outcome{}, fmt.Errorf("%w: decode from %s", ErrTransition, t.state)
	}
	m := t.ref.Manifest
	o := Outcome{Total: m.TotalFiles, LostFraction: t.stream.LostFraction()}
	o.RawBER = rawBER(t.ref.mapper, t.ref.Stream, t.stream)

	opts.VerifyIntegrity, opts.RepairErrors = true, true
	res, err := decoding.Decode(ctx, t.stream, m, opts)
	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	var scan *decoding.ScanResult
	if err != nil {
		o.Err = err
		o.BoundExceeded = errors.Is(err, types.ErrCorruptionBoundExceeded)
		scan, _ = decoding.Scan(ctx, t.stream, m, opts)
	} else {
		scan = res.Scan
		for _, st := range res.Status {
			if st.State == types.FileOK {
				o.Recovered++
			}
		}
	}
	if scan != nil {
		o.Degraded = scan.Degraded()
		o.ResidualBER = residualBER(t.ref.shards, scan.Data)
	}
	t.outcome = o
	t.state = Decoded
	return o, nil
}

func (t *Trial) Outcome() (Outcome, bool) { return t.outcome, t.state == Decoded }

func rawBER(mapper *voxel.Mapper, clean, damaged *voxel.Stream) float64 {
	errs, total := 0, 0
	for i, v := range damaged.Voxels {
		if v.Lost {
			continue
		}
		want, _ := mapper.Demap(clean.Voxels[i])
		got, _ := mapper.Demap(v)
		errs += bits.OnesCount(uint(want ^ got))
		total += mapper.Bits()
	}
	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total)
}

func residualBER(want, got [][]byte) float64 {
	errs, total := 0, 0
	for i, g := range got {
		if g == nil {
			continue
		}
		for j := range g {
			errs += bits.OnesCount8(g[j] ^ want[i][j])
		}
		total += 8 * len(g)
	}
	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total)
}
