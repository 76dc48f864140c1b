package simulate

import (
	"context"
	"log/slog"

	"alexhalogen/crystalarchive/internal/logging"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/prng"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

type Options struct {
	Workers int
	Logger  *slog.Logger
	// Metrics, when set, is updated after every trial.
	Metrics *Metrics
}

// Statistics aggregates the trials of one configuration.
type Statistics struct {
	Config   Config
	Outcomes []Outcome
	// Complete counts trials that recovered every file.
	Complete        int
	RecoveryRate    float64
	MeanRawBER      float64
	MeanResidualBER float64
	BoundExceeded   int
}

func (s *Statistics) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Complete() {
		s.Complete++
	}
	if o.BoundExceeded {
		s.BoundExceeded++
	}
	n := float64(len(s.Outcomes))
	s.RecoveryRate = float64(s.Complete) / n
	s.MeanRawBER += (o.RawBER - s.MeanRawBER) / n
	s.MeanResidualBER += (o.ResidualBER - s.MeanResidualBER) / n
}

// Run corrupts and decodes the archive trials times. Trial t draws its
// damage from stream StreamDamage+t of cfg.Seed, so a run is repeatable.
func Run(ctx context.Context, s *voxel.Stream, m *manifest.Manifest, cfg Config, trials int, opts Options) (*Statistics, error) {
	ref, err := NewReference(ctx, s, m, types.DecodeOptions{Workers: opts.Workers})
	if err != nil {
		return nil, err
	}
	return run(ctx, ref, cfg, trials, opts)
}

func run(ctx context.Context, ref *Reference, cfg Config, trials int, opts Options) (*Statistics, error) {
	log := logging.OrNop(opts.Logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dopts := types.DecodeOptions{Workers: opts.Workers}
	stats := &Statistics{Config: cfg}
	for i := 0; i < trials; i++ {
		t := NewTrial(ref)
		if err := t.Corrupt(cfg, prng.New(cfg.Seed, prng.StreamDamage+uint64(i))); err != nil {
			return nil, err
		}
		o, err := t.Decode(ctx, dopts)
		if err != nil {
			return nil, err
		}
		stats.add(o)
		opts.Metrics.observe(o)
		log.Debug("trial done", "trial", i, "recovered", o.Recovered, "total", o.Total,
			"lost", o.LostFraction, "raw_ber", o.RawBER, "residual_ber", o.ResidualBER, "error", o.Err)
	}
	log.Info("simulation finished", "trials", trials, "recovery_rate", stats.RecoveryRate,
		"mean_raw_ber", stats.MeanRawBER, "mean_residual_ber", stats.MeanResidualBER)
	return stats, nil
}

// Point is one entry of a recovery curve.
type Point struct {
	TileLoss float64
	Stats    *Statistics
}

// Sweep runs base at each tile loss level and returns the recovery curve.
func Sweep(ctx context.Context, s *voxel.Stream, m *manifest.Manifest, base Config, losses []float64, trials int, opts Options) ([]Point, error) {
	ref, err := NewReference(ctx, s, m, types.DecodeOptions{Workers: opts.Workers})
	if err != nil {
		return nil, err
	}
	curve := make([]Point, 0, len(losses))
	for _, loss := range losses {
		cfg := base
		cfg.TileLoss = loss
		stats, err := run(ctx, ref, cfg, trials, opts)
		if err != nil {
			return nil, err
		}
		curve = append(curve, Point{TileLoss: loss, Stats: stats})
	}
	return curve, nil
}
