package decoding

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/interleave"
	"alexhalogen/crystalarchive/internal/logging"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/types"
	"alexhalogen/crystalarchive/internal/voxel"
)

type VerifyOptions struct {
	// DeepScan decodes every codeword and checks the outer code instead of
	// stopping at structural checks.
	DeepScan  bool
	PublicKey ed25519.PublicKey
	Workers   int
	Logger    *slog.Logger
}

type Health string

const (
	Healthy     Health = "healthy"
	MinorIssues Health = "minor_issues"
	Degraded    Health = "degraded"
	Critical    Health = "critical"
)

// Score deductions per finding.
const (
	errorPenalty     = 20
	warningPenalty   = 10
	deepErrorPenalty = 15
	healthyScore     = 80
)

type Report struct {
	Score           int
	Health          Health
	Healthy         bool
	Errors          []string
	Warnings        []string
	DeepErrors      []string
	Recommendations []string

	// LostFraction counts data voxels only, like ScanResult.LostFraction.
	LostFraction float64
	LostVoxels   int
	OutOfRange   int
	// Loss breaks the lost voxels down per plane and shard. It is nil
	// when the stream does not match the recorded geometry.
	Loss *LossMap
	// Scan and Recoverable are only filled in by a deep scan.
	Scan        *ScanResult
	Recoverable bool
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) deepf(format string, args ...any) {
	r.DeepErrors = append(r.DeepErrors, fmt.Sprintf(format, args...))
}

func (r *Report) recommend(format string, args ...any) {
	r.Recommendations = append(r.Recommendations, fmt.Sprintf(format, args...))
}

// Verify checks an archive without extracting it. A manifest that fails
// validation aborts with its error; everything else becomes a finding in
// the report.
func Verify(ctx context.Context, s *voxel.Stream, m *manifest.Manifest, opts VerifyOptions) (*Report, error) {
	log := logging.OrNop(opts.Logger)
	if m == nil {
		return nil, &types.ManifestError{Field: "manifest", Reason: "missing"}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	r := &Report{}
	if err := m.VerifyDigest(); err != nil {
		r.errorf("%v", err)
	}
	switch {
	case m.Signed():
		if err := m.VerifySignature(opts.PublicKey); err != nil {
			r.errorf("%v", err)
		}
	case opts.PublicKey != nil:
		r.errorf("manifest is not signed but a public key was supplied")
	default:
		r.recommend("sign the manifest so tampering can be detected")
	}

	geometryOK := true
	if err := checkGeometry(s, m); err != nil {
		r.errorf("%v", err)
		geometryOK = false
	}
	if geometryOK {
		plan, err := interleave.NewPlan(m.InterleaveLayout())
		if err != nil {
			return nil, &types.ManifestError{Field: "interleaving", Reason: err.Error()}
		}
		loss := lossMap(s, plan)
		r.Loss = &loss
		r.LostFraction, r.LostVoxels = loss.Fraction(), loss.Lost
	} else if s != nil {
		for _, v := range s.Voxels {
			if v.Lost {
				r.LostVoxels++
			}
		}
		r.LostFraction = s.LostFraction()
	}
	if s != nil {
		r.OutOfRange = s.OutOfRange()
	}
	switch {
	case r.LostFraction > m.DesignedLossTolerance:
		r.errorf("%.2f%% of voxels lost, designed tolerance is %.2f%%", 100*r.LostFraction, 100*m.DesignedLossTolerance)
	case r.LostFraction > 0:
		r.warnf("%.2f%% of voxels lost", 100*r.LostFraction)
	}
	if r.LostVoxels > 0 {
		r.recommend("re-image the medium; %s voxels were unreadable", humanize.Comma(int64(r.LostVoxels)))
	}
	if r.Loss != nil && len(r.Loss.Planes) > 1 {
		if hot := r.Loss.Above(m.DesignedLossTolerance); len(hot) > 0 {
			r.recommend("re-read planes %v; each lost more than %.2f%% of its voxels", hot, 100*m.DesignedLossTolerance)
		}
	}
	if r.OutOfRange > 0 {
		r.warnf("%d voxels read outside the physical range", r.OutOfRange)
		r.recommend("recalibrate the reader before decoding")
	}

	if !opts.DeepScan {
		r.recommend("run a deep scan to check every codeword")
	} else if geometryOK {
		deepScan(ctx, r, s, m, opts)
	}

	r.finish()
	log.Info("verified archive", "score", r.Score, "health", r.Health,
		"errors", len(r.Errors), "warnings", len(r.Warnings), "deep_errors", len(r.DeepErrors))
	return r, nil
}

func deepScan(ctx context.Context, r *Report, s *voxel.Stream, m *manifest.Manifest, opts VerifyOptions) {
	scan, err := Scan(ctx, s, m, types.DecodeOptions{Workers: opts.Workers, Logger: opts.Logger})
	if err != nil {
		r.deepf("scan failed: %v", err)
		return
	}
	r.Scan = scan
	l := scan.Layout
	usable := scan.Usable()
	if usable < l.DataShards {
		r.deepf("only %d of %d required shards decode cleanly", usable, l.DataShards)
		r.recommend("recovery needs %d more shards; re-read the damaged planes with a fresh calibration", l.DataShards-usable)
		return
	}
	if d := scan.Damage.Count(); d > 0 {
		r.warnf("%d shards need reconstruction: data %v, parity %v", d, scan.Damage.DataDamage, scan.Damage.EccDamage)
		if l.ParityShards > 0 && 2*d >= l.ParityShards {
			r.recommend("copy the archive to fresh media now: %d of %d parity shards already consumed", d, l.ParityShards)
		}
		if m.Profile == types.Aggressive.String() {
			r.recommend("re-encode with the %s profile", types.Conservative)
		}
	}
	if n := scan.Degraded(); n > 0 {
		r.warnf("%d codewords did not converge in the inner decoder", n)
	}

	ok, err := erasure.Recoverable(scan.shards(), l)
	switch {
	case err != nil:
		r.deepf("outer code check failed: %v", err)
	case !ok:
		r.deepf("parity shards disagree with the data shards")
	default:
		r.Recoverable = true
	}
}

func (r *Report) finish() {
	r.Score = 100 - errorPenalty*len(r.Errors) - warningPenalty*len(r.Warnings) - deepErrorPenalty*len(r.DeepErrors)
	if r.Score < 0 {
		r.Score = 0
	}
	switch {
	case r.Score >= healthyScore && len(r.Errors) == 0 && len(r.DeepErrors) == 0:
		r.Health = Healthy
	case r.Score >= 60:
		r.Health = MinorIssues
	case r.Score >= 40:
		r.Health = Degraded
	default:
		r.Health = Critical
	}
	r.Healthy = r.Health == Healthy
	if r.Healthy && len(r.Warnings) == 0 && len(r.Recommendations) == 0 {
		r.recommend("no action needed")
	}
}
