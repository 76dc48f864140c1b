// simulator corrupts an archive with modelled crystal damage and reports
// how often it still decodes. The input is either a stream file or a
// folder, which is encoded in memory first.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"alexhalogen/crystalarchive/internal/cmdparser"
	"alexhalogen/crystalarchive/internal/config"
	"alexhalogen/crystalarchive/internal/encoding"
	"alexhalogen/crystalarchive/internal/filehelper"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/simulate"
	"alexhalogen/crystalarchive/internal/voxel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		configPath   string
		manifestPath string
		profile      string
		damage       string
		sweep        string
		metricsPath  string
		trials       int
		seed         uint64
	)

	flagSet := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "TOML configuration file")
	flagSet.StringVar(&manifestPath, "manifest", "", "manifest to use instead of the copy in the stream")
	flagSet.StringVarP(&profile, "profile", "p", "", "profile used when the input is a folder")
	flagSet.StringVarP(&damage, "damage", "d", "", "damage models, e.g. tile=0.1,flip=0.001,noise=2")
	flagSet.StringVar(&sweep, "sweep", "", "tile loss levels to sweep, e.g. [0,0.05,0.1,0.2]")
	flagSet.StringVar(&metricsPath, "metrics", "", "write Prometheus text metrics to this file")
	flagSet.IntVarP(&trials, "trials", "n", 20, "trials per damage level")
	flagSet.Uint64Var(&seed, "seed", 1, "damage seed")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stdout, flagSet)
		return nil
	}
	rest := flagSet.Args()
	if len(rest) != 1 {
		return fmt.Errorf("expected one archive file or folder, got %d arguments", len(rest))
	}
	if trials < 1 {
		return fmt.Errorf("--trials must be positive, got %d", trials)
	}

	dmg, err := cmdparser.ParseCorruption(damage, simulate.Config{})
	if err != nil {
		return err
	}
	if flagSet.Changed("seed") || dmg.Seed == 0 {
		dmg.Seed = seed
	}
	var losses []float64
	if sweep != "" {
		if losses = cmdparser.CSVToFloatArr(sweep); len(losses) == 0 {
			return fmt.Errorf("--sweep: malformed or empty list %q", sweep)
		}
	}

	cfg, _, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("profile") {
		cfg.Profile = profile
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}

	s, m, err := load(ctx, cfg, rest[0], manifestPath)
	if err != nil {
		return err
	}
	logger.Info("simulating", "summary", m.Summary(), "trials", trials)

	reg := prometheus.NewRegistry()
	opts := simulate.Options{Workers: cfg.Workers, Logger: logger, Metrics: simulate.NewMetrics(reg)}

	var curve []simulate.Point
	if losses == nil {
		stats, err := simulate.Run(ctx, s, m, dmg, trials, opts)
		if err != nil {
			return err
		}
		curve = []simulate.Point{{TileLoss: dmg.TileLoss, Stats: stats}}
	} else if curve, err = simulate.Sweep(ctx, s, m, dmg, losses, trials, opts); err != nil {
		return err
	}
	fmt.Fprintln(stdout, curveTable(curve, m.DesignedLossTolerance))

	if metricsPath != "" {
		if err := prometheus.WriteToTextfile(metricsPath, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// load reads a stream file, or encodes path with the configured options
// when it is a folder.
func load(ctx context.Context, cfg *config.Config, path, manifestPath string) (*voxel.Stream, *manifest.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		archive, err := filehelper.LoadArchive(path, manifestPath)
		if err != nil {
			return nil, nil, err
		}
		return archive.Stream, archive.Manifest, nil
	}

	id, err := cfg.ProfileID()
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.EncodeOptions(logger)
	if err != nil {
		return nil, nil, err
	}
	entries, err := filehelper.ReadFolder(path)
	if err != nil {
		return nil, nil, err
	}
	return encoding.Encode(ctx, entries, id, opts)
}

func curveTable(curve []simulate.Point, tolerance float64) string {
	rows := make([][]string, 0, len(curve))
	for _, p := range curve {
		st := p.Stats
		within := "yes"
		if p.TileLoss > tolerance {
			within = "no"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%.3f", p.TileLoss),
			within,
			humanize.Comma(int64(len(st.Outcomes))),
			strconv.Itoa(st.Complete),
			fmt.Sprintf("%.1f%%", st.RecoveryRate*100),
			fmt.Sprintf("%.2e", st.MeanRawBER),
			fmt.Sprintf("%.2e", st.MeanResidualBER),
			strconv.Itoa(st.BoundExceeded),
		})
	}
	right := cmdparser.AlignRight
	return cmdparser.RenderTable(
		[]string{"Tile loss", "Within tolerance", "Trials", "Complete", "Recovery", "Raw BER", "Residual BER", "Bound exceeded"},
		rows,
		[]cmdparser.Align{right, cmdparser.AlignLeft, right, right, right, right, right, right},
	)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Estimate how an archive survives modelled crystal damage.

Usage:
  simulator [flags] <archive.cvx | folder>

Damage models for --damage, comma separated key=value pairs:
  tile      fraction of tiles lost        flip    per-voxel bit flip probability
  planes    whole planes lost             tilesize voxels per tile
  drift     orientation offset, degrees   gain    retardance gain sigma
  noise     orientation noise, degrees    rnoise  retardance noise sigma

Flags:
%s`, flagSet.FlagUsages())
}
