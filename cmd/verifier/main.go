// verifier reports the health of a crystal archive without restoring it.
// The exit status is 2 when the archive is not healthy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"alexhalogen/crystalarchive/internal/cmdparser"
	"alexhalogen/crystalarchive/internal/config"
	"alexhalogen/crystalarchive/internal/decoding"
	"alexhalogen/crystalarchive/internal/filehelper"
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

var errUnhealthy = errors.New("archive is not healthy")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// jsonReport is the machine readable form of decoding.Report.
type jsonReport struct {
	Archive         string   `json:"archive"`
	Score           int      `json:"score"`
	Health          string   `json:"health"`
	Healthy         bool     `json:"healthy"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	DeepErrors      []string `json:"deep_errors"`
	Recommendations []string `json:"recommendations"`
	LostFraction    float64  `json:"lost_fraction"`
	LostVoxels      int      `json:"lost_voxels"`
	LossyPlanes     []int    `json:"lossy_planes,omitempty"`
	OutOfRange      int      `json:"out_of_range"`
	DeepScan        bool     `json:"deep_scan"`
	Recoverable     bool     `json:"recoverable,omitempty"`
	DataDamage      []int    `json:"data_damage,omitempty"`
	EccDamage       []int    `json:"ecc_damage,omitempty"`
	ChecksumOK      bool     `json:"stream_checksum_ok"`
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		configPath   string
		manifestPath string
		pubKeyFile   string
		deep         bool
		asJSON       bool
	)

	flagSet := pflag.NewFlagSet("verifier", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "TOML configuration file")
	flagSet.StringVar(&manifestPath, "manifest", "", "manifest to use instead of the copy in the stream")
	flagSet.StringVar(&pubKeyFile, "pubkey", "", "file holding the hex ed25519 public key the manifest must be signed with")
	flagSet.BoolVar(&deep, "deep", false, "decode every shard to check that the archive is recoverable")
	flagSet.BoolVar(&asJSON, "json", false, "print the report as JSON")
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
		return fmt.Errorf("expected one archive file, got %d arguments", len(rest))
	}

	cfg, _, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("pubkey") {
		cfg.Signing.PublicKeyFile = pubKeyFile
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	decodeOpts, err := cfg.DecodeOptions(logger)
	if err != nil {
		return err
	}

	archive, err := filehelper.LoadArchive(rest[0], manifestPath)
	if err != nil {
		return err
	}
	report, err := decoding.Verify(ctx, archive.Stream, archive.Manifest, decoding.VerifyOptions{
		DeepScan:  deep,
		PublicKey: decodeOpts.PublicKey,
		Workers:   cfg.Workers,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if !archive.ChecksumOK {
		report.Warnings = append(report.Warnings, "stream file checksum mismatch")
	}

	if asJSON {
		out := jsonReport{
			Archive:         archive.Manifest.ArchiveID,
			Score:           report.Score,
			Health:          string(report.Health),
			Healthy:         report.Healthy,
			Errors:          report.Errors,
			Warnings:        report.Warnings,
			DeepErrors:      report.DeepErrors,
			Recommendations: report.Recommendations,
			LostFraction:    report.LostFraction,
			LostVoxels:      report.LostVoxels,
			OutOfRange:      report.OutOfRange,
			DeepScan:        report.Scan != nil,
			Recoverable:     report.Recoverable,
			ChecksumOK:      archive.ChecksumOK,
		}
		if report.Loss != nil {
			for _, p := range report.Loss.Planes {
				if p.Lost > 0 {
					out.LossyPlanes = append(out.LossyPlanes, p.Plane)
				}
			}
		}
		if report.Scan != nil {
			out.DataDamage = report.Scan.Damage.DataDamage
			out.EccDamage = report.Scan.Damage.EccDamage
		}
		doc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(doc))
	} else {
		printReport(stdout, archive.Manifest.Summary(), report)
	}

	if !report.Healthy {
		return &exitError{code: 2, err: fmt.Errorf("%w: %s (score %d)", errUnhealthy, report.Health, report.Score)}
	}
	return nil
}

func printReport(w io.Writer, summary string, r *decoding.Report) {
	fmt.Fprintln(w, summary)
	var rows [][]string
	add := func(kind string, items []string) {
		for _, it := range items {
			rows = append(rows, []string{kind, it})
		}
	}
	add("error", r.Errors)
	add("deep error", r.DeepErrors)
	add("warning", r.Warnings)
	add("recommendation", r.Recommendations)
	if len(rows) > 0 {
		fmt.Fprintln(w, cmdparser.RenderTable([]string{"Kind", "Finding"}, rows, nil))
	}
	if r.Loss != nil && r.Loss.Lost > 0 {
		var planes [][]string
		for _, p := range r.Loss.Planes {
			if p.Lost > 0 {
				planes = append(planes, []string{strconv.Itoa(p.Plane), humanize.Comma(int64(p.Lost)),
					fmt.Sprintf("%.2f%%", 100*p.Fraction())})
			}
		}
		fmt.Fprintln(w, cmdparser.RenderTable([]string{"Plane", "Lost", "Share"}, planes,
			[]cmdparser.Align{cmdparser.AlignRight, cmdparser.AlignRight, cmdparser.AlignRight}))
	}
	fmt.Fprintf(w, "health: %s, score %d/100\n", r.Health, r.Score)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Check the health of a crystal archive.

Usage:
  verifier [flags] <archive.cvx>

Exit status is 0 for a healthy archive, 2 for an unhealthy one and 1 on
any other error.

Flags:
%s`, flagSet.FlagUsages())
}
