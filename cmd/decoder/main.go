// decoder restores the folder stored in a crystal archive, or with --scan
// only reports which shards are damaged.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"alexhalogen/crystalarchive/internal/cmdparser"
	"alexhalogen/crystalarchive/internal/config"
	"alexhalogen/crystalarchive/internal/decoding"
	"alexhalogen/crystalarchive/internal/filehelper"
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
		outDir       string
		manifestPath string
		pubKeyFile   string
		dataDamage   string
		eccDamage    string
		repair       bool
		noVerify     bool
		scanOnly     bool
	)

	flagSet := pflag.NewFlagSet("decoder", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "TOML configuration file")
	flagSet.StringVarP(&outDir, "out", "o", "", "folder to restore into")
	flagSet.StringVar(&manifestPath, "manifest", "", "manifest to use instead of the copy in the stream")
	flagSet.StringVar(&pubKeyFile, "pubkey", "", "file holding the hex ed25519 public key the manifest must be signed with")
	flagSet.StringVar(&dataDamage, "data-damage", "", "data shards known to be bad, e.g. [0,3]")
	flagSet.StringVar(&eccDamage, "ecc-damage", "", "parity shards known to be bad, counted from the first parity shard")
	flagSet.BoolVar(&repair, "repair", false, "write every file that passed its hash even if others fail")
	flagSet.BoolVar(&noVerify, "no-verify", false, "skip per-file hash checks")
	flagSet.BoolVar(&scanOnly, "scan", false, "report damaged shards without restoring")
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
	if !scanOnly && outDir == "" {
		return fmt.Errorf("--out is required unless --scan is given")
	}

	cfg, _, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("pubkey") {
		cfg.Signing.PublicKeyFile = pubKeyFile
	}
	if repair {
		cfg.Decode.RepairErrors = true
	}
	if noVerify {
		cfg.Decode.VerifyIntegrity = false
		cfg.Decode.RepairErrors = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	opts, err := cfg.DecodeOptions(logger)
	if err != nil {
		return err
	}

	archive, err := filehelper.LoadArchive(rest[0], manifestPath)
	if err != nil {
		return err
	}
	if archive.Truncated {
		logger.Warn("stream file is truncated, missing voxels are treated as lost", "path", rest[0])
	} else if !archive.ChecksumOK {
		logger.Warn("stream checksum mismatch, relying on shard hashes", "path", rest[0])
	}
	m := archive.Manifest
	logger.Info("archive loaded", "summary", m.Summary())

	if dataDamage != "" || eccDamage != "" {
		dataList, err := parseList("data-damage", dataDamage)
		if err != nil {
			return err
		}
		eccList, err := parseList("ecc-damage", eccDamage)
		if err != nil {
			return err
		}
		layout := m.ErasureLayout()
		dmg, err := cmdparser.CSVToDamage(layout, dataList, eccList)
		if err != nil {
			return err
		}
		opts.Erase = dmg.Shards(layout.DataShards)
	}

	if scanOnly {
		scan, err := decoding.Scan(ctx, archive.Stream, m, opts)
		if err != nil {
			return err
		}
		printScan(stdout, scan)
		return nil
	}

	res, err := decoding.Decode(ctx, archive.Stream, m, opts)
	if err != nil {
		return err
	}
	if err := filehelper.WriteFolder(outDir, res.Files); err != nil {
		return err
	}
	fmt.Fprintln(stdout, statusTable(res))
	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed their integrity check", len(failed), len(res.Status))
	}
	return nil
}

func parseList(name, line string) ([]int, error) {
	if line == "" {
		return nil, nil
	}
	v := cmdparser.CSVToIntArr(line)
	if v == nil {
		return nil, fmt.Errorf("--%s: malformed shard list %q", name, line)
	}
	return v, nil
}

func printScan(w io.Writer, scan *decoding.ScanResult) {
	var rows [][]string
	for _, r := range scan.Shards {
		if r.State == decoding.ShardClean {
			continue
		}
		kind := "data"
		if r.Parity {
			kind = "parity"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index), kind, string(r.State),
			strconv.Itoa(r.Iterations), strconv.Itoa(r.Corrected),
			fmt.Sprintf("%d/%d", r.LostVoxels, r.Voxels),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, cmdparser.RenderTable(
			[]string{"Shard", "Kind", "State", "Iterations", "Corrected bits", "Lost voxels"},
			rows,
			[]cmdparser.Align{cmdparser.AlignRight, cmdparser.AlignLeft, cmdparser.AlignLeft,
				cmdparser.AlignRight, cmdparser.AlignRight, cmdparser.AlignRight},
		))
	}
	data, ecc := cmdparser.DamageToCSV(scan.Damage)
	fmt.Fprintf(w, "lost voxels: %.2f%%\n", scan.LostFraction()*100)
	fmt.Fprintf(w, "usable shards: %d of %d, %d needed\n", scan.Usable(), len(scan.Shards), scan.Layout.DataShards)
	fmt.Fprintf(w, "data damage: [%s]\n", data)
	fmt.Fprintf(w, "ecc damage: [%s]\n", ecc)
}

func statusTable(res *decoding.Result) string {
	sizes := make(map[string]int, len(res.Files))
	for _, f := range res.Files {
		sizes[f.Path] = len(f.Data)
	}
	rows := make([][]string, 0, len(res.Status))
	for _, st := range res.Status {
		size := "-"
		if n, ok := sizes[st.Path]; ok {
			size = humanize.Bytes(uint64(n))
		}
		rows = append(rows, []string{st.Path, size, string(st.State)})
	}
	return cmdparser.RenderTable([]string{"Path", "Size", "State"}, rows,
		[]cmdparser.Align{cmdparser.AlignLeft, cmdparser.AlignRight, cmdparser.AlignLeft})
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Restore the folder stored in a crystal archive.

Usage:
  decoder [flags] -o <folder> <archive.cvx>
  decoder --scan <archive.cvx>

Flags:
%s`, flagSet.FlagUsages())
}
