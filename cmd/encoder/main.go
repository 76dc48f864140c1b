// encoder packs a folder into a crystal archive: a voxel stream file with
// an embedded manifest, plus an optional JSON copy of the manifest.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"alexhalogen/crystalarchive/internal/cmdparser"
	"alexhalogen/crystalarchive/internal/config"
	"alexhalogen/crystalarchive/internal/encoding"
	"alexhalogen/crystalarchive/internal/filehelper"
	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/manifest"
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
		outPath      string
		manifestPath string
		profile      string
		codec        string
		level        int
		seed         uint64
		keyFile      string
		genKey       string
		noCompress   bool
		noECC        bool
		noInterleave bool
		printConfig  bool
	)

	flagSet := pflag.NewFlagSet("encoder", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "TOML configuration file")
	flagSet.StringVarP(&outPath, "out", "o", "", "output stream file (default: <folder>.cvx)")
	flagSet.StringVar(&manifestPath, "manifest", "", "also write the manifest as JSON to this path")
	flagSet.StringVarP(&profile, "profile", "p", "", "conservative (A) or aggressive (B)")
	flagSet.StringVar(&codec, "codec", "", "override the profile compressor: none, zstd or lz4")
	flagSet.IntVar(&level, "level", 0, "compression level for --codec")
	flagSet.Uint64Var(&seed, "seed", 0, "seed for the inner code and the interleaver")
	flagSet.StringVar(&keyFile, "key", "", "file holding the hex ed25519 key used to sign the manifest")
	flagSet.StringVar(&genKey, "gen-key", "", "write a new signing key to this path, its public key to <path>.pub, and exit")
	flagSet.BoolVar(&noCompress, "no-compression", false, "store the packed folder uncompressed")
	flagSet.BoolVar(&noECC, "no-ecc", false, "disable the inner and outer codes")
	flagSet.BoolVar(&noInterleave, "no-interleave", false, "write shards contiguously in one plane")
	flagSet.BoolVar(&printConfig, "print-config", false, "print a sample configuration and exit")
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
	if printConfig {
		_, err := io.WriteString(stdout, config.Sample())
		return err
	}
	if genKey != "" {
		return writeKeyPair(stdout, genKey)
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		return fmt.Errorf("expected one input folder, got %d arguments", len(rest))
	}
	folder := rest[0]
	if outPath == "" {
		outPath = filepath.Clean(folder) + ".cvx"
	}

	cfg, _, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("profile") {
		cfg.Profile = profile
	}
	if flagSet.Changed("codec") {
		cfg.Compression.Codec = codec
	}
	if flagSet.Changed("level") {
		cfg.Compression.Level = level
	}
	if flagSet.Changed("seed") {
		cfg.Seed = seed
	}
	if flagSet.Changed("key") {
		cfg.Signing.KeyFile = keyFile
	}
	cfg.Layers.Compression = cfg.Layers.Compression && !noCompress
	cfg.Layers.ErrorCorrection = cfg.Layers.ErrorCorrection && !noECC
	cfg.Layers.Interleaving = cfg.Layers.Interleaving && !noInterleave
	if err := cfg.Validate(); err != nil {
		return err
	}

	id, err := cfg.ProfileID()
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	opts, err := cfg.EncodeOptions(logger)
	if err != nil {
		return err
	}

	entries, err := filehelper.ReadFolder(folder)
	if err != nil {
		return err
	}
	s, m, err := encoding.Encode(ctx, entries, id, opts)
	if err != nil {
		return err
	}
	if err := filehelper.SaveArchive(outPath, s, m); err != nil {
		return err
	}
	if manifestPath != "" {
		if err := filehelper.SaveManifest(manifestPath, m); err != nil {
			return err
		}
	}
	logger.Info("archive written", "path", outPath, "summary", m.Summary())

	fmt.Fprintln(stdout, summaryTable(m, outPath))
	return nil
}

// writeKeyPair stores the hex seed at path and the hex public key next to
// it, in the formats --key and --pubkey read back.
func writeKeyPair(w io.Writer, path string) error {
	pub, priv, err := integrity.GenerateKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600); err != nil {
		return err
	}
	pubPath := path + ".pub"
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)+"\n"), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "signing key: %s\npublic key:  %s\n", path, pubPath)
	return nil
}

func summaryTable(m *manifest.Manifest, outPath string) string {
	signed := "no"
	if m.Signed() {
		signed = "yes"
	}
	codec := "none"
	if m.Compression.Enabled {
		codec = fmt.Sprintf("%s (level %d)", m.Compression.Codec, m.Compression.Level)
	}
	rows := [][]string{
		{"Archive", m.ArchiveID},
		{"Output", outPath},
		{"Profile", m.Profile},
		{"Files", strconv.Itoa(m.TotalFiles)},
		{"Packed", humanize.Bytes(m.Compression.OriginalSize)},
		{"Compressed", humanize.Bytes(m.Compression.CompressedSize) + ", " + codec},
		{"Shards", fmt.Sprintf("%d data + %d parity of %s", m.Outer.DataShards, m.Outer.ParityShards,
			humanize.IBytes(uint64(m.Outer.ShardSize)))},
		{"Voxels", fmt.Sprintf("%s in %d planes", humanize.Comma(int64(m.Voxel.TotalVoxels)), m.Interleaving.PlaneCount)},
		{"Loss tolerance", fmt.Sprintf("%.1f%%", m.DesignedLossTolerance*100)},
		{"Signed", signed},
	}
	return cmdparser.RenderTable([]string{"Field", "Value"}, rows, nil)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Encode a folder into a crystal archive.

Usage:
  encoder [flags] <folder>

Flags:
%s`, flagSet.FlagUsages())
}
