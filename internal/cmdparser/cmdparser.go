// Package cmdparser turns the list and key=value arguments of the command
// line tools into typed values, and renders their tabular output.
package cmdparser

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"alexhalogen/crystalarchive/internal/decoding"
	"alexhalogen/crystalarchive/internal/erasure"
	"alexhalogen/crystalarchive/internal/simulate"
)

// CSVToDamage splits absolute data and parity shard indices into a
// DamageDesc. Parity indices are given relative to the first parity shard,
// the same way DamageToCSV prints them.
func CSVToDamage(l erasure.Layout, dataDmg, eccDmg []int) (decoding.DamageDesc, error) {
	var d decoding.DamageDesc
	for _, i := range dataDmg {
		if i < 0 || i >= l.DataShards {
			return d, fmt.Errorf("data shard %d out of range, archive has %d", i, l.DataShards)
		}
	}
	for _, i := range eccDmg {
		if i < 0 || i >= l.ParityShards {
			return d, fmt.Errorf("parity shard %d out of range, archive has %d", i, l.ParityShards)
		}
	}
	d.DataDamage = sortedUnique(dataDmg)
	d.EccDamage = sortedUnique(eccDmg)
	return d, nil
}

func sortedUnique(a []int) []int {
	if len(a) == 0 {
		return nil
	}
	out := slices.Clone(a)
	slices.Sort(out)
	return slices.Compact(out)
}

// DamageToCSV prints both damage lists as comma separated indices.
func DamageToCSV(d decoding.DamageDesc) (string, string) {
	return ShardsToCSV(d.DataDamage), ShardsToCSV(d.EccDamage)
}

func ShardsToCSV(shards []int) string {
	var b strings.Builder
	for i, v := range shards {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// CSVToIntArr parses "[1, 2, 3]" into non-negative ints. Anything
// malformed yields nil; "[]" yields an empty slice.
func CSVToIntArr(line string) []int {
	fields, ok := bracketed(line)
	if !ok {
		return nil
	}
	ret := make([]int, len(fields))
	for i, s := range fields {
		val, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			slog.Debug("bad list element", "element", s, "error", err)
			return nil
		}
		if val < 0 {
			slog.Debug("negative shard number", "value", val)
			return nil
		}
		ret[i] = val
	}
	return ret
}

// CSVToFloatArr parses "[0.05, 0.1]" the same way CSVToIntArr parses ints.
func CSVToFloatArr(line string) []float64 {
	fields, ok := bracketed(line)
	if !ok {
		return nil
	}
	ret := make([]float64, len(fields))
	for i, s := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			slog.Debug("bad list element", "element", s, "error", err)
			return nil
		}
		ret[i] = val
	}
	return ret
}

func bracketed(line string) ([]string, bool) {
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return nil, false
	}
	if len(line) == 2 {
		return []string{}, true
	}
	return strings.Split(line[1:len(line)-1], ","), true
}

// ParseCorruption reads a damage model list such as
// "tile=0.15,flip=0.001,planes=2,drift=3,gain=0.1,noise=2,rnoise=0.05,tilesize=256"
// on top of base.
func ParseCorruption(models string, base simulate.Config) (simulate.Config, error) {
	cfg := base
	models = strings.TrimSpace(models)
	if models == "" {
		return cfg, nil
	}
	for _, kv := range strings.Split(models, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			return base, fmt.Errorf("corruption %q: want key=value", kv)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "tile", "tile_loss":
			cfg.TileLoss, err = strconv.ParseFloat(value, 64)
		case "flip", "bitflip":
			cfg.BitFlip, err = strconv.ParseFloat(value, 64)
		case "planes", "plane_erasures":
			cfg.PlaneErasures, err = strconv.Atoi(value)
		case "tilesize", "tile_size":
			cfg.TileSize, err = strconv.Atoi(value)
		case "drift":
			cfg.OrientationDrift, err = strconv.ParseFloat(value, 64)
		case "gain":
			cfg.RetardanceGain, err = strconv.ParseFloat(value, 64)
		case "noise":
			cfg.NoiseSigmaDeg, err = strconv.ParseFloat(value, 64)
		case "rnoise":
			cfg.NoiseSigmaRet, err = strconv.ParseFloat(value, 64)
		case "seed":
			cfg.Seed, err = strconv.ParseUint(value, 10, 64)
		default:
			return base, fmt.Errorf("corruption: unknown model %q", key)
		}
		if err != nil {
			return base, fmt.Errorf("corruption %s: %w", key, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}
