// Package config loads the TOML settings shared by the command line tools.
package config

import (
	"crypto/ed25519"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"alexhalogen/crystalarchive/internal/logging"
	"alexhalogen/crystalarchive/internal/types"
)

//go:embed sample_config.toml
var sampleConfig string

// Sample returns a commented configuration file with the defaults.
func Sample() string { return sampleConfig }

type Layers struct {
	Compression     bool `toml:"compression"`
	ErrorCorrection bool `toml:"error_correction"`
	Interleaving    bool `toml:"interleaving"`
}

type Compression struct {
	Codec string `toml:"codec"`
	Level int    `toml:"level"`
}

type Decode struct {
	VerifyIntegrity bool    `toml:"verify_integrity"`
	RepairErrors    bool    `toml:"repair_errors"`
	LLRScale        float64 `toml:"llr_scale"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Signing struct {
	KeyFile       string `toml:"key_file"`
	PublicKeyFile string `toml:"public_key_file"`
}

type Config struct {
	Profile         string      `toml:"profile"`
	Seed            uint64      `toml:"seed"`
	Workers         int         `toml:"workers"`
	MaxArchiveBytes int64       `toml:"max_archive_bytes"`
	Layers          Layers      `toml:"layers"`
	Compression     Compression `toml:"compression"`
	Decode          Decode      `toml:"decode"`
	Log             Log         `toml:"log"`
	Signing         Signing     `toml:"signing"`
}

func Default() Config {
	return Config{
		Profile: types.Conservative.String(),
		Seed:    42,
		Layers: Layers{
			Compression:     true,
			ErrorCorrection: true,
			Interleaving:    true,
		},
		Decode: Decode{VerifyIntegrity: true},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. An empty path or a missing file
// yields the defaults; exists tells the two apart.
func Load(path string) (cfg *Config, exists bool, err error) {
	c := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, false, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			decoder := toml.NewDecoder(file)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&c); err != nil {
				return nil, false, fmt.Errorf("parse config: %w", err)
			}
			exists = true
		}
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, false, err
	}
	return &c, exists, nil
}

func (c *Config) normalize() {
	c.Profile = strings.ToLower(strings.TrimSpace(c.Profile))
	c.Compression.Codec = strings.ToLower(strings.TrimSpace(c.Compression.Codec))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func (c *Config) ProfileID() (types.ProfileID, error) {
	return types.ParseProfile(c.Profile)
}

func (c *Config) Logger() (*slog.Logger, error) {
	return logging.New(logging.Options{Level: c.Log.Level, Format: c.Log.Format})
}

// EncodeOptions builds pipeline options, reading the signing key if one is
// configured.
func (c *Config) EncodeOptions(logger *slog.Logger) (types.EncodeOptions, error) {
	opts := types.EncodeOptions{
		Compression:     c.Layers.Compression,
		ErrorCorrection: c.Layers.ErrorCorrection,
		Interleaving:    c.Layers.Interleaving,
		Codec:           c.Compression.Codec,
		Level:           c.Compression.Level,
		Seed:            c.Seed,
		Workers:         c.Workers,
		MaxArchiveBytes: c.MaxArchiveBytes,
		Logger:          logger,
	}
	if c.Signing.KeyFile != "" {
		key, err := ReadPrivateKey(c.Signing.KeyFile)
		if err != nil {
			return opts, err
		}
		opts.SigningKey = key
	}
	return opts, nil
}

func (c *Config) DecodeOptions(logger *slog.Logger) (types.DecodeOptions, error) {
	opts := types.DecodeOptions{
		VerifyIntegrity: c.Decode.VerifyIntegrity,
		RepairErrors:    c.Decode.RepairErrors,
		Workers:         c.Workers,
		LLRScale:        c.Decode.LLRScale,
		Logger:          logger,
	}
	if c.Signing.PublicKeyFile != "" {
		pub, err := ReadPublicKey(c.Signing.PublicKeyFile)
		if err != nil {
			return opts, err
		}
		opts.PublicKey = pub
	}
	return opts, nil
}

func readHex(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", path, err)
	}
	return b, nil
}

// ReadPrivateKey accepts a hex encoded seed or full private key.
func ReadPrivateKey(path string) (ed25519.PrivateKey, error) {
	b, err := readHex(path)
	if err != nil {
		return nil, err
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	}
	return nil, fmt.Errorf("key %s: %d bytes is not an ed25519 seed or private key", path, len(b))
}

func ReadPublicKey(path string) (ed25519.PublicKey, error) {
	b, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key %s: %d bytes is not an ed25519 public key", path, len(b))
	}
	return ed25519.PublicKey(b), nil
}
