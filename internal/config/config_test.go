package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alexhalogen/crystalarchive/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSampleMatchesDefaults(t *testing.T) {
	var c Config
	require.NoError(t, toml.Unmarshal([]byte(Sample()), &c))
	assert.Equal(t, Default(), c)
}

func TestLoadDefaults(t *testing.T) {
	c, exists, err := Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, Default(), *c)

	c, exists, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, Default(), *c)
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, "config.toml", `
profile = "B"
seed = 7
workers = 3

[layers]
interleaving = false

[compression]
codec = "LZ4"
level = 4

[decode]
repair_errors = true
llr_scale = 6.5

[log]
format = "json"
`)
	c, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)

	id, err := c.ProfileID()
	require.NoError(t, err)
	assert.Equal(t, types.Aggressive, id)
	assert.Equal(t, "lz4", c.Compression.Codec)

	opts, err := c.EncodeOptions(nil)
	require.NoError(t, err)
	assert.True(t, opts.Compression)
	assert.True(t, opts.ErrorCorrection)
	assert.False(t, opts.Interleaving)
	assert.Equal(t, uint64(7), opts.Seed)
	assert.Equal(t, 3, opts.Workers)
	assert.Nil(t, opts.SigningKey)

	dopts, err := c.DecodeOptions(nil)
	require.NoError(t, err)
	assert.True(t, dopts.VerifyIntegrity)
	assert.True(t, dopts.RepairErrors)
	assert.Equal(t, 6.5, dopts.LLRScale)

	logger, err := c.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":   `colour = "blue"`,
		"bad profile":   `profile = "reckless"`,
		"bad codec":     "[compression]\ncodec = \"brotli\"",
		"zstd level":    "[compression]\ncodec = \"zstd\"\nlevel = 30",
		"workers":       `workers = -1`,
		"repair alone":  "[decode]\nverify_integrity = false\nrepair_errors = true",
		"log format":    "[log]\nformat = \"xml\"",
		"not toml":      `profile = `,
		"negative size": `max_archive_bytes = -5`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(writeFile(t, "config.toml", content))
			assert.Error(t, err)
		})
	}
}

func TestKeys(t *testing.T) {
	pub, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	seedFile := writeFile(t, "seed.hex", hex.EncodeToString(key.Seed())+"\n")
	got, err := ReadPrivateKey(seedFile)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	fullFile := writeFile(t, "key.hex", hex.EncodeToString(key))
	got, err = ReadPrivateKey(fullFile)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	pubFile := writeFile(t, "pub.hex", hex.EncodeToString(pub))
	c := Default()
	c.Signing = Signing{KeyFile: seedFile, PublicKeyFile: pubFile}
	opts, err := c.EncodeOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, key, opts.SigningKey)
	dopts, err := c.DecodeOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, pub, dopts.PublicKey)

	_, err = ReadPrivateKey(writeFile(t, "short.hex", "abcd"))
	assert.Error(t, err)
	_, err = ReadPublicKey(writeFile(t, "bad.hex", "zz"))
	assert.Error(t, err)
	_, err = ReadPublicKey(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}
