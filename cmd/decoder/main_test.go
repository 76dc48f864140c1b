package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alexhalogen/crystalarchive/internal/decoding"
	"alexhalogen/crystalarchive/internal/encoding"
	"alexhalogen/crystalarchive/internal/filehelper"
	"alexhalogen/crystalarchive/internal/manifest"
	"alexhalogen/crystalarchive/internal/types"
)

var sample = []types.Entry{
	{Path: "a.txt", Data: []byte("0123456789"), Mode: 0o644},
	{Path: "docs/b.md", Data: bytes.Repeat([]byte("crystal "), 400), Mode: 0o644},
}

func makeArchive(t *testing.T) (string, *manifest.Manifest) {
	t.Helper()
	s, m, err := encoding.Encode(context.Background(), sample, types.Conservative, types.DefaultEncodeOptions())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "archive.cvx")
	require.NoError(t, filehelper.SaveArchive(path, s, m))
	return path, m
}

func requireRestored(t *testing.T, dir string) {
	t.Helper()
	for _, e := range sample {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(e.Path)))
		require.NoError(t, err)
		assert.Equal(t, e.Data, got, e.Path)
	}
}

func TestArgs(t *testing.T) {
	path, _ := makeArchive(t)
	out := t.TempDir()

	tests := []struct {
		name string
		args []string
		ok   bool
	}{
		{"no archive", []string{"-o", out}, false},
		{"no output", []string{path}, false},
		{"missing archive", []string{"-o", out, path + ".missing"}, false},
		{"malformed damage", []string{"--data-damage", "[1,x]", "-o", out, path}, false},
		{"damage out of range", []string{"--ecc-damage", "[99]", "-o", out, path}, false},
		{"scan", []string{"--scan", path}, true},
		{"decode", []string{"-o", out, path}, true},
		{"no verify", []string{"--no-verify", "-o", out, path}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.args, &bytes.Buffer{})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDecodeRestoresFolder(t *testing.T) {
	path, _ := makeArchive(t)
	out := filepath.Join(t.TempDir(), "restored")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-o", out, path}, &stdout))
	requireRestored(t, out)
	assert.Contains(t, stdout.String(), "docs/b.md")
	assert.Contains(t, stdout.String(), string(types.FileOK))
}

func TestDecodeWithKnownDamage(t *testing.T) {
	path, _ := makeArchive(t)
	out := t.TempDir()

	require.NoError(t, run(context.Background(), []string{"--data-damage", "[0]", "-o", out, path}, &bytes.Buffer{}))
	requireRestored(t, out)
}

func TestScanReportsDamage(t *testing.T) {
	path, _ := makeArchive(t)

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--scan", path}, &stdout))
	assert.Contains(t, stdout.String(), "data damage: []")
	assert.Contains(t, stdout.String(), "ecc damage: []")

	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"--scan", "--data-damage", "[0]", path}, &stdout))
	assert.Contains(t, stdout.String(), "data damage: [0]")
	assert.Contains(t, stdout.String(), string(decoding.ShardErased))
}

func TestExternalManifest(t *testing.T) {
	path, m := makeArchive(t)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "manifest.json")
	require.NoError(t, filehelper.SaveManifest(jsonPath, m))

	out := filepath.Join(dir, "restored")
	require.NoError(t, run(context.Background(), []string{"--manifest", jsonPath, "-o", out, path}, &bytes.Buffer{}))
	requireRestored(t, out)

	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o644))
	assert.ErrorIs(t, run(context.Background(), []string{"--manifest", jsonPath, "-o", out, path}, &bytes.Buffer{}),
		types.ErrInvalidManifest)
}

func TestHelpNamesKeyFile(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--help"}, &stdout))
	assert.Contains(t, stdout.String(), "file holding the hex ed25519 public key")
}
