package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), bytes.Repeat([]byte("simulate "), 300), 0o644))
	return dir
}

func TestSimulateFolder(t *testing.T) {
	folder := makeFolder(t)

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-n", "3", "--damage", "tile=0.05,tilesize=64", folder}, &stdout))
	assert.Contains(t, stdout.String(), "Recovery")
	assert.Contains(t, stdout.String(), "0.050")
}

func TestSimulateSweepWritesMetrics(t *testing.T) {
	folder := makeFolder(t)
	metrics := filepath.Join(t.TempDir(), "sim.prom")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(),
		[]string{"-n", "2", "--sweep", "[0,0.1]", "--metrics", metrics, "-p", "aggressive", folder}, &stdout))
	assert.Contains(t, stdout.String(), "0.000")
	assert.Contains(t, stdout.String(), "0.100")

	body, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(body), "crystal_simulate_trials_total")
}

func TestSimulateArgs(t *testing.T) {
	folder := makeFolder(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"zero trials", []string{"-n", "0", folder}},
		{"bad model", []string{"--damage", "melt=1", folder}},
		{"bad fraction", []string{"--damage", "tile=1.5", folder}},
		{"bad sweep", []string{"--sweep", "0.1,0.2", folder}},
		{"bad profile", []string{"-p", "fastest", folder}},
		{"missing input", []string{filepath.Join(folder, "missing.cvx")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, run(context.Background(), tc.args, &bytes.Buffer{}))
		})
	}
}
