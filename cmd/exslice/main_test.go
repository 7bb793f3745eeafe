package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/exslice/config"
)

func loadWithFlags(t *testing.T, yaml string, args ...string) config.Config {
	t.Helper()
	p := filepath.Join(t.TempDir(), "exslice.yaml")
	require.NoError(t, os.WriteFile(p, []byte(yaml), 0o644))
	cfg, err := config.Load(p)
	require.NoError(t, err)

	g := &globalFlags{}
	cmd := &cobra.Command{Use: "run"}
	addBuildFlags(cmd, g)
	require.NoError(t, cmd.Flags().Parse(args))
	g.applyFlags(&cfg, cmd.Flags())
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	const file = "trace_jobs: 3\nverify: true\n"

	cfg := loadWithFlags(t, file, "--trace-jobs=2")
	assert.Equal(t, 2, cfg.TraceJobs, "a set flag replaces the file value")
	assert.True(t, cfg.Verify, "a flag left at its default keeps the file value")
	assert.Equal(t, 1, cfg.Jobs)

	cfg = loadWithFlags(t, file)
	assert.Equal(t, 3, cfg.TraceJobs)
	assert.True(t, cfg.Verify)

	cfg = loadWithFlags(t, file, "--verify=false")
	assert.False(t, cfg.Verify, "an explicit false still overrides")
	assert.Equal(t, 3, cfg.TraceJobs)
}

func TestFlagsWithoutConfigFile(t *testing.T) {
	g := &globalFlags{}
	cmd := &cobra.Command{Use: "compile"}
	addBuildFlags(cmd, g)
	require.NoError(t, cmd.Flags().Parse([]string{"--trace-jobs", "4", "--verify"}))

	cfg := config.Default()
	g.applyFlags(&cfg, cmd.Flags())
	assert.Equal(t, 4, cfg.TraceJobs)
	assert.True(t, cfg.Verify)
	assert.Equal(t, 1, cfg.Jobs)
}
