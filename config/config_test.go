package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/exslice/exerrors"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exslice.yaml")
	body := `
threshold: 1000
instrument_jumps: false
toolchain:
  cc: i686-linux-gnu-gcc
  support_object: /opt/recheck/recheck_support.o
markers:
  split_safe: "[SPLIT]"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Threshold)
	assert.False(t, cfg.InstrumentJumps)
	assert.Equal(t, "i686-linux-gnu-gcc", cfg.Toolchain.CC)
	assert.Equal(t, "/opt/recheck/recheck_support.o", cfg.Toolchain.SupportObject)
	assert.Equal(t, "[SPLIT]", cfg.Markers.SplitSafe)

	// untouched keys keep their defaults
	assert.Equal(t, DefaultGuardCost, cfg.GuardCost)
	assert.Equal(t, "/*slice begins*/", cfg.Markers.SliceStart)
	assert.Equal(t, []string{"-masm=intel", "-c", "-fpic", "-Wall", "-Werror"}, cfg.Toolchain.CFlags)
}

func TestLoadWithoutPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threshold", func(c *Config) { c.Threshold = -1 }},
		{"zero guard cost", func(c *Config) { c.GuardCost = 0 }},
		{"zero jobs", func(c *Config) { c.Jobs = 0 }},
		{"same flavor markers", func(c *Config) { c.Markers.IndexDispatch = c.Markers.IndirectJump }},
		{"empty epilogue marker", func(c *Config) { c.Markers.Epilogue = "" }},
		{"no support object", func(c *Config) { c.Toolchain.SupportObject = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, exerrors.ErrConfigConflict))
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: [1, 2"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exerrors.ErrConfigConflict))
}
