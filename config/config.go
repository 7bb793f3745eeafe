// Package config holds the knobs of a slice-to-executable conversion. Values
// come from built-in defaults, optionally overridden by a YAML file, then by
// command line flags.
package config

import (
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/colorfulnotion/exslice/exerrors"
)

const (
	// DefaultThreshold is the cost past which a section is closed at the next
	// split-safe line.
	DefaultThreshold = 2500000
	// DefaultGuardCost is the cost of an instrumented line: the number of
	// lines its guard sequence occupies.
	DefaultGuardCost = 5

	DefaultReplayRoot = "/replay_logdb"
)

type Markers struct {
	SliceStart    string `yaml:"slice_start"`
	Epilogue      string `yaml:"epilogue"`
	IndirectJump  string `yaml:"indirect_jump"`
	IndexDispatch string `yaml:"index_dispatch"`
	SplitSafe     string `yaml:"split_safe"`
}

type Toolchain struct {
	CC            string   `yaml:"cc"`
	CFlags        []string `yaml:"cflags"`
	LDFlags       []string `yaml:"ldflags"`
	SupportObject string   `yaml:"support_object"`
}

type Capture struct {
	PinTool       string `yaml:"pintool"`
	ToolSO        string `yaml:"tool_so"`
	ProcessSlice  string `yaml:"process_slice"`
	Resume        string `yaml:"resume"`
	PthreadLibDir string `yaml:"pthread_libdir"`
	ReplayRoot    string `yaml:"replay_root"`
}

type Config struct {
	Threshold       int       `yaml:"threshold"`
	GuardCost       int       `yaml:"guard_cost"`
	StrictSplit     bool      `yaml:"strict_split"`
	InstrumentJumps bool      `yaml:"instrument_jumps"`
	Jobs            int       `yaml:"jobs"`
	TraceJobs       int       `yaml:"trace_jobs"`
	Verify          bool      `yaml:"verify"`
	Markers         Markers   `yaml:"markers"`
	Toolchain       Toolchain `yaml:"toolchain"`
	Capture         Capture   `yaml:"capture"`
}

// Default returns the configuration the original checkpoint scripts used.
func Default() Config {
	return Config{
		Threshold:       DefaultThreshold,
		GuardCost:       DefaultGuardCost,
		InstrumentJumps: true,
		Jobs:            1,
		TraceJobs:       1,
		Markers: Markers{
			SliceStart:    "/*slice begins*/",
			Epilogue:      "/* restoring address and registers */",
			IndirectJump:  " jump_diverge",
			IndexDispatch: " index_diverge",
			SplitSafe:     "[ORIGINAL_SLICE]",
		},
		Toolchain: Toolchain{
			CC:            "gcc",
			CFlags:        []string{"-masm=intel", "-c", "-fpic", "-Wall", "-Werror"},
			LDFlags:       []string{"-shared"},
			SupportObject: "recheck_support.o",
		},
		Capture: Capture{
			PinTool:       "./runpintool",
			ToolSO:        "../dift/obj-ia32/linkage_offset.so",
			ProcessSlice:  "./process_slice",
			Resume:        "./resume",
			PthreadLibDir: "../eglibc-2.15/prefix/lib/",
			ReplayRoot:    DefaultReplayRoot,
		},
	}
}

// Load reads path on top of the defaults. Keys absent from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Mark(errors.Wrapf(err, "parse config %s", path), exerrors.ErrConfigConflict)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no conversion can run with.
func (c *Config) Validate() error {
	if c.Threshold < 0 {
		return exerrors.ConfigConflict("threshold must not be negative, got %d", c.Threshold)
	}
	if c.GuardCost < 1 {
		return exerrors.ConfigConflict("guard_cost must be at least 1, got %d", c.GuardCost)
	}
	if c.Jobs < 1 || c.TraceJobs < 1 {
		return exerrors.ConfigConflict("jobs and trace_jobs must be at least 1 (jobs=%d trace_jobs=%d)", c.Jobs, c.TraceJobs)
	}
	if c.Jobs > runtime.NumCPU() {
		c.Jobs = runtime.NumCPU()
	}
	m := c.Markers
	if m.SliceStart == "" || m.Epilogue == "" || m.IndirectJump == "" || m.IndexDispatch == "" || m.SplitSafe == "" {
		return exerrors.ConfigConflict("all trace markers must be set")
	}
	if m.IndirectJump == m.IndexDispatch {
		return exerrors.ConfigConflict("indirect_jump and index_dispatch markers must differ (%q)", m.IndirectJump)
	}
	if c.Toolchain.CC == "" {
		return exerrors.ConfigConflict("toolchain.cc must be set")
	}
	if c.Toolchain.SupportObject == "" {
		return exerrors.ConfigConflict("toolchain.support_object must be set")
	}
	return nil
}
