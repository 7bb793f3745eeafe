// Package pipeline converts captured traces into loadable artifacts. One
// Converter call handles one trace end to end; RunGroup runs the traces of a
// recording group as independent conversions.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/colorfulnotion/exslice/asm"
	"github.com/colorfulnotion/exslice/config"
	"github.com/colorfulnotion/exslice/glue"
	"github.com/colorfulnotion/exslice/inspect"
	"github.com/colorfulnotion/exslice/instrument"
	"github.com/colorfulnotion/exslice/log"
	"github.com/colorfulnotion/exslice/partition"
	"github.com/colorfulnotion/exslice/toolchain"
	"github.com/colorfulnotion/exslice/trace"
)

// Stage is the last step a conversion completed.
type Stage int

const (
	Pending Stage = iota
	Partitioned
	Instrumented
	Linked // units emitted and written
	Compiled
	Artifact
)

func (s Stage) String() string {
	switch s {
	case Partitioned:
		return "partitioned"
	case Instrumented:
		return "instrumented"
	case Linked:
		return "linked"
	case Compiled:
		return "compiled"
	case Artifact:
		return "artifact"
	default:
		return "pending"
	}
}

type Result struct {
	Trace    string
	PID      string
	Stage    Stage
	Plan     *partition.Plan
	Units    []*glue.Unit
	Sites    []instrument.Site
	Artifact *toolchain.Artifact
	Elapsed  time.Duration
	Err      error // set by RunGroup when the conversion failed
}

type Converter struct {
	cfg    config.Config
	runner toolchain.Runner
	outDir string
}

// NewConverter writes every file into outDir; an empty outDir means next to
// each trace.
func NewConverter(cfg config.Config, r toolchain.Runner, outDir string) *Converter {
	return &Converter{cfg: cfg, runner: r, outDir: outDir}
}

// RecordPID extracts the recorded process id from exslice.<pid>.asm.
func RecordPID(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".asm")
	return base[strings.LastIndex(base, ".")+1:]
}

// SourceName is the C file of the unit with the given ordinal; 0 is main.
func SourceName(pid string, ordinal int) string {
	if ordinal == 0 {
		return fmt.Sprintf("exslice.%s.c", pid)
	}
	return fmt.Sprintf("exslice%d.%s.c", ordinal, pid)
}

func ArtifactName(pid string) string {
	return fmt.Sprintf("exslice.%s.so", pid)
}

func (c *Converter) dirFor(path string) string {
	if c.outDir != "" {
		return c.outDir
	}
	return filepath.Dir(path)
}

// Plan runs the in-memory stages: read, partition, instrument and link. No
// file is written and no process is started.
func (c *Converter) Plan(path string) (*Result, error) {
	res := &Result{Trace: path, PID: RecordPID(path)}

	doc, err := trace.ReadFile(path, c.cfg.Markers)
	if err != nil {
		return res, err
	}

	in := instrument.New(c.cfg)
	plan, err := partition.Partition(doc, partition.Options{
		Threshold: c.cfg.Threshold,
		Cost:      partition.WeightedCost(in.Guards, c.cfg.GuardCost),
		Strict:    c.cfg.StrictSplit,
	})
	if err != nil {
		return res, err
	}
	res.Plan, res.Stage = plan, Partitioned

	bodies := in.Instrument(plan)
	res.Sites, res.Stage = in.Sites(), Instrumented

	units, err := glue.Link(plan, bodies, in)
	if err != nil {
		return res, errors.Wrap(err, "emit units")
	}
	res.Units = units
	return res, nil
}

// Convert runs every stage for one trace. The returned Result reports the
// last completed stage even when err is not nil.
func (c *Converter) Convert(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	res, err := c.Plan(path)
	if err != nil {
		return res, err
	}

	dir := c.dirFor(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, errors.Wrapf(err, "create output dir %s", dir)
	}
	for _, u := range res.Units {
		u.Source = filepath.Join(dir, SourceName(res.PID, u.Ordinal))
		u.Object = strings.TrimSuffix(u.Source, ".c") + ".o"
		if err := asm.WriteFile(u.Source, u.Program); err != nil {
			return res, err
		}
	}
	res.Stage = Linked
	log.Info(log.PipelineModule, "units written", "trace", path, "units", len(res.Units), "sites", len(res.Sites))

	drv := toolchain.NewDriver(c.cfg, c.runner)
	if err := drv.Compile(ctx, res.Units); err != nil {
		return res, errors.Wrap(err, "compile units")
	}
	res.Stage = Compiled

	art, err := drv.Link(ctx, res.Units, filepath.Join(dir, ArtifactName(res.PID)))
	if err != nil {
		return res, errors.Wrap(err, "link artifact")
	}
	if c.cfg.Verify {
		if err := c.verify(art.Path, len(res.Plan.Sections)); err != nil {
			return res, err
		}
	}
	res.Artifact, res.Stage = art, Artifact
	res.Elapsed = time.Since(start)
	log.Info(log.PipelineModule, "artifact ready", "trace", path, "artifact", art.Path, "sections", len(res.Plan.Sections), "elapsed", res.Elapsed)
	return res, nil
}

func (c *Converter) verify(path string, sections int) error {
	syms, err := inspect.Symbols(path)
	if err != nil {
		return err
	}
	jump := strings.TrimSpace(c.cfg.Markers.IndirectJump)
	index := strings.TrimSpace(c.cfg.Markers.IndexDispatch)
	return inspect.CheckArtifact(syms, sections, jump, index)
}
