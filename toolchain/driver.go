// Package toolchain turns emitted units into a loadable shared object: every
// unit is compiled to a relocatable object, then one link combines them with
// the prebuilt support object.
package toolchain

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/colorfulnotion/exslice/config"
	"github.com/colorfulnotion/exslice/glue"
	"github.com/colorfulnotion/exslice/log"
)

type Artifact struct {
	Path    string
	Objects []string
}

type Driver struct {
	tc     config.Toolchain
	jobs   int
	runner Runner
}

func NewDriver(cfg config.Config, r Runner) *Driver {
	jobs := cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}
	return &Driver{tc: cfg.Toolchain, jobs: jobs, runner: r}
}

// CompileCommand is the invocation compiling u.Source into u.Object.
func (d *Driver) CompileCommand(u *glue.Unit) *Command {
	args := make([]string, 0, len(d.tc.CFlags)+3)
	args = append(args, d.tc.CFlags...)
	args = append(args, u.Source, "-o", u.Object)
	return &Command{Name: d.tc.CC, Args: args}
}

// LinkCommand links the main object, the support object and the section
// objects, in that order, into out.
func (d *Driver) LinkCommand(units []*glue.Unit, out string) *Command {
	args := make([]string, 0, len(d.tc.LDFlags)+len(units)+3)
	args = append(args, d.tc.LDFlags...)
	args = append(args, units[0].Object, "-o", out, d.tc.SupportObject)
	for _, u := range units[1:] {
		args = append(args, u.Object)
	}
	return &Command{Name: d.tc.CC, Args: args}
}

func (d *Driver) compile(ctx context.Context, u *glue.Unit) error {
	if u.Source == "" || u.Object == "" {
		return errors.Newf("unit %s has no source or object path", u.Name)
	}
	start := time.Now()
	if _, err := d.runner.Run(ctx, d.CompileCommand(u)); err != nil {
		return errors.Wrapf(err, "compile %s", u.Source)
	}
	log.Debug(log.ToolchainModule, "unit compiled", "unit", u.Name, "object", u.Object, "elapsed", time.Since(start))
	return nil
}

// Compile builds every unit object. With jobs == 1 units are compiled one at
// a time in chain order and the first failure stops the rest.
func (d *Driver) Compile(ctx context.Context, units []*glue.Unit) error {
	if d.jobs == 1 {
		for _, u := range units {
			if err := d.compile(ctx, u); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.jobs)
	for _, u := range units {
		g.Go(func() error {
			return d.compile(gctx, u)
		})
	}
	return g.Wait()
}

// Link runs only after Compile returned nil for the same units.
func (d *Driver) Link(ctx context.Context, units []*glue.Unit, out string) (*Artifact, error) {
	if len(units) == 0 || !units[0].IsMain() {
		return nil, errors.New("link needs the main unit first")
	}
	cmd := d.LinkCommand(units, out)
	if _, err := d.runner.Run(ctx, cmd); err != nil {
		return nil, errors.Wrapf(err, "link %s", out)
	}
	objs := make([]string, 0, len(units)+1)
	objs = append(objs, units[0].Object, d.tc.SupportObject)
	for _, u := range units[1:] {
		objs = append(objs, u.Object)
	}
	log.Info(log.ToolchainModule, "artifact linked", "path", out, "objects", len(objs))
	return &Artifact{Path: out, Objects: objs}, nil
}

// Build compiles then links; the link is never issued if any compile failed.
func (d *Driver) Build(ctx context.Context, units []*glue.Unit, out string) (*Artifact, error) {
	if err := d.Compile(ctx, units); err != nil {
		return nil, err
	}
	return d.Link(ctx, units, out)
}
