// Package capture drives the collaborators around a conversion: the
// instrumentation tool that records a slice, the post-processor that turns
// each slice into an assembly trace, and the resumption tool that loads the
// finished artifact.
package capture

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/cp"
	"github.com/cockroachdb/errors"

	"github.com/colorfulnotion/exslice/config"
	"github.com/colorfulnotion/exslice/log"
	"github.com/colorfulnotion/exslice/toolchain"
)

const (
	PinOutFile = "pinout"
	SliceFile  = "slice"
	ChecksFile = "checks"

	sliceTag = "SLICE"
)

// Request names one checkpoint of one recording group.
type Request struct {
	Group     string
	Clock     string
	Filter    TaintFilter
	OutputDir string
}

// ReplayDir is the recording directory of group under root.
func ReplayDir(root, group string) string {
	return filepath.Join(root, "rec_"+group)
}

type Capture struct {
	cfg    config.Capture
	req    Request
	runner toolchain.Runner
}

// New returns a Capture for req. An empty OutputDir defaults to the group's
// recording directory.
func New(cfg config.Config, r toolchain.Runner, req Request) *Capture {
	if req.OutputDir == "" {
		req.OutputDir = ReplayDir(cfg.Capture.ReplayRoot, req.Group)
	}
	return &Capture{cfg: cfg.Capture, req: req, runner: r}
}

func (c *Capture) OutputDir() string {
	return c.req.OutputDir
}

func (c *Capture) PinCommand() *toolchain.Command {
	args := []string{ReplayDir(c.cfg.ReplayRoot, c.req.Group), c.cfg.ToolSO}
	args = append(args, c.req.Filter.Args()...)
	args = append(args,
		"-recheck_group", c.req.Group,
		"-ckpt_clock", c.req.Clock,
		"-chk", filepath.Join(c.req.OutputDir, ChecksFile),
		"-group_dir", c.req.OutputDir,
	)
	return &toolchain.Command{Name: c.cfg.PinTool, Args: args}
}

func (c *Capture) ProcessCommand(sliceFile string) *toolchain.Command {
	return &toolchain.Command{Name: c.cfg.ProcessSlice, Args: []string{sliceFile}}
}

func (c *Capture) ResumeCommand() *toolchain.Command {
	return &toolchain.Command{Name: c.cfg.Resume, Args: []string{
		ReplayDir(c.cfg.ReplayRoot, c.req.Group),
		"--pthread", c.cfg.PthreadLibDir,
		"--ckpt_at=" + c.req.Clock,
	}}
}

// Run records the slice and post-processes every per-process slice file,
// returning the assembly traces in sorted order.
func (c *Capture) Run(ctx context.Context) ([]string, error) {
	dir := c.req.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", dir)
	}

	pinout := filepath.Join(dir, PinOutFile)
	log.Info(log.CaptureModule, "running instrumentation", "group", c.req.Group, "clock", c.req.Clock, "filter", c.req.Filter.Mode)
	if err := runTo(ctx, c.runner, c.PinCommand(), pinout); err != nil {
		return nil, errors.Wrap(err, "instrumentation")
	}
	n, err := FilterLines(pinout, filepath.Join(dir, SliceFile), sliceTag)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CaptureModule, "slice lines kept", "lines", n)

	slices, err := filepath.Glob(filepath.Join(dir, SliceFile+".*"))
	if err != nil {
		return nil, errors.Wrap(err, "list slice files")
	}
	sort.Strings(slices)

	var traces []string
	for _, s := range slices {
		out := filepath.Join(dir, TraceName(s))
		log.Info(log.CaptureModule, "processing slice", "slice", s, "trace", out)
		if err := runTo(ctx, c.runner, c.ProcessCommand(s), out); err != nil {
			return nil, errors.Wrapf(err, "process %s", s)
		}
		traces = append(traces, out)
	}
	return traces, nil
}

// Resume hands the finished checkpoint to the resumption tool.
func (c *Capture) Resume(ctx context.Context) error {
	log.Info(log.CaptureModule, "resuming", "group", c.req.Group, "clock", c.req.Clock)
	if _, err := c.runner.Run(ctx, c.ResumeCommand()); err != nil {
		return errors.Wrap(err, "resume")
	}
	return nil
}

// TraceName maps slice.<suffix> to exslice.<suffix>.asm.
func TraceName(sliceFile string) string {
	base := filepath.Base(sliceFile)
	return "exslice." + base[strings.LastIndex(base, ".")+1:] + ".asm"
}

func runTo(ctx context.Context, r toolchain.Runner, cmd *toolchain.Command, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	cmd.Stdout = f
	_, err = r.Run(ctx, cmd)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrapf(cerr, "close %s", path)
	}
	return err
}

// FilterLines copies the lines of src containing tag into dst and reports how
// many were kept.
func FilterLines(src, dst, tag string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", dst)
	}
	w := bufio.NewWriter(out)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		if !strings.Contains(sc.Text(), tag) {
			continue
		}
		w.WriteString(sc.Text())
		w.WriteByte('\n')
		n++
	}
	if err := sc.Err(); err != nil {
		out.Close()
		return n, errors.Wrapf(err, "read %s", src)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return n, errors.Wrapf(err, "write %s", dst)
	}
	return n, out.Close()
}

// Stage places an existing trace in dir for compile-only runs. A trace
// already inside dir is used where it is.
func Stage(trace, dir string) (string, error) {
	src, err := filepath.Abs(trace)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", trace)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", dir)
	}
	if filepath.Dir(src) == absDir {
		return trace, nil
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output dir %s", dir)
	}
	dst := filepath.Join(dir, filepath.Base(trace))
	if err := cp.CopyFile(dst, trace); err != nil {
		return "", errors.Wrapf(err, "stage %s", trace)
	}
	log.Debug(log.CaptureModule, "trace staged", "from", trace, "to", dst)
	return dst, nil
}
