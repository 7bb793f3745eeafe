package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/colorfulnotion/exslice/log"
)

const LockFile = ".exslice.lock"

// lockDirs takes the run lock of every output directory in sorted order.
// The returned func releases them.
func (c *Converter) lockDirs(paths []string) (func(), error) {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		d := c.dirFor(p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)

	var held []*flock.Flock
	release := func() {
		for _, fl := range held {
			if err := fl.Unlock(); err != nil {
				log.Warn(log.PipelineModule, "unlock failed", "lock", fl.Path(), "err", err)
			}
		}
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			release()
			return nil, errors.Wrapf(err, "create output dir %s", d)
		}
		fl := flock.New(filepath.Join(d, LockFile))
		ok, err := fl.TryLock()
		if err != nil {
			release()
			return nil, errors.Wrapf(err, "lock %s", d)
		}
		if !ok {
			release()
			return nil, errors.Newf("output dir %s is in use by another run", d)
		}
		held = append(held, fl)
	}
	return release, nil
}

// RunGroup converts every trace in paths, up to TraceJobs at once. Traces
// are independent: a failed conversion never stops or cancels another one.
// Results are in the order of paths, each carrying its own error; the
// returned error joins every per-trace failure.
func (c *Converter) RunGroup(ctx context.Context, paths []string) ([]*Result, error) {
	release, err := c.lockDirs(paths)
	if err != nil {
		return nil, err
	}
	defer release()

	results := make([]*Result, len(paths))
	var g errgroup.Group
	g.SetLimit(max(c.cfg.TraceJobs, 1))
	for i, p := range paths {
		g.Go(func() error {
			res, err := c.Convert(ctx, p)
			if err != nil {
				res.Err = errors.Wrapf(err, "convert %s", p)
				log.Error(log.PipelineModule, "conversion failed", "trace", p, "stage", res.Stage, "err", err)
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	log.Info(log.PipelineModule, "group converted", "traces", len(paths), "failed", len(errs))
	if len(errs) > 0 {
		return results, errors.Join(errs...)
	}
	return results, nil
}
