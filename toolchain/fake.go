package toolchain

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/colorfulnotion/exslice/exerrors"
)

// FakeRunner records commands instead of running them. Fail, when set, is
// consulted for every command; a non-empty return makes that command exit 1
// with the string as stderr. Stdout, when set, produces the output written to
// Command.Stdout or returned in Result.Stdout.
type FakeRunner struct {
	mu       sync.Mutex
	commands []*Command

	Fail   func(*Command) string
	Stdout func(*Command) string
}

func (f *FakeRunner) Run(ctx context.Context, c *Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.commands = append(f.commands, c)
	f.mu.Unlock()

	if f.Fail != nil {
		if stderr := f.Fail(c); stderr != "" {
			res := &Result{ExitCode: 1, Stderr: []byte(stderr)}
			return res, exerrors.ExternalTool(errors.New("exit status 1"), stderr, "%s", c.Name)
		}
	}
	res := &Result{}
	if f.Stdout != nil {
		out := f.Stdout(c)
		if c.Stdout != nil {
			if _, err := c.Stdout.Write([]byte(out)); err != nil {
				return nil, err
			}
		} else {
			res.Stdout = []byte(out)
		}
	}
	return res, nil
}

// Commands returns the recorded commands in call order.
func (f *FakeRunner) Commands() []*Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// Lines returns every recorded command rendered as a shell line.
func (f *FakeRunner) Lines() []string {
	var out []string
	for _, c := range f.Commands() {
		out = append(out, c.String())
	}
	return out
}

// Count returns how many recorded commands contain substr.
func (f *FakeRunner) Count(substr string) int {
	n := 0
	for _, l := range f.Lines() {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}
