package toolchain

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/colorfulnotion/exslice/exerrors"
	"github.com/colorfulnotion/exslice/log"
)

// Command is one external process invocation. When Stdout is set the process
// output goes there instead of being captured.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Stdout io.Writer
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner starts external processes. Implementations must return an error
// marked exerrors.ErrExternalToolFailure when the process cannot start or
// exits non-zero; the Result is still returned in the latter case.
type Runner interface {
	Run(ctx context.Context, cmd *Command) (*Result, error)
}

// ExecRunner runs commands with os/exec and blocks until they exit.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c *Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	log.Debug(log.ToolchainModule, "exec", "cmd", c.String())
	err := cmd.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		return res, exerrors.ExternalTool(err, stderr.String(), "%s", c.Name)
	}
	return res, nil
}
