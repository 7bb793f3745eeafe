package toolchain

import (
	"bytes"
	"context"
	"os/exec"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/exslice/exerrors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	requireShell(t)
	res, err := ExecRunner{}.Run(context.Background(), &Command{Name: "sh", Args: []string{"-c", "echo slice; echo warn >&2"}})
	require.NoError(t, err)
	assert.Equal(t, "slice\n", string(res.Stdout))
	assert.Equal(t, "warn\n", string(res.Stderr))
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecRunnerRedirectsStdout(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	res, err := ExecRunner{}.Run(context.Background(), &Command{Name: "sh", Args: []string{"-c", "echo SLICE 1"}, Stdout: &out})
	require.NoError(t, err)
	assert.Equal(t, "SLICE 1\n", out.String())
	assert.Empty(t, res.Stdout)
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	requireShell(t)
	res, err := ExecRunner{}.Run(context.Background(), &Command{Name: "sh", Args: []string{"-c", "echo bad operand >&2; exit 3"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exerrors.ErrExternalToolFailure))
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, exerrors.Details(err), "bad operand")
}

func TestExecRunnerMissingBinary(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), &Command{Name: "/nonexistent/exslice-cc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exerrors.ErrExternalToolFailure))
	assert.Equal(t, -1, res.ExitCode)
}
