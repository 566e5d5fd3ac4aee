package runner_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openstack-backup/src/runner"
)

func TestLocal_StdoutAndStdin(t *testing.T) {
	r := runner.NewLocal(nil)
	var out bytes.Buffer
	err := r.Run(context.Background(), runner.Cmd{
		Path:   "sh",
		Args:   []string{"-c", "cat; echo \"$EXTRA\""},
		Env:    []string{"EXTRA=hello"},
		Stdin:  strings.NewReader("from-stdin\n"),
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "from-stdin\nhello\n", out.String())
}

func TestLocal_NonZeroExit(t *testing.T) {
	r := runner.NewLocal(nil)
	err := r.Run(context.Background(), runner.Cmd{Path: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	var exitErr *runner.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Error(), "boom")
}

func TestLocal_MissingBinary(t *testing.T) {
	r := runner.NewLocal(nil)
	err := r.Run(context.Background(), runner.Cmd{Path: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	var exitErr *runner.ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestOutput(t *testing.T) {
	out, err := runner.Output(context.Background(), runner.NewLocal(nil), runner.Cmd{Path: "echo", Args: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a b\n", out)
}

func TestFake_RecordsCalls(t *testing.T) {
	f := runner.NewFake(func(c runner.Call) runner.FakeResult {
		if c.Path == "fail" {
			return runner.FakeResult{Code: 1, Stderr: "nope"}
		}
		return runner.FakeResult{Stdout: "ok"}
	})
	out, err := runner.Output(context.Background(), f, runner.Cmd{Path: "tool", Args: []string{"x"}, Stdin: strings.NewReader("in")})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	err = f.Run(context.Background(), runner.Cmd{Path: "fail"})
	var exitErr *runner.ExitError
	require.True(t, errors.As(err, &exitErr))

	calls := f.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "in", calls[0].Stdin)
	assert.Equal(t, []string{"tool x", "fail"}, f.Lines())
}

func TestParseExec(t *testing.T) {
	kind, inst, err := runner.ParseExec("incus:controller")
	require.NoError(t, err)
	assert.Equal(t, "incus", kind)
	assert.Equal(t, "controller", inst)

	kind, _, err = runner.ParseExec("")
	require.NoError(t, err)
	assert.Equal(t, "local", kind)

	for _, bad := range []string{"incus:", "ssh:host", "docker"} {
		_, _, err := runner.ParseExec(bad)
		assert.Error(t, err, bad)
	}
}
