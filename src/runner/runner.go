// Package runner executes external tools by argument vector, either on the
// local host or inside an Incus instance.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// Cmd describes one external tool invocation. Args never pass through a
// shell.
type Cmd struct {
	Path string
	Args []string
	// Env holds extra KEY=VALUE pairs layered over the runner's environment.
	Env []string
	// Stdin, when set, is streamed to the process.
	Stdin io.Reader
	// Stdout receives standard output; nil discards it.
	Stdout io.Writer
}

// String renders the command for logs. Environment values are not included.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner runs commands to completion.
type Runner interface {
	// Run blocks until the command exits. A non-zero exit is reported as
	// *ExitError.
	Run(ctx context.Context, cmd Cmd) error
	// Describe names where commands run, e.g. "local" or "incus:controller".
	Describe() string
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Cmd, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Output runs cmd and returns its standard output.
func Output(ctx context.Context, r Runner, cmd Cmd) (string, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	err := r.Run(ctx, cmd)
	return buf.String(), err
}

// limitedBuffer keeps the first max bytes written to it and drops the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string { return l.buf.String() }

const stderrLimit = 64 * 1024
