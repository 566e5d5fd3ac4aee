package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Local runs commands as child processes of this program.
type Local struct {
	Log *zap.Logger
}

// NewLocal returns a Local runner. A nil logger disables logging.
func NewLocal(log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{Log: log}
}

func (l *Local) Describe() string { return "local" }

func (l *Local) Run(ctx context.Context, c Cmd) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		cmd.Stdout = io.Discard
	}
	stderr := &limitedBuffer{max: stderrLimit}
	cmd.Stderr = stderr

	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Debug("running command", zap.String("cmd", c.String()))
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return &ExitError{Cmd: c.String(), Code: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", c.Path, ctxErr)
	}
	return fmt.Errorf("%s: %w", c.Path, err)
}
