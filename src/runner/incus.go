package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	incuscli "github.com/lxc/incus/client"
	"github.com/lxc/incus/shared/api"
	"go.uber.org/zap"
)

// execServer is the part of the Incus client the runner needs.
type execServer interface {
	ExecInstance(instanceName string, exec api.InstanceExecPost, args *incuscli.InstanceExecArgs) (incuscli.Operation, error)
}

// Incus runs commands inside an Incus instance, for deployments where the
// database and services live in a container on the target host.
type Incus struct {
	Instance string
	Log      *zap.Logger

	server execServer
}

// ConnectIncus connects to the local Incus daemon over its UNIX socket.
func ConnectIncus(instance string, log *zap.Logger) (*Incus, error) {
	if instance == "" {
		return nil, fmt.Errorf("incus instance name must not be empty")
	}
	c, err := incuscli.ConnectIncusUnix("", nil)
	if err != nil {
		return nil, fmt.Errorf("connect incus: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Incus{Instance: instance, Log: log, server: c}, nil
}

func (r *Incus) Describe() string { return "incus:" + r.Instance }

func (r *Incus) Run(ctx context.Context, c Cmd) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := map[string]string{}
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	req := api.InstanceExecPost{
		Command:     append([]string{c.Path}, c.Args...),
		WaitForWS:   true,
		Interactive: false,
		Environment: env,
	}

	var in io.Reader = bytes.NewReader(nil)
	if c.Stdin != nil {
		in = c.Stdin
	}
	var out io.Writer = io.Discard
	if c.Stdout != nil {
		out = c.Stdout
	}
	stderr := &limitedBuffer{max: stderrLimit}
	stdin := io.NopCloser(in)
	stdoutW := nopWriteCloser{out}
	stderrW := nopWriteCloser{stderr}
	args := incuscli.InstanceExecArgs{
		Stdin:    stdin,
		Stdout:   stdoutW,
		Stderr:   stderrW,
		DataDone: make(chan bool),
	}

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Debug("running command in instance", zap.String("instance", r.Instance), zap.String("cmd", c.String()))
	op, err := r.server.ExecInstance(r.Instance, req, &args)
	if err != nil {
		return fmt.Errorf("incus exec %s: %w", c.Path, err)
	}
	if err := op.Wait(); err != nil {
		return fmt.Errorf("incus exec %s: %w", c.Path, err)
	}
	<-args.DataDone

	code := exitCode(op.Get().Metadata)
	if code != 0 {
		return &ExitError{Cmd: c.String(), Code: code, Stderr: stderr.String()}
	}
	return nil
}

func exitCode(md map[string]any) int {
	switch v := md["return"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return -1
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
