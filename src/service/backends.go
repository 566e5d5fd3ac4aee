package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"openstack-backup/src/runner"
)

// Manager names accepted by NewBackend.
const (
	ManagerService   = "service"
	ManagerSystemctl = "systemctl"
	ManagerDBus      = "dbus"
)

// CommandBackend shells out to service(8) or systemctl(1) through a runner.
type CommandBackend struct {
	Runner runner.Runner
	// Tool is "service" or "systemctl".
	Tool string
}

func (b *CommandBackend) Name() string { return b.Tool }

func (b *CommandBackend) Control(ctx context.Context, action Action, unit string) error {
	var args []string
	switch b.Tool {
	case ManagerSystemctl:
		args = []string{string(action), unit}
	default:
		args = []string{unit, string(action)}
	}
	tool := b.Tool
	if tool == "" {
		tool = ManagerService
	}
	return b.Runner.Run(ctx, runner.Cmd{Path: tool, Args: args})
}

// unitConn is the subset of *dbus.Conn used here.
type unitConn interface {
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

// DBusBackend talks to systemd over D-Bus and waits for each job result.
type DBusBackend struct {
	newConn func(ctx context.Context) (unitConn, error)
}

// NewDBusBackend returns a backend connected to the system bus on demand.
func NewDBusBackend() *DBusBackend {
	return &DBusBackend{newConn: func(ctx context.Context) (unitConn, error) {
		return dbus.NewWithContext(ctx)
	}}
}

func (b *DBusBackend) Name() string { return ManagerDBus }

func (b *DBusBackend) Control(ctx context.Context, action Action, unit string) error {
	conn, err := b.newConn(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	name := unitName(unit)
	statusCh := make(chan string, 1)
	switch action {
	case Start:
		_, err = conn.StartUnitContext(ctx, name, "replace", statusCh)
	case Stop:
		_, err = conn.StopUnitContext(ctx, name, "replace", statusCh)
	default:
		return fmt.Errorf("unknown service action %q", action)
	}
	if err != nil {
		return fmt.Errorf("dbus %s request failed: %w", action, err)
	}
	select {
	case status := <-statusCh:
		if status != "done" {
			return fmt.Errorf("failed to %s %s (job result %q)", action, name, status)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unitName adds the .service suffix systemd expects for bare names.
func unitName(unit string) string {
	if strings.Contains(unit, ".") {
		return unit
	}
	return unit + ".service"
}

// NewBackend returns the backend for a manager name.
func NewBackend(manager string, r runner.Runner) (Backend, error) {
	switch manager {
	case "", ManagerService:
		return &CommandBackend{Runner: r, Tool: ManagerService}, nil
	case ManagerSystemctl:
		return &CommandBackend{Runner: r, Tool: ManagerSystemctl}, nil
	case ManagerDBus:
		return NewDBusBackend(), nil
	}
	return nil, fmt.Errorf("unknown service manager %q (want service, systemctl or dbus)", manager)
}

// Probe checks that the service manager is reachable and describes it.
func Probe(ctx context.Context, manager string, r runner.Runner) (string, error) {
	switch manager {
	case ManagerDBus:
		conn, err := dbus.NewWithContext(ctx)
		if err != nil {
			return "", fmt.Errorf("connect to systemd: %w", err)
		}
		conn.Close()
		return "systemd D-Bus reachable", nil
	case "", ManagerService, ManagerSystemctl:
		tool := manager
		if tool == "" {
			tool = ManagerService
		}
		out, err := runner.Output(ctx, r, runner.Cmd{Path: tool, Args: []string{"--version"}})
		if err != nil {
			return "", err
		}
		first, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
		return first, nil
	}
	return "", fmt.Errorf("unknown service manager %q", manager)
}
