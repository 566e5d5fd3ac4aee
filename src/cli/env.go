package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"openstack-backup/src/config"
	"openstack-backup/src/database"
	"openstack-backup/src/logging"
	"openstack-backup/src/orchestrator"
	"openstack-backup/src/runner"
	"openstack-backup/src/service"
	"openstack-backup/src/snapshot"
)

var (
	newRunner         = runner.FromSpec
	newServiceBackend = service.NewBackend
)

// SetRunnerForTest replaces every external tool call with r. It returns a
// restore func.
func SetRunnerForTest(r runner.Runner) func() {
	prev := newRunner
	newRunner = func(string, *zap.Logger) (runner.Runner, error) { return r, nil }
	return func() { newRunner = prev }
}

// SetServiceBackendForTest replaces the service manager backend.
func SetServiceBackendForTest(b service.Backend) func() {
	prev := newServiceBackend
	newServiceBackend = func(string, runner.Runner) (service.Backend, error) { return b, nil }
	return func() { newServiceBackend = prev }
}

// env is what a command needs after flags and config are resolved.
type env struct {
	settings config.Settings
	log      *zap.Logger
	runner   runner.Runner
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadSettings binds the command's flags and resolves configuration.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	v := config.New()
	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		return config.Settings{}, fmt.Errorf("bind flags: %w", err)
	}
	return config.Load(v)
}

func loadEnv(cmd *cobra.Command, stderr io.Writer) (*env, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(s.LogLevel, stderr)
	if err != nil {
		return nil, err
	}
	r, err := newRunner(s.Exec, log)
	if err != nil {
		return nil, err
	}
	if s.ConfigFile != "" {
		log.Debug("loaded config", zap.String("path", s.ConfigFile))
	}
	return &env{settings: s, log: log, runner: r}, nil
}

func (e *env) database() *database.Client {
	c := database.NewClient(e.runner, e.log)
	c.MySQLPath = e.settings.MySQLBin
	c.DumpPath = e.settings.MySQLDumpBin
	return c
}

func (e *env) orchestrator(out io.Writer, progress io.Writer) (*orchestrator.Orchestrator, error) {
	backend, err := newServiceBackend(e.settings.ServiceManager, e.runner)
	if err != nil {
		return nil, err
	}
	db := e.database()
	db.Progress = progress
	return orchestrator.New(
		db,
		snapshot.New(e.settings.RootDir, e.log),
		service.NewController(backend, e.settings.Catalog, e.log),
		e.settings.Catalog,
		e.log,
		out,
	), nil
}
