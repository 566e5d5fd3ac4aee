package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openstack-backup/src/config"
)

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("db_user", "root", "")
	fs.String("db_host", "127.0.0.1", "")
	fs.String("service-manager", "service", "")
	fs.String("root-dir", "/", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	v := config.New()
	require.NoError(t, config.BindFlags(flags(t, "--config", writeConfig(t, "")), v))
	s, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, "root", s.DBUser)
	assert.Equal(t, "127.0.0.1", s.DBHost)
	assert.Equal(t, ".", s.ToDir)
	assert.Equal(t, "/", s.RootDir)
	assert.Equal(t, "local", s.Exec)
	assert.Equal(t, "mysqldump", s.MySQLDumpBin)
	assert.Len(t, s.Catalog, 5)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "db_host: 10.0.0.1\ndb_user: backup\nto_dir: /srv/backups\n")
	t.Setenv("OSBACKUP_DB_USER", "envuser")
	t.Setenv("OSBACKUP_TO_DIR", "/from/env")

	v := config.New()
	require.NoError(t, config.BindFlags(flags(t, "--config", path, "--db_user", "flaguser", "--root-dir", "/mnt/ctl"), v))
	s, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, "flaguser", s.DBUser)  // flag beats env and file
	assert.Equal(t, "/from/env", s.ToDir)  // env beats file
	assert.Equal(t, "10.0.0.1", s.DBHost)  // file beats default
	assert.Equal(t, "/mnt/ctl", s.RootDir) // dashed flag maps to root_dir
	assert.Equal(t, path, s.ConfigFile)
}

func TestLoad_ServiceOverrides(t *testing.T) {
	path := writeConfig(t, `
services:
  nova:
    units: [nova-api, nova-scheduler, nova-conductor]
  heat:
    units: [heat-api, heat-engine]
    schemas: [heat]
`)
	v := config.New()
	require.NoError(t, config.BindFlags(flags(t, "--config", path), v))
	s, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"nova-api", "nova-scheduler", "nova-conductor"}, s.Catalog["nova"].Units)
	assert.Equal(t, []string{"nova"}, s.Catalog["nova"].Schemas)
	assert.Equal(t, []string{"heat"}, s.Catalog["heat"].Schemas)
	assert.Equal(t, "heat", s.Catalog.Names()[len(s.Catalog)-1])
}

func TestLoad_Invalid(t *testing.T) {
	v := config.New()
	require.NoError(t, config.BindFlags(flags(t, "--config", writeConfig(t, "exec: docker\n"), "--service-manager", "upstart"), v))
	_, err := config.Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service_manager")
	assert.Contains(t, err.Error(), "exec")

	v = config.New()
	require.NoError(t, config.BindFlags(flags(t, "--config", filepath.Join(t.TempDir(), "absent.yaml")), v))
	_, err = config.Load(v)
	assert.Error(t, err)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
