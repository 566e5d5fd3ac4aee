// Package config resolves run settings from flags, OSBACKUP_* environment
// variables, an optional YAML file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"openstack-backup/src/target"
)

// EnvPrefix prefixes every environment variable, e.g. OSBACKUP_DB_HOST.
const EnvPrefix = "OSBACKUP"

// DefaultFile is read when present and no --config is given.
const DefaultFile = "/etc/openstack-backup/config.yaml"

// Keys.
const (
	KeyConfig         = "config"
	KeyLogLevel       = "log_level"
	KeyDBUser         = "db_user"
	KeyDBPassword     = "db_password"
	KeyDBHost         = "db_host"
	KeyToDir          = "to_dir"
	KeyFromDir        = "from_dir"
	KeyRootDir        = "root_dir"
	KeyServiceManager = "service_manager"
	KeyExec           = "exec"
	KeyMySQLBin       = "mysql_bin"
	KeyMySQLDumpBin   = "mysqldump_bin"
	KeyServices       = "services"
)

var defaults = map[string]any{
	KeyLogLevel:       "info",
	KeyDBUser:         "root",
	KeyDBPassword:     "",
	KeyDBHost:         "127.0.0.1",
	KeyToDir:          ".",
	KeyFromDir:        ".",
	KeyRootDir:        "/",
	KeyServiceManager: "service",
	KeyExec:           "local",
	KeyMySQLBin:       "mysql",
	KeyMySQLDumpBin:   "mysqldump",
}

// Settings is the resolved configuration for one command invocation.
type Settings struct {
	ConfigFile     string
	LogLevel       string
	DBUser         string
	DBPassword     string
	DBHost         string
	ToDir          string
	FromDir        string
	RootDir        string
	ServiceManager string
	Exec           string
	MySQLBin       string
	MySQLDumpBin   string
	Catalog        target.Catalog
}

// New returns a Viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	SetEnvPrefix(v, EnvPrefix)
	return v
}

// SetEnvPrefix lets v read PREFIX_KEY variables, mapping dashes to underscores.
func SetEnvPrefix(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// KeyFor maps a flag name to its configuration key.
func KeyFor(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// BindFlags binds every flag in fs to v under KeyFor(name).
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	var result error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(KeyFor(f.Name), f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

// Load reads the config file, if any, and resolves Settings from v.
func Load(v *viper.Viper) (Settings, error) {
	path := v.GetString(KeyConfig)
	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", path, err)
		}
	default:
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Settings{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	s := Settings{
		ConfigFile:     path,
		LogLevel:       v.GetString(KeyLogLevel),
		DBUser:         v.GetString(KeyDBUser),
		DBPassword:     v.GetString(KeyDBPassword),
		DBHost:         v.GetString(KeyDBHost),
		ToDir:          v.GetString(KeyToDir),
		FromDir:        v.GetString(KeyFromDir),
		RootDir:        v.GetString(KeyRootDir),
		ServiceManager: v.GetString(KeyServiceManager),
		Exec:           v.GetString(KeyExec),
		MySQLBin:       v.GetString(KeyMySQLBin),
		MySQLDumpBin:   v.GetString(KeyMySQLDumpBin),
	}

	overrides := map[string]target.Service{}
	if v.IsSet(KeyServices) {
		if err := v.UnmarshalKey(KeyServices, &overrides); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", KeyServices, err)
		}
	}
	catalog, err := target.DefaultCatalog().Merge(overrides)
	if err != nil {
		return Settings{}, err
	}
	s.Catalog = catalog
	return s, s.Validate()
}

// Validate checks values that have a fixed set of choices.
func (s Settings) Validate() error {
	var result error
	switch s.ServiceManager {
	case "service", "systemctl", "dbus":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid service_manager %q (want service, systemctl or dbus)", s.ServiceManager))
	}
	if s.Exec != "local" && !strings.HasPrefix(s.Exec, "incus:") {
		result = multierror.Append(result, fmt.Errorf("invalid exec %q (want local or incus:<instance>)", s.Exec))
	}
	if s.DBUser == "" {
		result = multierror.Append(result, errors.New("db_user must not be empty"))
	}
	if s.DBHost == "" {
		result = multierror.Append(result, errors.New("db_host must not be empty"))
	}
	return result
}
