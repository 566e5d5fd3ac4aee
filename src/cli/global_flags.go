package cli

import (
	"github.com/spf13/cobra"

	"openstack-backup/src/safety"
)

// addGlobalFlags adds persistent flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("config", "", "Config file (default /etc/openstack-backup/config.yaml when present)")
	pf.String("log-level", "info", "Log level: debug|info|warn|error")
	pf.Bool("dry-run", false, "Show planned actions without making changes")
	pf.BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
	pf.Bool("force", false, "Force potentially dangerous operations (implies --yes)")
	pf.String("root-dir", "/", "Filesystem root holding etc/<svc> and var/lib/<svc>")
	pf.String("service-manager", "service", "Service control backend: service|systemctl|dbus")
	pf.String("exec", "local", "Where tools run: local|incus:<instance>")
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	force, _ := cmd.Root().PersistentFlags().GetBool("force")
	return safety.Options{DryRun: dry, Yes: yes, Force: force}
}
