package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"openstack-backup/src/database"
	"openstack-backup/src/orchestrator"
	"openstack-backup/src/safety"
	"openstack-backup/src/target"
)

var now = time.Now

// SetNowForTest pins the run timestamp.
func SetNowForTest(fn func() time.Time) func() {
	prev := now
	now = fn
	return func() { now = prev }
}

// defaultServiceFlags are the per-service selection flags.
var defaultServiceFlags = []string{"keystone", "nova", "glance", "cinder", "neutron"}

func addDBFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("db_user", "u", "root", "Database user")
	cmd.Flags().StringP("db_password", "p", "", "Database password (or OSBACKUP_DB_PASSWORD)")
	cmd.Flags().String("db_host", "127.0.0.1", "Database host")
	cmd.Flags().String("schema", "", "Limit the database target to a single schema")
}

func addTargetFlags(cmd *cobra.Command, verb string) {
	cmd.Flags().Bool(target.DatabaseName, false, verb+" the MySQL databases")
	for _, name := range defaultServiceFlags {
		cmd.Flags().Bool(name, false, fmt.Sprintf("%s %s files", verb, name))
	}
	cmd.Flags().StringP("output", "o", "table", "Summary format: table|json")
}

// selectedTargets combines the boolean selection flags with positional
// target names.
func selectedTargets(cmd *cobra.Command, args []string, catalog target.Catalog) ([]target.Target, error) {
	var names []string
	for _, name := range append([]string{target.DatabaseName}, defaultServiceFlags...) {
		if on, _ := cmd.Flags().GetBool(name); on {
			names = append(names, name)
		}
	}
	names = append(names, args...)
	if len(names) == 0 {
		return nil, &exitError{code: 1, err: fmt.Errorf("no targets selected; use --mysql, --keystone, --nova, --glance, --cinder, --neutron or name a service")}
	}
	var out []target.Target
	for _, n := range names {
		t, err := target.Parse(n, catalog)
		if err != nil {
			return nil, &exitError{code: 1, err: err}
		}
		out = append(out, t)
	}
	return target.Order(out, catalog), nil
}

func credentials(e *env) database.Credentials {
	return database.Credentials{User: e.settings.DBUser, Password: e.settings.DBPassword, Host: e.settings.DBHost}
}

func newBackupCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup [target...]",
		Short: "Back up MySQL schemas and service files into timestamped sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()
			targets, err := selectedTargets(cmd, args, e.settings.Catalog)
			if err != nil {
				return err
			}
			schema, _ := cmd.Flags().GetString("schema")
			o, err := e.orchestrator(noticeWriter(cmd, stdout, stderr), nil)
			if err != nil {
				return err
			}
			rep := o.Run(ctxOf(cmd), orchestrator.RunContext{
				Action:      orchestrator.ActionBackup,
				Credentials: credentials(e),
				BackupRoot:  e.settings.ToDir,
				Targets:     targets,
				Timestamp:   now(),
				Schema:      schema,
				DryRun:      getSafetyOptions(cmd).DryRun,
			})
			return finishRun(cmd, stdout, rep)
		},
	}
	addDBFlags(cmd)
	addTargetFlags(cmd, "Back up")
	cmd.Flags().String("to_dir", ".", "Directory that receives the backup sets")
	return cmd
}

func newRestoreCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore [target...]",
		Short: "Restore the latest backup sets: stop services, load schemas, swap files, start services",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()
			targets, err := selectedTargets(cmd, args, e.settings.Catalog)
			if err != nil {
				return err
			}
			opts := getSafetyOptions(cmd)
			if !opts.DryRun {
				names := make([]string, len(targets))
				for i, t := range targets {
					names[i] = t.String()
				}
				ok, err := safety.Confirm(opts, cmd.InOrStdin(), stdout, fmt.Sprintf("Restore %s from %s? Services will be stopped and live files moved aside.", strings.Join(names, ", "), e.settings.FromDir))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(stdout, "Aborted.")
					return &exitError{code: 1}
				}
			}
			schema, _ := cmd.Flags().GetString("schema")
			ignore, _ := cmd.Flags().GetBool("ignore-errors")
			var progress io.Writer
			if show, _ := cmd.Flags().GetBool("progress"); show {
				progress = stderr
			}
			o, err := e.orchestrator(noticeWriter(cmd, stdout, stderr), progress)
			if err != nil {
				return err
			}
			rep := o.Run(ctxOf(cmd), orchestrator.RunContext{
				Action:       orchestrator.ActionRestore,
				Credentials:  credentials(e),
				BackupRoot:   e.settings.FromDir,
				Targets:      targets,
				Timestamp:    now(),
				Schema:       schema,
				IgnoreErrors: ignore,
				DryRun:       opts.DryRun,
			})
			return finishRun(cmd, stdout, rep)
		},
	}
	addDBFlags(cmd)
	addTargetFlags(cmd, "Restore")
	cmd.Flags().String("from_dir", ".", "Directory holding the backup sets")
	cmd.Flags().Bool("ignore-errors", false, "Log service start/stop failures instead of failing the target")
	cmd.Flags().Bool("progress", false, "Show schema load progress on stderr")
	return cmd
}

// noticeWriter keeps stdout clean for machine-readable summaries.
func noticeWriter(cmd *cobra.Command, stdout, stderr io.Writer) io.Writer {
	if output, _ := cmd.Flags().GetString("output"); output == "json" {
		return stderr
	}
	return stdout
}

// finishRun prints the run summary and maps the report to an exit code.
func finishRun(cmd *cobra.Command, stdout io.Writer, rep orchestrator.Report) error {
	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	case "table", "":
		renderSummary(stdout, rep)
	default:
		return fmt.Errorf("unsupported --output: %s", output)
	}
	code := rep.ExitCode()
	if code == orchestrator.ExitOK {
		return nil
	}
	if len(rep.Targets) == 0 {
		return &exitError{code: code, err: rep.Err()}
	}
	return &exitError{code: code, err: fmt.Errorf("%s %s: %d of %d targets failed", rep.Action, rep.Status, len(rep.Failed()), len(rep.Targets))}
}

func renderSummary(w io.Writer, rep orchestrator.Report) {
	fmt.Fprintf(w, "\n%s %s (run %s)\n", strings.ToUpper(string(rep.Action[:1]))+string(rep.Action[1:]), rep.Status, rep.RunID)
	if rep.Error != "" && len(rep.Targets) == 0 {
		fmt.Fprintf(w, "  %s\n", rep.Error)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATUS\tSIZE\tSET\tDETAIL")
	for _, t := range rep.Targets {
		size := ""
		if t.Bytes > 0 {
			size = humanize.IBytes(uint64(t.Bytes))
		}
		detail := t.Error
		if detail == "" && len(t.Warnings) > 0 {
			detail = fmt.Sprintf("%d warning(s): %s", len(t.Warnings), t.Warnings[0])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Target, t.Status, size, t.SetPath, detail)
	}
	_ = tw.Flush()
}
