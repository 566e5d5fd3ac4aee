package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"openstack-backup/src/service"
	"openstack-backup/src/snapshot"
)

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

type checkResult struct {
	Check  string `json:"check"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, database access, service manager and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()
			ctx := ctxOf(cmd)
			var results []checkResult
			add := func(name, status, detail string) {
				results = append(results, checkResult{Check: name, Status: status, Detail: detail})
			}

			if e.settings.ConfigFile != "" {
				add("config", checkOK, e.settings.ConfigFile)
			} else {
				add("config", checkOK, "defaults (no config file)")
			}
			add("exec", checkOK, e.runner.Describe())

			db := e.database()
			if v, err := db.Detect(ctx); err != nil {
				add("mysql", checkFail, err.Error())
			} else {
				add("mysql", checkOK, v)
			}
			if v, err := db.DetectDump(ctx); err != nil {
				add("mysqldump", checkFail, err.Error())
			} else {
				add("mysqldump", checkOK, v)
			}
			if schemas, err := db.ListSchemas(ctx, credentials(e)); err != nil {
				add("database", checkFail, err.Error())
			} else {
				add("database", checkOK, fmt.Sprintf("%s: %d schemas", credentials(e), len(schemas)))
			}

			if desc, err := service.Probe(ctx, e.settings.ServiceManager, e.runner); err != nil {
				add("service-manager", checkFail, err.Error())
			} else {
				add("service-manager", checkOK, desc)
			}

			if err := checkWritable(e.settings.ToDir); err != nil {
				add("to_dir", checkFail, err.Error())
			} else {
				add("to_dir", checkOK, e.settings.ToDir)
			}

			snap := snapshot.New(e.settings.RootDir, e.log)
			for _, name := range e.settings.Catalog.Names() {
				p := snap.PathsFor(name)
				if _, err := os.Stat(p.Etc); err != nil {
					add("files:"+name, checkWarn, "missing "+p.Etc)
					continue
				}
				add("files:"+name, checkOK, p.Etc)
			}

			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			case "table", "":
				tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CHECK\tSTATUS\tDETAIL")
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Check, r.Status, r.Detail)
				}
				_ = tw.Flush()
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}

			failed := 0
			for _, r := range results {
				if r.Status == checkFail {
					failed++
				}
			}
			if failed > 0 {
				return &exitError{code: 1, err: fmt.Errorf("%d check(s) failed", failed)}
			}
			return nil
		},
	}
	addDBFlags(cmd)
	cmd.Flags().String("to_dir", ".", "Directory that receives the backup sets")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

// checkWritable creates and removes a probe file in dir.
func checkWritable(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
