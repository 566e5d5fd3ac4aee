package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"openstack-backup/src/util/fsutil"
)

func newVerifyCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "verify [all|mysql|<service>]",
		Short: "Verify checksums of backup sets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			entries, err := reg.List(kindArg(args))
			if err != nil {
				return err
			}
			results := make([]verifyResult, 0, len(entries))
			bad := 0
			for _, e := range entries {
				status := fsutil.VerifyChecksums(e.Path)
				if status != "ok" {
					bad++
				}
				results = append(results, verifyResult{Target: e.Target, Timestamp: e.Timestamp, Status: status, Path: e.Path})
			}
			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			default:
				tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TARGET\tTIMESTAMP\tSTATUS")
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Target, r.Timestamp, r.Status)
				}
				_ = tw.Flush()
			}
			if bad > 0 {
				return &exitError{code: 1, err: fmt.Errorf("%d of %d backup sets failed verification", bad, len(results))}
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Backup directory (default: from_dir)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

type verifyResult struct {
	Target    string `json:"target"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Path      string `json:"path"`
}
