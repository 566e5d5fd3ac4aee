package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"openstack-backup/src/backend"
	dir "openstack-backup/src/backend/directory"
	"openstack-backup/src/util/fsutil"
)

// openRegistry resolves --dir, falling back to the configured from_dir.
func openRegistry(cmd *cobra.Command) (*dir.Registry, error) {
	root, _ := cmd.Flags().GetString("dir")
	if root == "" {
		s, err := loadSettings(cmd)
		if err != nil {
			return nil, err
		}
		root = s.FromDir
	}
	return dir.New(root)
}

func kindArg(args []string) string {
	if len(args) == 1 {
		return strings.ToLower(args[0])
	}
	return backend.KindAll
}

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list [all|mysql|<service>]",
		Short: "List backup sets in the backup directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			var be backend.StorageBackend = reg
			entries, err := be.List(kindArg(args))
			if err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if entries == nil {
					entries = []backend.Entry{}
				}
				return enc.Encode(entries)
			case "table", "":
				return renderTable(stdout, entries)
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().String("dir", "", "Backup directory (default: from_dir)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func renderTable(w io.Writer, entries []backend.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tTIMESTAMP\tAGE\tSIZE\tPATH")
	for _, e := range entries {
		size := "?"
		if n, err := fsutil.DirSize(e.Path); err == nil {
			size = humanize.IBytes(uint64(n))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Target, e.Timestamp, humanize.Time(e.Created), size, e.Path)
	}
	return tw.Flush()
}
