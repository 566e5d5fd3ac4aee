package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"openstack-backup/src/backend"
	"openstack-backup/src/safety"
)

func newPruneCmd(stdout, stderr io.Writer) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune [all|mysql|<service>]",
		Short: "Prune old backup sets (keep N per target)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep <= 0 {
				return errors.New("--keep must be > 0")
			}
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			entries, err := reg.List(kindArg(args))
			if err != nil {
				return err
			}
			toDelete := planPrune(entries, keep)

			// Preview
			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TARGET\tTIMESTAMP\tACTION")
			for _, e := range toDelete {
				fmt.Fprintf(tw, "%s\t%s\tdelete\n", e.Target, e.Timestamp)
			}
			_ = tw.Flush()

			opts := getSafetyOptions(cmd)
			if opts.DryRun || len(toDelete) == 0 {
				return nil
			}
			ok, err := safety.Confirm(opts, cmd.InOrStdin(), stdout, fmt.Sprintf("Delete %d backup sets?", len(toDelete)))
			if err != nil || !ok {
				return err
			}
			var failed int
			for _, e := range toDelete {
				if err := os.RemoveAll(e.Path); err != nil {
					fmt.Fprintf(stderr, "delete %s: %v\n", e.Path, err)
					failed++
				}
			}
			fmt.Fprintf(stdout, "Deleted %d backup sets\n", len(toDelete)-failed)
			if failed > 0 {
				return &exitError{code: 1, err: fmt.Errorf("%d backup sets could not be deleted", failed)}
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Backup directory (default: from_dir)")
	cmd.Flags().IntVar(&keep, "keep", 3, "Number of recent backup sets to keep per target")
	return cmd
}

// planPrune returns every set older than the newest keep sets of its target.
// entries must be sorted by target then timestamp, as Registry.List returns.
func planPrune(entries []backend.Entry, keep int) []backend.Entry {
	byTarget := map[string][]backend.Entry{}
	var order []string
	for _, e := range entries {
		if _, ok := byTarget[e.Target]; !ok {
			order = append(order, e.Target)
		}
		byTarget[e.Target] = append(byTarget[e.Target], e)
	}
	var del []backend.Entry
	for _, t := range order {
		sets := byTarget[t]
		if len(sets) > keep {
			del = append(del, sets[:len(sets)-keep]...)
		}
	}
	return del
}
