package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"openstack-backup/src/target"
)

func newServicesCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Show the service catalog: units in stop order and owned schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			switch output {
			case "yaml", "":
				doc := struct {
					Services target.Catalog `yaml:"services"`
				}{s.Catalog}
				enc := yaml.NewEncoder(stdout)
				enc.SetIndent(2)
				if err := enc.Encode(doc); err != nil {
					return err
				}
				return enc.Close()
			case "table":
				tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SERVICE\tUNITS\tSCHEMAS")
				for _, name := range s.Catalog.Names() {
					svc := s.Catalog[name]
					fmt.Fprintf(tw, "%s\t%s\t%s\n", name, strings.Join(svc.Units, ","), strings.Join(svc.Schemas, ","))
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml|table")
	return cmd
}
