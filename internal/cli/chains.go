package cli

import (
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/validator-atlas/pkg/chain"
	"github.com/spf13/cobra"
)

func newChainsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the supported chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			printf(w, "CHAIN\tSTAGES\tDESCRIPTION\n")
			for _, name := range chain.Names() {
				p, err := opts.cfg.Profile(name)
				if err != nil {
					return err
				}
				printf(w, "%s\t%s\t%s\n", p.Name, stages(p), p.Description)
			}
			return w.Flush()
		},
	}
}

func stages(p chain.Profile) string {
	s := []string{"listing"}
	if p.Detail != nil {
		s = append(s, "detail")
	}
	if p.IPField != "" {
		s = append(s, "geo")
	}
	return strings.Join(s, "+")
}
