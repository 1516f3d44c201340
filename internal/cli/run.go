package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/validator-atlas/pkg/chain"
	"github.com/Sternrassler/validator-atlas/pkg/geo"
	"github.com/Sternrassler/validator-atlas/pkg/pipeline"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *options) *cobra.Command {
	var (
		resume      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "run [chain...]",
		Short: "Run the full pipeline for the given chains (all when none are given)",
		Example: `  validator-atlas run avalanche
  validator-atlas run solana aptos --resume`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume {
				opts.cfg.Resume = true
			}
			if concurrency > 0 {
				opts.cfg.Concurrency = concurrency
			}
			return opts.run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "skip items already in the checkpoint store instead of starting over")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "items enriched in parallel (overrides concurrency)")

	return cmd
}

func (o *options) run(ctx context.Context, out io.Writer, names []string) error {
	if len(names) == 0 {
		names = chain.Names()
	}

	profiles := make([]chain.Profile, 0, len(names))
	needsGeo := false
	for _, name := range names {
		p, err := o.cfg.Profile(name)
		if err != nil {
			return err
		}
		profiles = append(profiles, p)
		needsGeo = needsGeo || p.IPField != ""
	}

	if o.cfg.Metrics.Addr != "" {
		stop := startMetricsServer(o.cfg.Metrics.Addr, o.logger)
		defer stop()
	}

	var locator geo.Locator
	if needsGeo {
		l, err := pipeline.NewLocator(ctx, o.cfg, nil, nil)
		if err != nil {
			return err
		}
		defer l.Close()
		locator = l
	}

	var (
		reports []*pipeline.Report
		failed  []string
	)
	for _, profile := range profiles {
		if ctx.Err() != nil {
			break
		}

		p, err := pipeline.New(o.cfg, profile, pipeline.Deps{Locator: locator, RunID: o.runID})
		if err != nil {
			o.logger.Error().Err(err).Str("chain", profile.Name).Msg("Failed to set up pipeline")
			failed = append(failed, profile.Name)
			continue
		}

		report, err := p.Run(ctx)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			o.logger.Error().Err(err).Str("chain", profile.Name).Msg("Pipeline failed")
			failed = append(failed, profile.Name)
		}
	}

	printReports(out, reports)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed chains: %s", strings.Join(failed, ", "))
	}
	return nil
}

func printReports(out io.Writer, reports []*pipeline.Report) {
	if len(reports) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	printf(w, "CHAIN\tPAGES\tLISTED\tAPPENDED\tSKIPPED\tROWS\tPARTIAL\tCSV\n")
	for _, r := range reports {
		pages := 0
		if r.Pagination != nil {
			pages = r.Pagination.Pages
		}
		var appended, skipped int64
		if r.Enrich != nil {
			appended, skipped = r.Enrich.Appended, r.Enrich.Skipped
		}
		printf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%t\t%s\n",
			r.Chain, pages, r.Listed, appended, skipped, r.Rows, r.Partial(), r.CSVPath)
	}
	_ = w.Flush()
}
