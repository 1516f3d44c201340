package cli

import (
	"context"
	"fmt"

	"github.com/Sternrassler/validator-atlas/pkg/geo"
	"github.com/Sternrassler/validator-atlas/pkg/pagination"
	"github.com/Sternrassler/validator-atlas/pkg/pipeline"
	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/spf13/cobra"
)

// offlineLocator stands in for geolocation in commands that never enrich.
var offlineLocator = geo.LocatorFunc(func(ctx context.Context, ip string) (geo.Location, error) {
	return geo.Location{}, geo.ErrNoLocation
})

func (o *options) stagePipeline(name string) (*pipeline.Pipeline, error) {
	profile, err := o.cfg.Profile(name)
	if err != nil {
		return nil, err
	}
	return pipeline.New(o.cfg, profile, pipeline.Deps{Locator: offlineLocator, RunID: o.runID})
}

func newFetchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <chain>",
		Short: "Walk a chain's listing and save its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.stagePipeline(args[0])
			if err != nil {
				return err
			}

			result, err := p.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			printf(cmd.OutOrStdout(), "%s: saved %d pages (%s)\n", p.Profile().Name, result.Pages, result.Reason)
			if result.Err != nil {
				opts.logger.Warn().Err(result.Err).Msg("Listing is incomplete")
			}
			return nil
		},
	}
}

func newMergeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <chain>",
		Short: "Merge a chain's saved pages into one listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.stagePipeline(args[0])
			if err != nil {
				return err
			}

			listing, err := p.Merge()
			if err != nil {
				return err
			}

			printf(cmd.OutOrStdout(), "%s: merged %d items from %d pages into %s\n",
				p.Profile().Name, listing.Count(), listing.Pages, p.ListingPath())
			if listing.Unreadable > 0 {
				opts.logger.Warn().Int("pages", listing.Unreadable).Msg("Some pages could not be read")
			}
			return nil
		},
	}
}

func newNormalizeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <chain>",
		Short: "Rebuild a chain's CSV from its checkpoint store",
		Long: `Rebuild a chain's CSV from its checkpoint store. Chains without
enrichment are rebuilt from the merged listing instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.stagePipeline(args[0])
			if err != nil {
				return err
			}

			var items []record.Item
			if !p.Profile().Enriches() {
				listing, err := pagination.ReadListing(p.ListingPath())
				if err != nil {
					return fmt.Errorf("read merged listing: %w", err)
				}
				items = listing.Items
			}

			result, err := p.Normalize(items, nil)
			if err != nil {
				return err
			}

			printf(cmd.OutOrStdout(), "%s: wrote %d rows to %s (%d skipped)\n",
				p.Profile().Name, len(result.Records), p.CSVPath(), result.Skipped)
			return nil
		},
	}
}
