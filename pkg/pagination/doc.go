// Package pagination walks link-following listing APIs and consolidates the
// saved pages into one item collection.
//
// A listing response is a JSON object carrying an item array plus an optional
// next-page link, for example:
//
//	{"items": [...], "link": {"next": "/v2/network/mainnet/staking/validations?cursor=abc"}}
//
// Relative links are resolved against the API base URL. A bare JSON array is a
// single page with no link.
//
// Example usage:
//
//	store := pagination.NewPageStore(dir, "validations_page_")
//	fetcher := pagination.NewFetcher(apiClient, store, pagination.Config{BaseURL: base})
//	result, err := fetcher.FetchAll(ctx, base+"/v2/network/mainnet/staking/validations?status=active")
//	listing, err := pagination.Merge(store, "items")
//
// The fetcher:
//   - Saves every page body before following its link, so a crash loses at most the in-flight page
//   - Stops early on a failed or malformed page and keeps the pages already saved
//   - Stops at Config.MaxPages to guard against unterminated link chains
package pagination
