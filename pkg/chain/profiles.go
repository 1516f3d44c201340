package chain

import (
	"github.com/Sternrassler/validator-atlas/pkg/enrich"
	"github.com/Sternrassler/validator-atlas/pkg/normalize"
	"github.com/Sternrassler/validator-atlas/pkg/ratelimit"
)

// Solana lists every validator in one bare array, then fetches each vote
// account's detail with an API key. The record is the detail's validator
// object with its stake account list reduced to a count.
func Solana() Profile {
	return Profile{
		Name:        "solana",
		Description: "Solana Beach validators with per-validator detail",
		Listing: Listing{
			BaseURL:    "https://api.solanabeach.io/v1",
			Path:       "/validators/all",
			PagePrefix: "validators_page_",
		},
		Detail: &Detail{
			BaseURL: "https://api.solanabeach.io/v1",
			Path:    "/validator/" + IDPlaceholder,
			Policy:  enrich.SkipAndLog,
			Merge:   enrich.DetailObject("validator"),
		},
		IDField:     "votePubkey",
		CountFields: []string{"delegatingStakeAccounts"},
		Mapping: normalize.FieldMapping{
			IDColumn:  "uuid",
			ID:        "nodePubkey",
			Latitude:  "location.ll.0",
			Longitude: "location.ll.1",
			Stake:     "activatedStake",
		},
		RateLimit:  limit(ratelimit.DefaultQuota, ratelimit.DefaultWindow),
		Credential: &Credential{Env: "SOLANA_API_KEY", Header: "Authorization"},
	}
}

// Avalanche pages through active validations and geolocates each node IP.
func Avalanche() Profile {
	return Profile{
		Name:        "avalanche",
		Description: "Avascan active validations, geolocated by node IP",
		Listing: Listing{
			BaseURL:    "https://api.avascan.info",
			Path:       "/v2/network/mainnet/staking/validations?status=active",
			ItemsKey:   "items",
			PagePrefix: "validations_page_",
		},
		IDField:   "nodeId",
		IPField:   "node.ip",
		GeoPolicy: enrich.DegradeToDefault,
		Mapping: normalize.FieldMapping{
			IDColumn:  "uuid",
			ID:        "nodeId",
			Latitude:  enrich.LatitudeKey,
			Longitude: enrich.LongitudeKey,
			Stake:     "stake.total",
		},
	}
}

// AptosStakeKey holds the active stake pool value on Aptos records.
const AptosStakeKey = "stake_weight"

// Aptos reads validator stats, which already carry coordinates, and looks up
// each owner's active stake pool value. A failed stake lookup keeps the
// validator with stake 0.
func Aptos() Profile {
	return Profile{
		Name:        "aptos",
		Description: "Aptos explorer validator stats with stake pool lookups",
		Listing: Listing{
			BaseURL:    "https://storage.googleapis.com/aptos-mainnet/explorer",
			Path:       "/validator_stats_v2.json?cache-version=0",
			PagePrefix: "validators_page_",
		},
		Detail: &Detail{
			BaseURL: "https://fullnode.mainnet.aptoslabs.com",
			Path:    "/v1/accounts/" + IDPlaceholder + "/resource/0x1::stake::StakePool",
			Policy:  enrich.DegradeToDefault,
			Merge:   enrich.DetailValue("data.active.value", AptosStakeKey, "0"),
		},
		IDField: "owner_address",
		Mapping: normalize.FieldMapping{
			IDColumn:  "uuid",
			ID:        "owner_address",
			Latitude:  "location_stats.latitude",
			Longitude: "location_stats.longitude",
			Stake:     AptosStakeKey,
		},
		RateLimit: limit(ratelimit.DefaultQuota, ratelimit.DefaultWindow),
	}
}
