// Package chain binds each supported network's endpoints, field paths and
// failure policies into a Profile the pipeline can run.
package chain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/enrich"
	"github.com/Sternrassler/validator-atlas/pkg/normalize"
	"github.com/Sternrassler/validator-atlas/pkg/ratelimit"
)

// IDPlaceholder is replaced with the item identifier in Detail.Path.
const IDPlaceholder = "{id}"

// Listing describes the bulk listing endpoint.
type Listing struct {
	// BaseURL resolves relative next links.
	BaseURL string

	// Path is appended to BaseURL for the first page.
	Path string

	// ItemsKey is the dotted path of the item array in a page; empty when
	// the page body is the array itself.
	ItemsKey string

	// PagePrefix names the saved page artifacts.
	PagePrefix string
}

// StartURL returns the first page URL.
func (l Listing) StartURL() string {
	return strings.TrimRight(l.BaseURL, "/") + l.Path
}

// Detail describes the per-item detail endpoint.
type Detail struct {
	BaseURL string

	// Path contains IDPlaceholder.
	Path string

	Policy enrich.Policy
	Merge  enrich.MergeFunc
}

// URL returns the detail URL of id.
func (d Detail) URL(id string) string {
	return strings.TrimRight(d.BaseURL, "/") + strings.ReplaceAll(d.Path, IDPlaceholder, url.PathEscape(id))
}

// Credential names an API key read from the environment and the header it
// is sent in.
type Credential struct {
	Env    string
	Header string
}

// Profile is everything the pipeline needs to process one chain.
type Profile struct {
	Name        string
	Description string

	Listing Listing

	// Detail is nil for chains without a detail lookup.
	Detail *Detail

	// IDField is the dotted path of the listing identifier.
	IDField string

	// IPField enables geolocation of the item address when set.
	IPField   string
	GeoPolicy enrich.Policy

	CountFields []string

	Mapping normalize.FieldMapping

	// RateLimit applies to every request made to the chain's API. Nil means
	// the API is not rate-limited.
	RateLimit *ratelimit.Config

	// Credential is optional. A missing value degrades the calls that need
	// it to failures.
	Credential *Credential
}

// Enriches reports whether items go through the detail enricher. Chains
// without any lookup are normalized straight from the merged listing.
func (p Profile) Enriches() bool {
	return p.Detail != nil || p.IPField != ""
}

// Validate checks the profile for missing fields.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Listing.BaseURL == "" {
		return fmt.Errorf("%s: listing base url is required", p.Name)
	}
	if p.IDField == "" {
		return fmt.Errorf("%s: id field is required", p.Name)
	}
	if p.Detail != nil && !strings.Contains(p.Detail.Path, IDPlaceholder) {
		return fmt.Errorf("%s: detail path %q has no %s placeholder", p.Name, p.Detail.Path, IDPlaceholder)
	}
	if err := p.Mapping.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	return nil
}

// Artifact names derived from the chain name.

// CheckpointFile returns the checkpoint store file name.
func (p Profile) CheckpointFile() string { return p.Name + ".jsonl" }

// ErrorLogFile returns the error log file name.
func (p Profile) ErrorLogFile() string { return p.Name + "_error_log.txt" }

// PagesDir returns the page artifact directory name.
func (p Profile) PagesDir() string { return p.Name + "-pages" }

// ListingFile returns the merged listing file name.
func (p Profile) ListingFile() string { return p.Name + "_validations.json" }

// CSVFile returns the canonical output file name.
func (p Profile) CSVFile() string { return p.Name + ".csv" }

var registry = map[string]Profile{}

// Register adds or replaces a profile.
func Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	registry[strings.ToLower(p.Name)] = p
	return nil
}

// Lookup returns the profile registered under name.
func Lookup(name string) (Profile, error) {
	p, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown chain %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names returns the registered chain names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustRegister(p Profile) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

func init() {
	mustRegister(Solana())
	mustRegister(Avalanche())
	mustRegister(Aptos())
}

func limit(quota int, window time.Duration) *ratelimit.Config {
	return &ratelimit.Config{Quota: quota, Window: window}
}
