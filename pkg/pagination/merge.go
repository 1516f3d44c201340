package pagination

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/validator-atlas/pkg/client"
	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var itemsMergedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atlas_items_merged_total",
	Help: "Total listing items consolidated from saved pages",
}, []string{"listing"})

// Listing is the consolidated item collection of one pagination walk.
type Listing struct {
	Items []record.Item `json:"items"`

	// Pages is the number of artifacts read.
	Pages int `json:"-"`

	// Unreadable is the number of artifacts that could not be read or decoded.
	Unreadable int `json:"-"`
}

// Count returns the number of merged items.
func (l *Listing) Count() int {
	return len(l.Items)
}

// Merge concatenates the item arrays of every saved page in page-number
// order. itemsKey is the dotted path of the array inside a page ("" for a
// page that is a bare array). A page without the key contributes no items; a
// page that cannot be read is logged and contributes no items.
func Merge(store *PageStore, itemsKey string) (*Listing, error) {
	logger := log.With().Str("component", "page-merger").Str("dir", store.Dir()).Logger()

	pages, err := store.List()
	if err != nil {
		return nil, err
	}

	listing := &Listing{Items: []record.Item{}}
	for _, page := range pages {
		listing.Pages++

		data, err := os.ReadFile(page.Path)
		if err != nil {
			listing.Unreadable++
			logger.Warn().Err(err).Str("path", page.Path).Msg("Skipping unreadable page")
			continue
		}

		var doc any
		if err := client.DecodeJSON(data, &doc); err != nil {
			listing.Unreadable++
			logger.Warn().Err(err).Str("path", page.Path).Msg("Skipping malformed page")
			continue
		}

		items, ok := record.Lookup(doc, itemsKey).([]any)
		if !ok {
			logger.Debug().Str("path", page.Path).Str("key", itemsKey).Msg("Page has no item array")
			continue
		}
		listing.Items = append(listing.Items, items...)
	}

	itemsMergedTotal.WithLabelValues(filepath.Base(store.Dir())).Add(float64(len(listing.Items)))
	logger.Info().
		Int("pages", listing.Pages).
		Int("items", len(listing.Items)).
		Msg("Merged pages")

	return listing, nil
}

// WriteListing saves the consolidated listing as {"items": [...]}.
func WriteListing(path string, listing *Listing) error {
	data, err := json.MarshalIndent(listing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write listing: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename listing: %w", err)
	}
	return nil
}

// ReadListing loads a listing written by WriteListing.
func ReadListing(path string) (*Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}

	var doc any
	if err := client.DecodeJSON(data, &doc); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	items, _ := record.Lookup(doc, "items").([]any)
	if items == nil {
		items = []any{}
	}
	return &Listing{Items: items}, nil
}
