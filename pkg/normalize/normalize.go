// Package normalize maps chain-specific records onto the canonical
// {identifier, latitude, longitude, stake_weight} row and writes the CSV.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/validator-atlas/pkg/checkpoint"
	"github.com/Sternrassler/validator-atlas/pkg/client"
	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_normalized_rows_total",
		Help: "Canonical rows produced",
	}, []string{"chain"})

	skipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_normalize_skips_total",
		Help: "Entries skipped as malformed during normalization",
	}, []string{"chain"})
)

// ErrMalformed marks an entry that cannot be mapped to a row.
var ErrMalformed = errors.New("malformed entry")

// DefaultStake is written when an entry has no stake value.
const DefaultStake = json.Number("0")

// FieldMapping names where each canonical field lives in a chain's records.
// Paths are dotted ("stake.total", "location.ll.0").
type FieldMapping struct {
	// IDColumn is the CSV header of the identifier column ("uuid", "peer_id").
	IDColumn  string `yaml:"id_column"`
	ID        string `yaml:"id"`
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`
	Stake     string `yaml:"stake"`
}

// Validate checks that the mapping can produce rows.
func (m FieldMapping) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("field mapping: id path is required")
	}
	if m.IDColumn == "" {
		return fmt.Errorf("field mapping: id column is required")
	}
	return nil
}

// Result is the outcome of normalizing a batch. Every input entry is
// counted in exactly one of len(Records) and Skipped.
type Result struct {
	Records []record.Normalized
	Skipped int
}

// Total returns the number of entries seen.
func (r *Result) Total() int {
	return len(r.Records) + r.Skipped
}

// Normalizer maps entries with one FieldMapping.
type Normalizer struct {
	chain   string
	mapping FieldMapping
	onSkip  func(msg string) error
	logger  zerolog.Logger
}

// New creates a normalizer. onSkip receives one message per skipped entry
// and may be nil.
func New(chain string, mapping FieldMapping, onSkip func(msg string) error) (*Normalizer, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{
		chain:   chain,
		mapping: mapping,
		onSkip:  onSkip,
		logger:  log.With().Str("component", "normalizer").Str("chain", chain).Logger(),
	}, nil
}

// Entry maps one entry. Absent coordinates read as 0 and an absent stake as
// DefaultStake. A non-object entry, a missing identifier or a non-numeric
// field is ErrMalformed.
func (n *Normalizer) Entry(entry any) (record.Normalized, error) {
	if e, ok := entry.(record.Enriched); ok {
		entry = map[string]any(e)
	}
	if _, ok := entry.(map[string]any); !ok {
		return record.Normalized{}, fmt.Errorf("%w: %T is not an object", ErrMalformed, entry)
	}

	id := record.LookupString(entry, n.mapping.ID)
	if id == "" {
		return record.Normalized{}, fmt.Errorf("%w: no %s", ErrMalformed, n.mapping.ID)
	}

	lat, err := n.float(entry, n.mapping.Latitude)
	if err != nil {
		return record.Normalized{}, fmt.Errorf("%w: %s latitude: %v", ErrMalformed, id, err)
	}
	lon, err := n.float(entry, n.mapping.Longitude)
	if err != nil {
		return record.Normalized{}, fmt.Errorf("%w: %s longitude: %v", ErrMalformed, id, err)
	}

	stake := DefaultStake
	if n.mapping.Stake != "" {
		stake, err = record.Number(record.Lookup(entry, n.mapping.Stake), DefaultStake)
		if err != nil {
			return record.Normalized{}, fmt.Errorf("%w: %s stake: %v", ErrMalformed, id, err)
		}
	}

	return record.Normalized{ID: id, Latitude: lat, Longitude: lon, StakeWeight: stake}, nil
}

func (n *Normalizer) float(entry any, path string) (float64, error) {
	if path == "" {
		return 0, nil
	}
	return record.Float(record.Lookup(entry, path), 0)
}

// Items normalizes an in-memory collection (a merged listing).
func (n *Normalizer) Items(items []record.Item) *Result {
	result := &Result{Records: make([]record.Normalized, 0, len(items))}
	for i, item := range items {
		n.add(result, fmt.Sprintf("item %d", i+1), item)
	}
	n.finish(result)
	return result
}

// Checkpoint normalizes every line of a checkpoint store. Undecodable and
// oversized lines are skipped like any other malformed entry.
func (n *Normalizer) Checkpoint(path string) (*Result, error) {
	result := &Result{}

	err := checkpoint.Scan(path, func(line int, raw []byte, err error) error {
		where := fmt.Sprintf("line %d", line)
		if err != nil {
			n.skip(result, where, fmt.Errorf("%w: %v", ErrMalformed, err))
			return nil
		}

		var entry any
		if err := client.DecodeJSON(raw, &entry); err != nil {
			n.skip(result, where, fmt.Errorf("%w: %v", ErrMalformed, err))
			return nil
		}
		n.add(result, where, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	n.finish(result)
	return result, nil
}

func (n *Normalizer) add(result *Result, where string, entry any) {
	rec, err := n.Entry(entry)
	if err != nil {
		n.skip(result, where, err)
		return
	}
	result.Records = append(result.Records, rec)
	rowsTotal.WithLabelValues(n.chain).Inc()
}

func (n *Normalizer) skip(result *Result, where string, err error) {
	result.Skipped++
	skipsTotal.WithLabelValues(n.chain).Inc()

	msg := fmt.Sprintf("Error normalizing %s %s: %v", n.chain, where, err)
	n.logger.Warn().Err(err).Str("entry", where).Msg("Skipping malformed entry")
	if n.onSkip != nil {
		_ = n.onSkip(msg)
	}
}

func (n *Normalizer) finish(result *Result) {
	n.logger.Info().
		Int("rows", len(result.Records)).
		Int("skipped", result.Skipped).
		Msg("Normalized entries")
}
