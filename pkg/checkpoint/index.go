package checkpoint

import (
	"errors"
	"os"

	"github.com/Sternrassler/validator-atlas/pkg/client"
	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Index is the set of identifiers already present in a checkpoint store.
// It is safe for concurrent use.
type Index struct {
	ids *xsync.MapOf[string, struct{}]
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{ids: xsync.NewMapOf[string, struct{}]()}
}

// LoadIndex reads the source identifier of every record in the store at
// path. A missing store yields an empty index. Lines that cannot be read or
// decoded, or carry no identifier, are ignored.
func LoadIndex(path string) (*Index, error) {
	idx := NewIndex()
	logger := log.With().Str("component", "checkpoint").Str("store", path).Logger()

	err := Scan(path, func(line int, raw []byte, err error) error {
		if err != nil {
			logger.Warn().Int("line", line).Err(err).Msg("Ignoring unreadable line")
			return nil
		}
		var rec map[string]any
		if err := client.DecodeJSON(raw, &rec); err != nil {
			logger.Debug().Int("line", line).Err(err).Msg("Ignoring undecodable line")
			return nil
		}
		if id := record.Enriched(rec).SourceID(); id != "" {
			idx.Add(id)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return idx, nil
		}
		return nil, err
	}

	logger.Info().Int("ids", idx.Len()).Msg("Loaded resume index")
	return idx, nil
}

// Has reports whether id is present.
func (i *Index) Has(id string) bool {
	_, ok := i.ids.Load(id)
	return ok
}

// Add records id.
func (i *Index) Add(id string) {
	i.ids.Store(id, struct{}{})
}

// Len returns the number of identifiers.
func (i *Index) Len() int {
	return i.ids.Size()
}
