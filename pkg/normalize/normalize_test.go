package normalize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var solanaMapping = FieldMapping{
	IDColumn:  "uuid",
	ID:        "nodePubkey",
	Latitude:  "location.ll.0",
	Longitude: "location.ll.1",
	Stake:     "activatedStake",
}

var avalancheMapping = FieldMapping{
	IDColumn:  "uuid",
	ID:        "nodeId",
	Latitude:  "latitude",
	Longitude: "longitude",
	Stake:     "stake.total",
}

func TestFieldMapping_Validate(t *testing.T) {
	assert.NoError(t, solanaMapping.Validate())
	assert.Error(t, FieldMapping{IDColumn: "uuid"}.Validate())
	assert.Error(t, FieldMapping{ID: "nodeId"}.Validate())
}

func TestEntry(t *testing.T) {
	n, err := New("solana", solanaMapping, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		entry   any
		want    record.Normalized
		wantErr bool
	}{
		{
			name: "full record",
			entry: map[string]any{
				"nodePubkey":     "N1",
				"location":       map[string]any{"ll": []any{json.Number("52.5"), json.Number("13.4")}},
				"activatedStake": json.Number("123456789012345678901"),
			},
			want: record.Normalized{ID: "N1", Latitude: 52.5, Longitude: 13.4, StakeWeight: "123456789012345678901"},
		},
		{
			name:  "null location and no stake",
			entry: map[string]any{"nodePubkey": "N2", "location": nil},
			want:  record.Normalized{ID: "N2", StakeWeight: "0"},
		},
		{
			name:  "enriched record type",
			entry: record.Enriched{"nodePubkey": "N3", "activatedStake": json.Number("7")},
			want:  record.Normalized{ID: "N3", StakeWeight: "7"},
		},
		{
			name:    "missing id",
			entry:   map[string]any{"activatedStake": json.Number("1")},
			wantErr: true,
		},
		{
			name:    "non-numeric latitude",
			entry:   map[string]any{"nodePubkey": "N4", "location": map[string]any{"ll": []any{"north", "0"}}},
			wantErr: true,
		},
		{
			name:    "non-numeric stake",
			entry:   map[string]any{"nodePubkey": "N5", "activatedStake": map[string]any{}},
			wantErr: true,
		},
		{
			name:    "NaN latitude",
			entry:   map[string]any{"nodePubkey": "N6", "location": map[string]any{"ll": []any{"NaN", "0"}}},
			wantErr: true,
		},
		{
			name:    "infinite longitude",
			entry:   map[string]any{"nodePubkey": "N7", "location": map[string]any{"ll": []any{"0", "Inf"}}},
			wantErr: true,
		},
		{
			name:    "NaN stake",
			entry:   map[string]any{"nodePubkey": "N8", "activatedStake": "NaN"},
			wantErr: true,
		},
		{
			name:    "not an object",
			entry:   []any{1, 2},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Entry(tt.entry)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItems_TotalAndStakePreserved(t *testing.T) {
	var skipped []string
	n, err := New("avalanche", avalancheMapping, func(msg string) error {
		skipped = append(skipped, msg)
		return nil
	})
	require.NoError(t, err)

	result := n.Items([]record.Item{
		map[string]any{"nodeId": "A", "latitude": 0.0, "longitude": 0.0, "stake": map[string]any{"total": "2000000000000"}},
		map[string]any{"nodeId": "B", "latitude": 1.5, "longitude": -2.5},
		map[string]any{"stake": map[string]any{"total": "1"}},
	})

	assert.Equal(t, 3, result.Total())
	require.Len(t, result.Records, 2)
	assert.Equal(t, json.Number("2000000000000"), result.Records[0].StakeWeight)
	assert.Equal(t, 0.0, result.Records[0].Latitude)
	assert.Equal(t, DefaultStake, result.Records[1].StakeWeight)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0], "item 3")
}

func TestCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solana.jsonl")
	content := `{"nodePubkey":"N1","location":{"ll":[10.5,20.25]},"activatedStake":99}
{"nodePubkey":"N2","location":null}
{broken
{"location":{"ll":[1,2]}}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	n, err := New("solana", solanaMapping, nil)
	require.NoError(t, err)

	result, err := n.Checkpoint(path)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Total())
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Records, 2)
	assert.Equal(t, record.Normalized{ID: "N1", Latitude: 10.5, Longitude: 20.25, StakeWeight: "99"}, result.Records[0])
	assert.Equal(t, record.Normalized{ID: "N2", StakeWeight: "0"}, result.Records[1])
}

func TestCheckpoint_OversizedLineSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solana.jsonl")
	huge := `{"nodePubkey":"BIG","blob":"` + strings.Repeat("x", 16<<20) + `"}`
	content := `{"nodePubkey":"N1"}` + "\n" + huge + "\n" + `{"nodePubkey":"N2"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var skipped []string
	n, err := New("solana", solanaMapping, func(msg string) error {
		skipped = append(skipped, msg)
		return nil
	})
	require.NoError(t, err)

	result, err := n.Checkpoint(path)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total())
	require.Len(t, result.Records, 2)
	assert.Equal(t, "N1", result.Records[0].ID)
	assert.Equal(t, "N2", result.Records[1].ID)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0], "line 2")
}

func TestCheckpoint_MissingStore(t *testing.T) {
	n, err := New("solana", solanaMapping, nil)
	require.NoError(t, err)

	_, err = n.Checkpoint(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
