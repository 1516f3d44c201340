package record

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestLookup(t *testing.T) {
	doc := decode(t, `{
		"nodeId": "NodeID-1",
		"node": {"ip": "1.2.3.4"},
		"stake": {"total": "2000"},
		"location": {"ll": [52.5, 13.4]},
		"empty": null
	}`)

	tests := []struct {
		path string
		want any
	}{
		{"nodeId", "NodeID-1"},
		{"node.ip", "1.2.3.4"},
		{"stake.total", "2000"},
		{"location.ll.0", 52.5},
		{"location.ll.1", 13.4},
		{"location.ll.2", nil},
		{"location.ll.x", nil},
		{"empty.ll", nil},
		{"missing", nil},
		{"node.ip.deeper", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Lookup(doc, tt.path))
		})
	}

	assert.Equal(t, doc, Lookup(doc, ""), "empty path returns the value itself")
}

func TestLookupString(t *testing.T) {
	doc := map[string]any{"a": " x ", "n": json.Number("12"), "b": true}

	assert.Equal(t, "x", LookupString(doc, "a"))
	assert.Equal(t, "12", LookupString(doc, "n"))
	assert.Equal(t, "", LookupString(doc, "b"))
	assert.Equal(t, "", LookupString(doc, "missing"))
}

func TestFloat(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    float64
		wantErr bool
	}{
		{name: "nil uses default", in: nil, want: 0},
		{name: "json number", in: json.Number("-33.87"), want: -33.87},
		{name: "float", in: 12.5, want: 12.5},
		{name: "int", in: 7, want: 7},
		{name: "numeric string", in: "48.85", want: 48.85},
		{name: "empty string uses default", in: "", want: 0},
		{name: "garbage string", in: "north", wantErr: true},
		{name: "NaN string", in: "NaN", wantErr: true},
		{name: "Inf string", in: "+Inf", wantErr: true},
		{name: "overflowing string", in: "1e400", wantErr: true},
		{name: "NaN float", in: math.NaN(), wantErr: true},
		{name: "Inf float", in: math.Inf(-1), wantErr: true},
		{name: "NaN json number", in: json.Number("NaN"), wantErr: true},
		{name: "object", in: map[string]any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Float(tt.in, 0)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNotNumeric))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    json.Number
		wantErr bool
	}{
		{name: "nil uses default", in: nil, want: "0"},
		{name: "json number kept exact", in: json.Number("123456789012345678901"), want: "123456789012345678901"},
		{name: "numeric string", in: "2000000000000", want: "2000000000000"},
		{name: "float", in: 1.5, want: "1.5"},
		{name: "int", in: 42, want: "42"},
		{name: "empty string uses default", in: " ", want: "0"},
		{name: "garbage", in: "lots", wantErr: true},
		{name: "NaN string", in: "NaN", wantErr: true},
		{name: "Inf string", in: "Inf", wantErr: true},
		{name: "NaN json number", in: json.Number("nan"), wantErr: true},
		{name: "bool", in: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Number(tt.in, "0")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNotNumeric)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClone(t *testing.T) {
	src := map[string]any{"a": 1}
	out := Clone(src)
	out["b"] = 2

	assert.NotContains(t, src, "b", "clone must not alias the source")
	assert.Equal(t, 1, out["a"])
	assert.Empty(t, Clone([]any{1, 2}))
}

func TestEnriched_SourceID(t *testing.T) {
	assert.Equal(t, "vote1", Enriched{SourceIDKey: "vote1"}.SourceID())
	assert.Equal(t, "", Enriched{}.SourceID())
}
