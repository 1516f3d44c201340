package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Sternrassler/validator-atlas/pkg/geo"
	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink collects records and error lines in memory.
type memSink struct {
	mu        sync.Mutex
	records   []record.Enriched
	errors    []string
	appendErr error
}

func (s *memSink) Append(rec record.Enriched) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memSink) LogError(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
	return nil
}

func items(raw ...map[string]any) []record.Item {
	out := make([]record.Item, len(raw))
	for i, r := range raw {
		out[i] = r
	}
	return out
}

func fixedLocator(loc geo.Location) geo.Locator {
	return geo.LocatorFunc(func(context.Context, string) (geo.Location, error) {
		return loc, nil
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "id field")

	_, err = New(Config{IDField: "nodeId", IPField: "node.ip"})
	assert.ErrorContains(t, err, "locator")

	e, err := New(Config{IDField: "nodeId"})
	require.NoError(t, err)
	assert.Equal(t, DegradeToDefault, e.config.GeoPolicy)
	assert.Equal(t, SkipAndLog, e.config.DetailPolicy)
	assert.Equal(t, 1, e.config.Concurrency)
}

func TestRun_GeoSuccess(t *testing.T) {
	e, err := New(Config{
		IDField: "nodeId",
		IPField: "node.ip",
		Locator: fixedLocator(geo.Location{Latitude: 48.85, Longitude: 2.35}),
	})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), items(
		map[string]any{"nodeId": "NodeID-A", "node": map[string]any{"ip": "203.0.113.7"}, "stake": map[string]any{"total": json.Number("2000")}},
	), sink)
	require.NoError(t, err)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, "NodeID-A", rec.SourceID())
	assert.Equal(t, 48.85, rec[LatitudeKey])
	assert.Equal(t, 2.35, rec[LongitudeKey])
	assert.Equal(t, json.Number("2000"), record.Lookup(map[string]any(rec), "stake.total"))
	assert.EqualValues(t, 1, report.Appended)
	assert.Empty(t, sink.errors)
}

func TestRun_GeoFailureDegradesToZero(t *testing.T) {
	failing := geo.LocatorFunc(func(context.Context, string) (geo.Location, error) {
		return geo.Location{}, errors.New("dial tcp: connection refused")
	})
	e, err := New(Config{IDField: "nodeId", IPField: "node.ip", Locator: failing})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), items(
		map[string]any{"nodeId": "A", "node": map[string]any{"ip": "203.0.113.7"}, "stake": map[string]any{"total": "42"}},
	), sink)
	require.NoError(t, err)

	require.Len(t, sink.records, 1)
	assert.Equal(t, 0.0, sink.records[0][LatitudeKey])
	assert.Equal(t, 0.0, sink.records[0][LongitudeKey])
	assert.Equal(t, "42", record.LookupString(map[string]any(sink.records[0]), "stake.total"))
	assert.EqualValues(t, 1, report.GeoDegraded)
	assert.Empty(t, sink.errors, "degraded lookups are not error-logged")
}

func TestRun_EmptyIPSkipsLookup(t *testing.T) {
	var calls atomic.Int32
	locator := geo.LocatorFunc(func(context.Context, string) (geo.Location, error) {
		calls.Add(1)
		return geo.Location{Latitude: 1, Longitude: 1}, nil
	})
	e, err := New(Config{IDField: "nodeId", IPField: "node.ip", Locator: locator})
	require.NoError(t, err)

	sink := &memSink{}
	_, err = e.Run(context.Background(), items(
		map[string]any{"nodeId": "A", "node": map[string]any{"ip": ""}},
		map[string]any{"nodeId": "B"},
	), sink)
	require.NoError(t, err)

	assert.Zero(t, calls.Load())
	require.Len(t, sink.records, 2)
	for _, rec := range sink.records {
		assert.Equal(t, 0.0, rec[LatitudeKey])
		assert.Equal(t, 0.0, rec[LongitudeKey])
	}
}

func TestRun_GeoSkipPolicy(t *testing.T) {
	failing := geo.LocatorFunc(func(context.Context, string) (geo.Location, error) {
		return geo.Location{}, geo.ErrNoLocation
	})
	e, err := New(Config{IDField: "id", IPField: "ip", Locator: failing, GeoPolicy: SkipAndLog})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), items(map[string]any{"id": "A", "ip": "192.0.2.1"}), sink)
	require.NoError(t, err)

	assert.Empty(t, sink.records)
	assert.Len(t, sink.errors, 1)
	assert.EqualValues(t, 1, report.Skipped)
}

func TestRun_DetailFailureSkipsWithOneErrorLine(t *testing.T) {
	detail := func(_ context.Context, id string) (map[string]any, error) {
		if id == "V2" {
			return nil, errors.New("server error (status 500)")
		}
		return map[string]any{"validator": map[string]any{"nodePubkey": "N-" + id}}, nil
	}
	e, err := New(Config{
		IDField: "votePubkey",
		Detail:  detail,
		Merge:   DetailObject("validator"),
	})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), items(
		map[string]any{"votePubkey": "V1"},
		map[string]any{"votePubkey": "V2"},
		map[string]any{"votePubkey": "V3"},
	), sink)
	require.NoError(t, err)

	require.Len(t, sink.records, 2)
	assert.Equal(t, "V1", sink.records[0].SourceID())
	assert.Equal(t, "N-V1", sink.records[0]["nodePubkey"])
	assert.Equal(t, "V3", sink.records[1].SourceID())

	require.Len(t, sink.errors, 1)
	assert.Contains(t, sink.errors[0], "V2")
	assert.EqualValues(t, 1, report.Skipped)
	assert.EqualValues(t, 2, report.Appended)
}

func TestRun_DetailDegradePolicy(t *testing.T) {
	detail := func(context.Context, string) (map[string]any, error) {
		return nil, errors.New("not found")
	}
	e, err := New(Config{
		IDField:      "owner_address",
		Detail:       detail,
		DetailPolicy: DegradeToDefault,
		Merge:        DetailValue("data.active.value", "stake_weight", "0"),
	})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), items(map[string]any{"owner_address": "0xabc"}), sink)
	require.NoError(t, err)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "0", sink.records[0]["stake_weight"])
	assert.EqualValues(t, 1, report.DetailDegraded)
	assert.Empty(t, sink.errors)
}

func TestRun_MissingIdentifier(t *testing.T) {
	e, err := New(Config{IDField: "votePubkey"})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), []record.Item{
		map[string]any{"moniker": "no key"},
		"not an object",
		map[string]any{"votePubkey": "V1"},
	}, sink)
	require.NoError(t, err)

	assert.Len(t, sink.records, 1)
	require.Len(t, sink.errors, 2)
	assert.Contains(t, sink.errors[0], "index 1")
	assert.Contains(t, sink.errors[1], "index 2")
	assert.EqualValues(t, 2, report.Skipped)
}

func TestRun_MergeFailureSkips(t *testing.T) {
	detail := func(context.Context, string) (map[string]any, error) {
		return map[string]any{"unexpected": true}, nil
	}
	e, err := New(Config{IDField: "id", Detail: detail, Merge: DetailObject("validator")})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), items(map[string]any{"id": "A"}), sink)
	require.NoError(t, err)

	assert.Empty(t, sink.records)
	assert.Len(t, sink.errors, 1)
	assert.EqualValues(t, 1, report.Skipped)
}

func TestRun_ResumeSkipsCheckpointed(t *testing.T) {
	var detailCalls atomic.Int32
	detail := func(context.Context, string) (map[string]any, error) {
		detailCalls.Add(1)
		return map[string]any{}, nil
	}
	done := map[string]bool{"A": true}
	e, err := New(Config{
		IDField: "id",
		Detail:  detail,
		Skip:    func(id string) bool { return done[id] },
	})
	require.NoError(t, err)

	sink := &memSink{}
	report, err := e.Run(context.Background(), items(map[string]any{"id": "A"}, map[string]any{"id": "B"}), sink)
	require.NoError(t, err)

	assert.EqualValues(t, 1, detailCalls.Load())
	assert.EqualValues(t, 1, report.Resumed)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "B", sink.records[0].SourceID())
}

func TestRun_WriteFailureCounted(t *testing.T) {
	e, err := New(Config{IDField: "id"})
	require.NoError(t, err)

	sink := &memSink{appendErr: errors.New("no space left on device")}
	report, err := e.Run(context.Background(), items(map[string]any{"id": "A"}, map[string]any{"id": "B"}), sink)
	require.NoError(t, err)

	assert.EqualValues(t, 2, report.WriteFailed)
	assert.Len(t, sink.errors, 2)
}

func TestRun_Concurrent(t *testing.T) {
	detail := func(_ context.Context, id string) (map[string]any, error) {
		return map[string]any{"stake": id}, nil
	}
	e, err := New(Config{IDField: "id", Detail: detail, Concurrency: 4})
	require.NoError(t, err)

	var input []record.Item
	for i := 0; i < 40; i++ {
		input = append(input, map[string]any{"id": fmt.Sprintf("V%02d", i)})
	}

	sink := &memSink{}
	report, err := e.Run(context.Background(), input, sink)
	require.NoError(t, err)

	assert.EqualValues(t, 40, report.Appended)
	ids := make([]string, 0, len(sink.records))
	for _, rec := range sink.records {
		ids = append(ids, rec.SourceID())
		assert.Equal(t, rec.SourceID(), rec["stake"])
	}
	sort.Strings(ids)
	assert.Equal(t, "V00", ids[0])
	assert.Equal(t, "V39", ids[39])
}

func TestRun_Cancelled(t *testing.T) {
	e, err := New(Config{IDField: "id"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memSink{}
	_, err = e.Run(ctx, items(map[string]any{"id": "A"}), sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.records)
}

func TestRun_SourceItemNotMutated(t *testing.T) {
	e, err := New(Config{IDField: "id", CountFields: []string{"list"}})
	require.NoError(t, err)

	item := map[string]any{"id": "A", "list": []any{1, 2}}
	_, err = e.Run(context.Background(), items(item), &memSink{})
	require.NoError(t, err)

	assert.Equal(t, []any{1, 2}, item["list"])
	_, hasSource := item[record.SourceIDKey]
	assert.False(t, hasSource)
}
