package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n\n  \n{\"b\":2}\nnot json\n"), 0o644))

	var got []int
	var raws []string
	err := Scan(path, func(line int, raw []byte, err error) error {
		require.NoError(t, err)
		got = append(got, line)
		raws = append(raws, string(raw))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 5}, got)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, "not json"}, raws)
}

func TestScan_StopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n3\n"), 0o644))

	stop := errors.New("stop")
	calls := 0
	err := Scan(path, func(int, []byte, error) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestScan_OversizedLineIsSkipped(t *testing.T) {
	defer func(prev int) { maxLineBytes = prev }(maxLineBytes)
	maxLineBytes = 8

	path := filepath.Join(t.TempDir(), "s.jsonl")
	long := strings.Repeat("x", 100*1024)
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n"+long+"\n{\"b\":2}\n12345678"), 0o644))

	var lines []int
	var raws []string
	var tooLong []int
	err := Scan(path, func(line int, raw []byte, err error) error {
		if err != nil {
			assert.ErrorIs(t, err, ErrLineTooLong)
			assert.Nil(t, raw)
			tooLong = append(tooLong, line)
			return nil
		}
		lines = append(lines, line)
		raws = append(raws, string(raw))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, tooLong)
	assert.Equal(t, []int{1, 3, 4}, lines)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, "12345678"}, raws)
}

func TestLoadIndex_SkipsOversizedLine(t *testing.T) {
	defer func(prev int) { maxLineBytes = prev }(maxLineBytes)
	maxLineBytes = 32

	path := filepath.Join(t.TempDir(), "s.jsonl")
	content := `{"source_id":"A"}` + "\n" +
		`{"source_id":"B","blob":"` + strings.Repeat("y", 64) + `"}` + "\n" +
		`{"source_id":"C"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	assert.True(t, idx.Has("A"))
	assert.False(t, idx.Has("B"))
	assert.True(t, idx.Has("C"))
}

func TestScan_MissingFile(t *testing.T) {
	err := Scan(filepath.Join(t.TempDir(), "absent.jsonl"), func(int, []byte, error) error { return nil })
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	content := `{"source_id":"V1"}
{"source_id":"V2","stake":"5"}
{"nodePubkey":"no-source"}
garbage
{"source_id":"V1"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	idx, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.True(t, idx.Has("V1"))
	assert.True(t, idx.Has("V2"))
	assert.False(t, idx.Has("V3"))
}

func TestLoadIndex_MissingStore(t *testing.T) {
	idx, err := LoadIndex(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Zero(t, idx.Len())

	idx.Add("X")
	assert.True(t, idx.Has("X"))
}

func TestErrorLogSize_Missing(t *testing.T) {
	assert.Zero(t, ErrorLogSize(filepath.Join(t.TempDir(), "nope.txt")))
}
