package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/validator-atlas/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const avalanchePath = "/v2/network/mainnet/staking/validations"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// setup starts a mock avalanche listing and writes a config pointing at it.
func setup(t *testing.T) (cfgPath, outDir string) {
	t.Helper()
	t.Setenv("REDIS_URL", "")
	t.Setenv("ATLAS_OUTPUT_DIR", "")
	t.Setenv("ATLAS_LOG_LEVEL", "")

	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)
	mock.SetPages(avalanchePath,
		`[{"nodeId":"NodeID-A","node":{"ip":"203.0.113.7"},"stake":{"total":"10"}},{"nodeId":"NodeID-B","node":{"ip":""},"stake":{"total":"20"}}]`,
		`[{"nodeId":"NodeID-C","node":{"ip":""},"stake":{"total":"30"}}]`,
	)
	mock.SetIPInfo("/ipinfo", "203.0.113.7", "48.8566,2.3522")

	dir := t.TempDir()
	outDir = filepath.Join(dir, "out")
	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`
output_dir: %s
http:
  retry:
    max_attempts: 1
geo:
  base_url: %s/ipinfo
  token: test-token
chains:
  avalanche:
    listing_base_url: %s
`, outDir, mock.URL(), mock.URL())
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, outDir
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	newMux().ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# HELP")
}

func TestChainsCmd(t *testing.T) {
	t.Setenv("ATLAS_OUTPUT_DIR", "")
	out, err := execute(t, "chains")
	require.NoError(t, err)

	assert.Contains(t, out, "CHAIN")
	assert.Regexp(t, `aptos\s+listing\+detail`, out)
	assert.Regexp(t, `avalanche\s+listing\+geo`, out)
	assert.Regexp(t, `solana\s+listing\+detail`, out)
}

func TestRunCmd(t *testing.T) {
	cfgPath, outDir := setup(t)

	out, err := execute(t, "run", "avalanche", "--config", cfgPath)
	require.NoError(t, err)

	assert.Regexp(t, `avalanche\s+2\s+3\s+3\s+0\s+3\s+false`, out)

	data, err := os.ReadFile(filepath.Join(outDir, "avalanche.csv"))
	require.NoError(t, err)
	assert.Equal(t, "uuid,latitude,longitude,stake_weight\n"+
		"NodeID-A,48.8566,2.3522,10\n"+
		"NodeID-B,0,0,20\n"+
		"NodeID-C,0,0,30\n", string(data))

	// The CSV can be rebuilt from the checkpoint store alone.
	require.NoError(t, os.Remove(filepath.Join(outDir, "avalanche.csv")))
	out, err = execute(t, "normalize", "avalanche", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 rows")
	assert.FileExists(t, filepath.Join(outDir, "avalanche.csv"))
}

func TestRunCmd_OutFlag(t *testing.T) {
	cfgPath, _ := setup(t)
	other := t.TempDir()

	_, err := execute(t, "run", "avalanche", "--config", cfgPath, "--out", other)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(other, "avalanche.csv"))
}

func TestFetchAndMergeCmds(t *testing.T) {
	cfgPath, outDir := setup(t)

	out, err := execute(t, "fetch", "avalanche", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "saved 2 pages (complete)")
	assert.FileExists(t, filepath.Join(outDir, "avalanche-pages", "validations_page_2.json"))

	out, err = execute(t, "merge", "avalanche", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "merged 3 items from 2 pages")
	assert.FileExists(t, filepath.Join(outDir, "avalanche_validations.json"))
}

func TestUnknownChain(t *testing.T) {
	cfgPath, _ := setup(t)

	_, err := execute(t, "run", "cosmos", "--config", cfgPath)
	assert.ErrorContains(t, err, "cosmos")

	_, err = execute(t, "fetch", "--config", cfgPath)
	assert.Error(t, err)
}

func TestBadConfig(t *testing.T) {
	_, err := execute(t, "chains", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load config")
}
