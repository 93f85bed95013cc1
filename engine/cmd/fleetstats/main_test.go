package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetstats/fleetstats/engine/internal/export"
	"github.com/fleetstats/fleetstats/engine/internal/ws"
	"github.com/fleetstats/fleetstats/pkg/types"
)

// writeInputs writes a ten-node fleet with 30 samples per node and returns
// the config file path.
func writeInputs(t *testing.T, extra string) (cfgPath, textfile string) {
	t.Helper()
	dir := t.TempDir()

	var nodes []types.NodeSnapshot
	var hist []map[string]any
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("node%02d", i)
		nodes = append(nodes, types.NodeSnapshot{ID: id, AbsoluteWeight: 100, Active: true})
		raw := make([]int, 30)
		for j := range raw {
			raw[j] = 950 + i*5
		}
		hist = append(hist, map[string]any{
			"id":      id,
			"samples": map[string]any{types.Period1Month: map[string]any{types.RoleOverall: raw}},
		})
	}
	write := func(name string, v any) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}
	snaps := write("nodes.json", nodes)
	hists := write("histories.json", hist)
	textfile = filepath.Join(dir, "fleetstats.prom")

	cfg := fmt.Sprintf(`
engine:
  periods: [1_month]
inputs:
  snapshots: %s
  histories: %s
export:
  textfile: %s
log:
  level: error
%s`, snaps, hists, textfile, extra)
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, textfile
}

func TestRunCommand_WritesTextfile(t *testing.T) {
	cfgPath, textfile := writeInputs(t, "")

	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", cfgPath, "--env-file", filepath.Join(t.TempDir(), "absent.env")})
	require.NoError(t, root.ExecuteContext(context.Background()))

	fams, err := export.ReadFile(textfile)
	require.NoError(t, err)
	require.Contains(t, fams, export.FamilyAvailability)
	require.Contains(t, fams, export.FamilySampleCount)
	assert.Equal(t, 10.0, fams[export.FamilySampleCount].GetMetric()[0].GetGauge().GetValue())
}

func TestRunCommand_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  min_samples: 0\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", path})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_samples")
}

func TestHTTPHandler_Auth(t *testing.T) {
	t.Setenv("FLEETSTATS_TEST_KEY", "s3cret")
	cfgPath, _ := writeInputs(t, `
server:
  auth:
    mode: apikey
    key_env: FLEETSTATS_TEST_KEY
`)
	cfg, level, err := loadConfig(&rootFlags{configPath: cfgPath})
	require.NoError(t, err)
	a, err := newApp(cfg, level)
	require.NoError(t, err)
	defer a.close()

	_, err = a.runner.RunOnce(context.Background())
	require.NoError(t, err)

	h := a.newHTTPHandler(ws.New(a.store))

	tests := []struct {
		name string
		path string
		key  string
		want int
	}{
		{"api without key", "/api/v1/health", "", http.StatusUnauthorized},
		{"api with key", "/api/v1/health", "s3cret", http.StatusOK},
		{"stats with key", "/api/v1/periods/1_month/stats", "s3cret", http.StatusOK},
		{"stream without key", "/ws/runs", "", http.StatusUnauthorized},
		{"metrics is open", "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("x-api-key", tt.key)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rr.Body.String(), "fleetstats_runs_total"))
}
