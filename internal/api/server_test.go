package api

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/monitor/sampler"
)

type stubSampler struct{}

func (stubSampler) SampleAll(ctx context.Context, watched []string) []sampler.MetricsRow {
	rows := make([]sampler.MetricsRow, len(watched))
	for i, n := range watched {
		rows[i] = sampler.MetricsRow{
			Name:        n,
			PIDs:        []int32{int32(10 * (i + 1)), int32(10*(i+1) + 1)},
			Status:      sampler.Running,
			CPUPercent:  12.5,
			MemoryMB:    64.25,
			LastChecked: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}
	}
	return rows
}

func newTestServer(t *testing.T, initial ...string) (*monitor.Monitor, *httptest.Server) {
	mon := monitor.New(stubSampler{}, monitor.Config{Interval: 5, Names: initial})
	srv := httptest.NewServer(New(mon, Options{
		Metrics:     http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) { _, _ = rw.Write([]byte("metrics")) }),
		MetricsPath: "/metrics",
	}))
	t.Cleanup(func() {
		srv.Close()
		mon.Shutdown()
	})
	return mon, srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return resp.StatusCode, nil
	}
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func processNames(body map[string]interface{}) []string {
	var out []string
	for _, p := range body["processes"].([]interface{}) {
		out = append(out, p.(map[string]interface{})["name"].(string))
	}
	return out
}

func TestStatus(t *testing.T) {
	_, srv := newTestServer(t, "alpha")

	code, body := do(t, srv, http.MethodGet, "/ui/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["running"])
	assert.Equal(t, 5.0, body["interval"])
	assert.Equal(t, []string{"alpha"}, processNames(body))
	assert.Nil(t, body["last_update"])

	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int
		want    []string
		wantErr string
	}{
		{"delimited string", `{"names": "chrome, python; notepad\npython"}`, 200, []string{"alpha", "chrome", "python", "notepad"}, ""},
		{"processes list", `{"processes": ["beta", " BETA ", ""]}`, 200, []string{"alpha", "beta"}, ""},
		{"falls back to processes", `{"names": "", "processes": ["gamma"]}`, 200, []string{"alpha", "gamma"}, ""},
		{"objects and numbers", `{"names": [{"name": "delta"}, 42, true, null]}`, 200, []string{"alpha", "delta", "42"}, ""},
		{"existing name", `{"names": "ALPHA"}`, 200, []string{"alpha"}, ""},
		{"blank list", `{"processes": ["", "   "]}`, 409, nil, "empty names"},
		{"blank string", `{"names": " ,;\n"}`, 409, nil, "empty names"},
		{"missing", `{"other": 1}`, 409, nil, "missing 'names' or 'processes'"},
		{"falsy names only", `{"names": ""}`, 409, nil, "missing 'names' or 'processes'"},
		{"not json", `chrome`, 409, nil, "invalid payload (expected JSON)"},
		{"not an object", `["chrome"]`, 409, nil, "invalid payload (expected JSON)"},
		{"null", `null`, 409, nil, "invalid payload (expected JSON)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestServer(t, "alpha")
			code, body := do(t, srv, http.MethodPost, "/ui/add", tt.body)
			assert.Equal(t, tt.code, code)
			if tt.wantErr != "" {
				assert.Equal(t, map[string]interface{}{"ok": false, "error": tt.wantErr}, body)
				_, st := do(t, srv, http.MethodGet, "/ui/status", "")
				assert.Equal(t, []string{"alpha"}, processNames(st))
				return
			}
			assert.Equal(t, tt.want, processNames(body))
		})
	}
}

func TestRemove(t *testing.T) {
	_, srv := newTestServer(t, "Python.exe", "test1", "test2")

	code, body := do(t, srv, http.MethodPost, "/ui/remove", `{"name": " python.EXE "}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"test1", "test2"}, processNames(body))

	code, body = do(t, srv, http.MethodPost, "/ui/remove", `{"name": "nonexistent_process"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"test1", "test2"}, processNames(body))

	for _, bad := range []string{`{"name": "   "}`, `{}`, `{"name": null}`} {
		code, body = do(t, srv, http.MethodPost, "/ui/remove", bad)
		assert.Equal(t, http.StatusConflict, code, bad)
		assert.Equal(t, "missing name", body["error"])
	}

	code, body = do(t, srv, http.MethodPost, "/ui/remove", `{{`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid payload (expected JSON)", body["error"])
}

func TestInterval(t *testing.T) {
	_, srv := newTestServer(t)

	for payload, want := range map[string]float64{
		`{"interval": "1"}`:   1,
		`{"interval": "1.0"}`: 1,
		`{"interval": 1.5}`:   1.5,
		`{"interval": "3.5"}`: 3.5,
	} {
		code, body := do(t, srv, http.MethodPost, "/ui/interval", payload)
		assert.Equal(t, http.StatusOK, code, payload)
		assert.Equal(t, want, body["interval"], payload)
	}

	code, body := do(t, srv, http.MethodPost, "/ui/interval", `{"interval": 2}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["interval"])

	code, _ = do(t, srv, http.MethodPost, "/ui/interval", `{"update_interval": " 3.5 "}`)
	assert.Equal(t, http.StatusOK, code)

	_, body = do(t, srv, http.MethodGet, "/ui/status", "")
	assert.Equal(t, 3.5, body["interval"])

	bad := map[string]string{
		`{"interval": "0.999"}`: "interval must be >= 1.0",
		`{"interval": 1e10}`:    "interval is too large",
		`{"interval": 0.5}`:     "interval must be >= 1.0",
		`{"interval": "-2"}`:    "interval must be >= 1.0",
		`{"interval": "fast"}`:  "invalid interval",
		`{"interval": "NaN"}`:   "invalid interval",
		`{"interval": true}`:    "invalid interval",
		`{"interval": [2]}`:     "invalid interval",
		`{"interval": 0}`:       "invalid interval",
		`{}`:                    "invalid interval",
		`oops`:                  "invalid interval",
	}
	for payload, msg := range bad {
		code, body := do(t, srv, http.MethodPost, "/ui/interval", payload)
		assert.Equal(t, http.StatusConflict, code, payload)
		assert.Equal(t, msg, body["error"], payload)
	}

	_, body = do(t, srv, http.MethodGet, "/ui/status", "")
	assert.Equal(t, 3.5, body["interval"])
}

func TestIntervalWireFormat(t *testing.T) {
	_, srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/ui/interval", `{"interval": 2}`)

	resp, err := srv.Client().Get(srv.URL + "/ui/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := ioutil.ReadAll(resp.Body)
	assert.Contains(t, string(raw), `"interval":2.0`)
}

func TestStartStopAndResults(t *testing.T) {
	_, srv := newTestServer(t, "alpha")

	code, body := do(t, srv, http.MethodGet, "/ui/results", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Nil(t, body)

	code, body = do(t, srv, http.MethodPost, "/ui/start", `{"interval": 2, "processes": [{"name": "beta"}, "gamma"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["is_running"])
	assert.Equal(t, 2.0, body["interval"])
	assert.Equal(t, []string{"beta", "gamma"}, processNames(body))

	var results map[string]interface{}
	require.Eventually(t, func() bool {
		code, body := do(t, srv, http.MethodGet, "/ui/results", "")
		if code != http.StatusOK || body["count"].(float64) != 2 {
			return false
		}
		results = body
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, true, results["running"])
	rows := results["results"].([]interface{})
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "beta", first["name"])
	assert.Equal(t, "running", first["status"])
	assert.Equal(t, []interface{}{10.0, 11.0}, first["pids"])
	assert.Equal(t, 10.0, first["pid"])
	assert.Equal(t, 12.5, first["cpu_percent"])
	assert.Equal(t, 64.25, first["memory_mb"])
	assert.Equal(t, "gamma", rows[1].(map[string]interface{})["name"])

	code, body = do(t, srv, http.MethodPost, "/ui/stop", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["is_running"])

	code, _ = do(t, srv, http.MethodGet, "/ui/results", "")
	assert.Equal(t, http.StatusNoContent, code)

	// the watch-list survives a stop
	_, body = do(t, srv, http.MethodGet, "/ui/status", "")
	assert.Equal(t, []string{"beta", "gamma"}, processNames(body))
	assert.Equal(t, false, body["running"])
}

func TestStartIsIdempotentAndTolerant(t *testing.T) {
	_, srv := newTestServer(t, "alpha")

	for _, payload := range []string{"", "not json", `{}`, `{"processes": []}`} {
		code, body := do(t, srv, http.MethodPost, "/ui/start", payload)
		assert.Equal(t, http.StatusOK, code, payload)
		assert.Equal(t, []string{"alpha"}, processNames(body))
		assert.Equal(t, 5.0, body["interval"])
	}

	code, body := do(t, srv, http.MethodPost, "/ui/start", `{"interval": 0.2}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "interval must be >= 1.0", body["error"])
}

func TestResultsEmptyWatchList(t *testing.T) {
	_, srv := newTestServer(t)
	code, _ := do(t, srv, http.MethodPost, "/ui/start", `{}`)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, srv, http.MethodGet, "/ui/results", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Nil(t, body)
}

func TestDashboardAndRouting(t *testing.T) {
	_, srv := newTestServer(t, "<script>")

	resp, err := srv.Client().Get(srv.URL + "/")
	require.NoError(t, err)
	page, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(page), "PID Patrol")
	assert.Contains(t, string(page), "&lt;script&gt;")

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	m, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "metrics", string(m))

	code, _ := do(t, srv, http.MethodGet, "/ui/add", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
}
