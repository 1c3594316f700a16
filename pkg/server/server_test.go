package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-biohub/pkg/config"
	"github.com/soundprediction/go-biohub/pkg/report"
	"github.com/soundprediction/go-biohub/pkg/server"
	"github.com/soundprediction/go-biohub/pkg/server/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geneLog = `#{"bot_name": "YeastBot", "run_id": "20161025_11:40", "run_name": "gene", "domain": "gene"}
INFO, 10/25/2016 11:40:24, 856305, CREATE, Q27547288, P351
INFO, 10/25/2016 11:40:30, 856306, UPDATE, Q27547289, P351
ERROR, 10/25/2016 11:42:10, 856308, "missing stop position", , P351
`

func setup(t *testing.T) (http.Handler, *report.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store, err := report.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitialSetup(ctx))

	path := filepath.Join(t.TempDir(), "YeastBot_gene-20161025_11:40.log")
	require.NoError(t, os.WriteFile(path, []byte(geneLog), 0o644))
	res, err := store.ProcessLog(ctx, path)
	require.NoError(t, err)

	srv := server.New(config.ServerConfig{Mode: gin.TestMode}, store, nil)
	srv.Setup()
	return srv.Handler(), store, res.BotRun
}

func get(t *testing.T, h http.Handler, url string, v any) int {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	if v != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
	}
	return w.Code
}

func TestHealth(t *testing.T) {
	h, _, _ := setup(t)

	var resp dto.HealthResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/health", &resp))
	assert.Equal(t, "healthy", resp.Status)

	assert.Equal(t, http.StatusOK, get(t, h, "/ready", &resp))
	assert.Equal(t, "ok", resp.Checks["report"])
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReady_Unavailable(t *testing.T) {
	_, store, _ := setup(t)
	srv := server.New(config.ServerConfig{Mode: gin.TestMode}, store, nil)
	srv.AddCheck("staging", downPinger{})
	srv.Setup()

	var resp dto.HealthResponse
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/ready", &resp))
	assert.Equal(t, "connection refused", resp.Checks["staging"])
}

func TestBots(t *testing.T) {
	h, _, _ := setup(t)

	var list dto.BotList
	assert.Equal(t, http.StatusOK, get(t, h, "/api/bots", &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "YeastBot", list.Bots[0].Name)

	var bot report.Bot
	assert.Equal(t, http.StatusOK, get(t, h, "/api/bots/YeastBot", &bot))
	assert.Equal(t, "GSS", bot.Maintainer)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/bots/NoBot", &errResp))
	assert.Equal(t, "not_found", errResp.Error)
}

func TestRuns(t *testing.T) {
	h, _, id := setup(t)

	var list dto.RunList
	assert.Equal(t, http.StatusOK, get(t, h, "/api/runs?run_name=gene", &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, map[string]int{"CREATE": 1, "UPDATE": 1, "ERROR": 1}, list.Runs[0].Actions)

	assert.Equal(t, http.StatusOK, get(t, h, "/api/runs?run_name=protein", &list))
	assert.Equal(t, 0, list.Total)
	assert.NotNil(t, list.Runs)

	var summary dto.RunSummary
	url := "/api/runs/" + jsonID(id) + "/summary"
	assert.Equal(t, http.StatusOK, get(t, h, url, &summary))
	assert.Equal(t, "gene", summary.RunName)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "missing stop position", summary.Errors[0].Msg)

	var run report.BotRun
	assert.Equal(t, http.StatusOK, get(t, h, "/api/runs/"+jsonID(id), &run))
	assert.Equal(t, "20161025_11:40", run.RunID)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/runs/abc", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs/999", nil))
}

func TestLogs(t *testing.T) {
	h, _, id := setup(t)

	var list dto.LogList
	assert.Equal(t, http.StatusOK, get(t, h, "/api/logs?action=UPDATE", &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Q27547289", list.Logs[0].WDID)

	assert.Equal(t, http.StatusOK, get(t, h, "/api/logs?wdid=Q27547288&bot_run="+jsonID(id), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "CREATE", list.Logs[0].Action)

	assert.Equal(t, http.StatusOK, get(t, h, "/api/logs?limit=2", &list))
	assert.Equal(t, 2, list.Total)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/logs?bot_run=x", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/logs?limit=-1", nil))
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
