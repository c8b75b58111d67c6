package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"journaling-go/internal/config"
	"journaling-go/internal/filter"
	"journaling-go/internal/frame"
	"journaling-go/internal/handlers"
	"journaling-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubRuns struct {
	runs  []models.PipelineRun
	err   error
	limit int
}

func (s *stubRuns) ListRuns(_ context.Context, limit int) ([]models.PipelineRun, error) {
	s.limit = limit
	return s.runs, s.err
}

func newServer(t *testing.T, runs handlers.RunLister) (*gin.Engine, *config.Config, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conf, err := config.Load(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	r := Setup(conf, log, handlers.NewResultsHandler(conf, log), handlers.NewRunsHandler(runs, log))
	return r, conf, logs
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAndSecureHeaders(t *testing.T) {
	r, _, logs := newServer(t, nil)
	w := get(r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, 1, logs.FilterMessage("Request served").Len())
	assert.Equal(t, "/healthz", logs.FilterMessage("Request served").All()[0].ContextMap()["route"])
}

func TestParticipantsBeforeAndAfterRun(t *testing.T) {
	r, conf, logs := newServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/participants").Code)
	assert.Equal(t, 1, logs.FilterMessage("Client error").Len())

	f := frame.New([]string{"ParticipantID", "StudyGroup"}, [][]string{{"P1", "A"}, {"P2", "B"}})
	require.NoError(t, f.WriteCSV(conf.ProcessedPath(models.SnapshotParticipantsFinal)))

	w := get(r, "/api/participants")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count        int                 `json:"count"`
		Participants []map[string]string `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "B", body.Participants[1]["StudyGroup"])
}

func TestReport(t *testing.T) {
	r, conf, _ := newServer(t, nil)
	reports := []models.StageReport{models.NewStageReport(1, "complete mental health data", "entries", 10, 8)}
	require.NoError(t, filter.WriteReport(conf.ProcessedPath(models.FinalFilterReport), reports))

	w := get(r, "/api/report")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Stages []models.StageReport `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, reports, body.Stages)
}

func TestRuns(t *testing.T) {
	r, _, _ := newServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/runs").Code)

	store := &stubRuns{runs: []models.PipelineRun{{ID: "r1", Command: "run", Status: "succeeded"}}}
	r, _, _ = newServer(t, store)
	w := get(r, "/api/runs?limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, store.limit)
	assert.Contains(t, w.Body.String(), `"r1"`)

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/runs?limit=x").Code)

	store.err = errors.New("connection refused")
	assert.Equal(t, http.StatusInternalServerError, get(r, "/api/runs").Code)
}
