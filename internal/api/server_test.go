package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serptrend/serptrend/internal/run"
	"github.com/serptrend/serptrend/internal/serp"
)

type stubController struct {
	triggerErr error
	lastOpts   run.Options
	cancelled  bool
	running    bool
	latest     *serp.RunSummary
}

func (c *stubController) Trigger(opts run.Options) error {
	c.lastOpts = opts
	return c.triggerErr
}

func (c *stubController) Cancel() bool {
	was := c.running
	c.cancelled = true
	c.running = false
	return was
}

func (c *stubController) Running() bool { return c.running }

func (c *stubController) Latest() (serp.RunSummary, bool) {
	if c.latest == nil {
		return serp.RunSummary{}, false
	}
	return *c.latest, true
}

type stubIDs struct{}

func (stubIDs) NewID() (string, error) { return "req-1", nil }

func newTestHandler(ctrl *stubController) http.Handler {
	return NewServer(ctrl, stubIDs{}, nil).Handler()
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&stubController{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&stubController{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerRun(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{}
	h := newTestHandler(ctrl)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"overwrite":true,"date":"2026-08-15"}`))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, ctrl.lastOpts.Overwrite)
	require.Equal(t, "2026-08-15", ctrl.lastOpts.Date.Format(serp.ColumnDateLayout))
}

func TestTriggerRunEmptyBody(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{}
	h := newTestHandler(ctrl)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.False(t, ctrl.lastOpts.Overwrite)
}

func TestTriggerRunConflict(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{triggerErr: serp.ErrRunInProgress}
	h := newTestHandler(ctrl)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerRunBadDate(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&stubController{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"date":"15-Aug-2026"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRun(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{running: true}
	h := newTestHandler(ctrl)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs/cancel", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, ctrl.cancelled)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs/cancel", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLatestRun(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{}
	h := newTestHandler(ctrl)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	ctrl.latest = &serp.RunSummary{RunID: "abc", State: serp.RunStateDone, ColumnDate: "2026-08-30"}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"run_id":"abc"`)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&stubController{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-chosen")
	h.ServeHTTP(rec, req)
	require.Equal(t, "caller-chosen", rec.Header().Get("X-Request-ID"))
}
