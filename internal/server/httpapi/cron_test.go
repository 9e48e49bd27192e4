package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/gophblog/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronCleanup(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.CronSecret = "s3cret" })
	h.sweeper.res = &services.SweepResult{Deleted: 3, Failed: 1}

	call := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/cron/cleanup", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer wrong").Code)
	assert.Zero(t, h.sweeper.calls)

	rec := call("Bearer s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"deletedCount":3,"failedCount":1}`, rec.Body.String())
	assert.Equal(t, 1, h.sweeper.calls)

	metrics := h.do(http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "gophblog_media_swept_total 3")
	assert.Contains(t, metrics.Body.String(), "gophblog_media_sweep_failures_total 1")
}

func TestCronCleanup_NothingToClean(t *testing.T) {
	h := newHarness(t)
	h.sweeper.res = &services.SweepResult{}

	rec := h.do(http.MethodGet, "/api/cron/cleanup", "", false)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, 1, h.sweeper.calls)
}

func TestCronCleanup_ListFailure(t *testing.T) {
	h := newHarness(t)
	h.sweeper.res, h.sweeper.err = nil, errors.New("db gone")

	rec := h.do(http.MethodGet, "/api/cron/cleanup", "", false)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"deletedCount":0,"failedCount":0,"error":"cleanup failed"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	h = newHarness(t, func(d *Deps, _ *Options) {
		d.Health = func(ctx context.Context) error { return errors.New("db down") }
	})
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/health", "", false).Code)
}

func TestMetrics_CountsRequestsByRoute(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/api/posts/missing", "", false)

	body := h.do(http.MethodGet, "/metrics", "", false).Body.String()
	assert.Contains(t, body, `gophblog_http_requests_total{code="404",method="GET",route="/api/posts/{id}"} 1`)
}
