package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/internal/handler"
	"github.com/jonesrussell/north-cloud/mirror/internal/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())

	m.RecordRun(metrics.StatusSucceeded, time.Second)
	m.RecordRun(metrics.StatusFailed, time.Second)
	m.RecordRun(metrics.StatusSucceeded, 2*time.Second)
	m.ObserveDispatch(handler.NameImage, handler.Rewritten, 0)
	m.ObserveDispatch(handler.NameWebVideo, handler.Failed, handler.Unscrapable)
	m.ObserveFallback(handler.Broken)
	m.ObserveFallback(handler.Broken)
	m.ObserveTriageHit()

	assert.InDelta(t, 2, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.StatusSucceeded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DispatchTotal.WithLabelValues(handler.NameWebVideo, "failed")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Fallbacks.WithLabelValues("broken")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TriageHits), 0)
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	m.ObserveFetch(10*time.Millisecond, nil)
	m.ObserveFetch(10*time.Millisecond, errors.New("timeout"))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `mirror_fetch_duration_seconds_count{result="error"} 1`)
	assert.Contains(t, w.Body.String(), `mirror_fetch_duration_seconds_count{result="ok"} 1`)
}

func TestGinMiddleware(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/api/v1/runs/:id", func(c *gin.Context) {
		assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPInFlight), 0)
		c.Status(http.StatusNotFound)
	})

	for _, path := range []string{"/api/v1/runs/a", "/api/v1/runs/b", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/runs/:id", "404")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.HTTPInFlight), 0)
}
