package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// collectCounter reads the current value from a CounterVec for the given label
// values. Returns 0 if no matching series has been observed yet.
func collectCounter(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	ch := make(chan prometheus.Metric, 64)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

func collectHistogramCount(hv *prometheus.HistogramVec, labels prometheus.Labels) uint64 {
	ch := make(chan prometheus.Metric, 64)
	hv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range pairs {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func newMetricsRouter(status int) *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(status) })
	return r
}

// ---------------------------------------------------------------------------
// MetricsMiddleware tests
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/sessions/:id", "status": "200"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)
	beforeHist := collectHistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/sessions/:id"})

	w := httptest.NewRecorder()
	newMetricsRouter(http.StatusOK).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/5f0c", nil))

	if after := collectCounter(telemetry.HTTPRequestsTotal, labels); after-before != 1 {
		t.Errorf("http_requests_total delta = %.0f, want 1", after-before)
	}
	if after := collectHistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/sessions/:id"}); after <= beforeHist {
		t.Errorf("duration sample count did not increase: before=%d after=%d", beforeHist, after)
	}
	if v := collectCounter(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "/sessions/5f0c"}); v != 0 {
		t.Error("raw URL used as path label")
	}
}

func TestMetricsMiddleware_ErrorStatus(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/sessions/:id", "status": "500"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	w := httptest.NewRecorder()
	newMetricsRouter(http.StatusInternalServerError).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/x", nil))

	if after := collectCounter(telemetry.HTTPRequestsTotal, labels); after-before != 1 {
		t.Errorf("status=500 delta = %.0f, want 1", after-before)
	}
}

func TestMetricsMiddleware_NoRoute(t *testing.T) {
	labels := prometheus.Labels{"path": "<no-route>", "status": "404"}
	before := collectCounter(telemetry.HTTPRequestsTotal, labels)

	r := gin.New()
	r.Use(MetricsMiddleware())
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if after := collectCounter(telemetry.HTTPRequestsTotal, labels); after-before != 1 {
		t.Errorf("<no-route> delta = %.0f, want 1", after-before)
	}
}
