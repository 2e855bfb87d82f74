package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestCounter(t *testing.T) {
	c := NewCounter()

	c.Inc()
	c.Add(4)
	if c.Get() != 5 {
		t.Errorf("Counter = %d, expected 5", c.Get())
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if c.Get() != 1005 {
		t.Errorf("Counter after concurrent increments = %d, expected 1005", c.Get())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge()

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Get() != 9 {
		t.Errorf("Gauge = %d, expected 9", g.Get())
	}
}

func TestHistogramObserve(t *testing.T) {
	h := NewHistogram()

	h.Observe(3)
	h.Observe(30)
	h.Observe(20000) // beyond the last bound, lands only in +Inf

	snap := h.Snapshot()
	if snap.Count != 3 {
		t.Errorf("Count = %d, expected 3", snap.Count)
	}
	if snap.Sum != 20033 {
		t.Errorf("Sum = %.0f, expected 20033", snap.Sum)
	}

	// Buckets are cumulative over the bounds 1 5 10 25 50 ... 10000
	expected := []int64{0, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 2}
	if len(snap.Counts) != len(expected) {
		t.Fatalf("Counts has %d buckets, expected %d", len(snap.Counts), len(expected))
	}
	for i, want := range expected {
		if snap.Counts[i] != want {
			t.Errorf("Bucket le=%v count = %d, expected %d", snap.Bounds[i], snap.Counts[i], want)
		}
	}
}

func TestHistogramSnapshotIsCopy(t *testing.T) {
	h := NewHistogram()
	h.Observe(3)

	snap := h.Snapshot()
	h.Observe(3)

	if snap.Count != 1 || snap.Counts[1] != 1 {
		t.Error("Snapshot must not see observations made after it was taken")
	}
}

func TestHistogramSnapshotMarshalsToJSON(t *testing.T) {
	h := NewHistogram()
	h.Observe(42)

	data, err := json.Marshal(h.Snapshot())
	if err != nil {
		t.Fatalf("Snapshot must marshal to JSON: %v", err)
	}
	for _, field := range []string{"bounds", "counts", "sum", "count"} {
		if !strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("Expected field %q in %s", field, data)
		}
	}
}

func TestTimer(t *testing.T) {
	h := NewHistogram()

	timer := NewTimer(h)
	time.Sleep(2 * time.Millisecond)
	timer.ObserveDuration()

	snap := h.Snapshot()
	if snap.Count != 1 {
		t.Errorf("Count = %d, expected 1", snap.Count)
	}
	if snap.Sum <= 0 {
		t.Errorf("Sum = %v, expected a positive duration", snap.Sum)
	}
}

func TestRenderPrometheus(t *testing.T) {
	h := NewHistogram()
	h.Observe(3)
	h.Observe(30)
	h.Observe(20000)

	snapshot := map[string]any{
		"pages_rendered_total":     int64(7),
		"files_total":              int64(42),
		"site_refresh_duration_ms": h.Snapshot(),
	}

	out := renderPrometheus(snapshot)

	// _total names are counters, plain numbers are gauges
	if !strings.Contains(out, "# TYPE pages_rendered_total counter") {
		t.Errorf("Expected a counter TYPE line, got:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE files_total gauge") {
		t.Errorf("Expected a gauge TYPE line, got:\n%s", out)
	}
	if !strings.Contains(out, "pages_rendered_total 7\n") {
		t.Errorf("Expected the counter value, got:\n%s", out)
	}

	// Histograms carry their buckets, the +Inf bucket and sum/count
	for _, line := range []string{
		"# TYPE site_refresh_duration_ms histogram",
		`site_refresh_duration_ms_bucket{le="1"} 0`,
		`site_refresh_duration_ms_bucket{le="50"} 2`,
		`site_refresh_duration_ms_bucket{le="+Inf"} 3`,
		"site_refresh_duration_ms_sum 20033.00",
		"site_refresh_duration_ms_count 3",
	} {
		if !strings.Contains(out, line) {
			t.Errorf("Expected %q, got:\n%s", line, out)
		}
	}

	// Output is sorted by name so scrapes diff cleanly
	if strings.Index(out, "files_total") > strings.Index(out, "pages_rendered_total") {
		t.Error("Expected names in lexical order")
	}
	if out != renderPrometheus(snapshot) {
		t.Error("Expected identical output for identical snapshots")
	}
}

func TestSnapshotCoversAllMetrics(t *testing.T) {
	mc := NewMetricsCollector()
	snapshot := mc.Snapshot()

	for _, name := range []string{
		"http_requests_total",
		"source_changes_total",
		"site_refresh_duration_ms",
		"route_rebuild_duration_ms",
		"rate_limit_hits_total",
		"uptime_seconds",
	} {
		if _, ok := snapshot[name]; !ok {
			t.Errorf("Expected %s in the snapshot", name)
		}
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	mc := NewMetricsCollector()
	mc.UpdateSystemMetrics()

	if mc.GoRoutinesCount.Get() <= 0 {
		t.Error("Expected a positive goroutine count")
	}
	if mc.MemoryUsage.Get() <= 0 {
		t.Error("Expected a positive memory usage")
	}
}

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mc := NewMetricsCollector()
	router := gin.New()
	router.Use(mc.MetricsMiddleware())

	var inFlight int64
	router.GET("/page", func(c *gin.Context) {
		inFlight = mc.HTTPRequestsInFlight.Get()
		c.String(http.StatusOK, "hello")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))

	if inFlight != 1 {
		t.Errorf("In-flight during the request = %d, expected 1", inFlight)
	}
	if mc.HTTPRequestsInFlight.Get() != 0 {
		t.Errorf("In-flight after the request = %d, expected 0", mc.HTTPRequestsInFlight.Get())
	}
	if mc.HTTPRequestsTotal.Get() != 1 {
		t.Errorf("Requests total = %d, expected 1", mc.HTTPRequestsTotal.Get())
	}
	if mc.HTTPResponseSize.Snapshot().Count != 1 {
		t.Error("Expected one response size observation")
	}
	if mc.HTTPErrorsTotal.Get() != 0 {
		t.Errorf("Errors total = %d, expected 0", mc.HTTPErrorsTotal.Get())
	}
}

func TestMetricsMiddlewareCountsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mc := NewMetricsCollector()
	router := gin.New()
	router.Use(mc.MetricsMiddleware())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if mc.HTTPErrorsTotal.Get() != 1 {
		t.Errorf("Errors total = %d, expected 1", mc.HTTPErrorsTotal.Get())
	}
	if mc.RouteNotFoundTotal.Get() != 1 {
		t.Errorf("Route not found total = %d, expected 1", mc.RouteNotFoundTotal.Get())
	}
}

func TestMetricsMiddlewareSkipsOwnEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mc := NewMetricsCollector()
	router := gin.New()
	router.Use(mc.MetricsMiddleware())
	router.GET("/metrics", mc.PrometheusHandler())
	router.GET("/metrics.json", mc.MetricsHandler())

	for _, path := range []string{"/metrics", "/metrics.json"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, expected 200", path, rec.Code)
		}
	}

	if mc.HTTPRequestsTotal.Get() != 0 {
		t.Errorf("Scrapes must not count themselves, requests total = %d", mc.HTTPRequestsTotal.Get())
	}
}

func TestPrometheusHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mc := NewMetricsCollector()
	mc.PagesRenderedTotal.Add(3)

	router := gin.New()
	router.GET("/metrics", mc.PrometheusHandler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "pages_rendered_total 3") {
		t.Errorf("Expected the rendered counter, got:\n%s", rec.Body.String())
	}
}

func TestMetricsHandlerJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mc := NewMetricsCollector()
	router := gin.New()
	router.GET("/metrics.json", mc.MetricsHandler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var payload struct {
		Metrics map[string]json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	if _, ok := payload.Metrics["http_requests_total"]; !ok {
		t.Error("Expected http_requests_total in the JSON payload")
	}
	if _, ok := payload.Metrics["site_refresh_duration_ms"]; !ok {
		t.Error("Expected site_refresh_duration_ms in the JSON payload")
	}
}
