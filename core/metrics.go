package core

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Counter is a monotonically increasing counter.
type Counter struct {
	value int64
}

func NewCounter() *Counter { return &Counter{} }

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

// Add adds the given value to the counter.
func (c *Counter) Add(value int64) {
	atomic.AddInt64(&c.value, value)
}

// Get returns the current counter value.
func (c *Counter) Get() int64 {
	return atomic.LoadInt64(&c.value)
}

// Gauge is a value that can go up and down.
type Gauge struct {
	value int64
}

func NewGauge() *Gauge { return &Gauge{} }

// Set sets the gauge to the given value.
func (g *Gauge) Set(value int64) {
	atomic.StoreInt64(&g.value, value)
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1)
}

// Get returns the current gauge value.
func (g *Gauge) Get() int64 {
	return atomic.LoadInt64(&g.value)
}

// latencyBounds are the cumulative histogram bounds, in milliseconds.
// They cover everything from a cached page serve to a full site rebuild.
var latencyBounds = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram tracks the distribution of durations across latencyBounds.
type Histogram struct {
	mu     sync.Mutex
	counts []int64
	sum    float64
	count  int64
}

func NewHistogram() *Histogram {
	return &Histogram{counts: make([]int64, len(latencyBounds))}
}

// Observe records a new observation. Buckets are cumulative: an
// observation lands in every bucket whose bound it does not exceed.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++
	for i, bound := range latencyBounds {
		if value <= bound {
			h.counts[i]++
		}
	}
}

// HistogramSnapshot is the export form of a histogram: parallel arrays of
// bucket bounds and cumulative counts, which both the JSON endpoint and
// the Prometheus renderer can consume without caring about map ordering.
type HistogramSnapshot struct {
	Bounds []float64 `json:"bounds"`
	Counts []int64   `json:"counts"`
	Sum    float64   `json:"sum"`
	Count  int64     `json:"count"`
}

// Snapshot returns a consistent copy of the histogram.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make([]int64, len(h.counts))
	copy(counts, h.counts)
	return HistogramSnapshot{
		Bounds: latencyBounds,
		Counts: counts,
		Sum:    h.sum,
		Count:  h.count,
	}
}

// Timer measures a duration into a histogram.
type Timer struct {
	start time.Time
	hist  *Histogram
}

func NewTimer(hist *Histogram) *Timer {
	return &Timer{start: time.Now(), hist: hist}
}

// ObserveDuration records the milliseconds since the timer was created.
func (t *Timer) ObserveDuration() {
	t.hist.Observe(float64(time.Since(t.start).Nanoseconds()) / 1e6)
}

// MetricsCollector holds every metric the engine reports.
type MetricsCollector struct {
	// HTTP
	HTTPRequestsTotal    *Counter
	HTTPRequestDuration  *Histogram
	HTTPRequestsInFlight *Gauge
	HTTPResponseSize     *Histogram
	HTTPErrorsTotal      *Counter

	// Sources
	FilesTotal             *Gauge
	FileProcessingDuration *Histogram
	SourceChanges          *Counter

	// Plugins
	PluginExecutionDuration *Histogram
	PluginErrorsTotal       *Counter
	PluginsRegistered       *Gauge

	// Content
	PostsTotal          *Gauge
	DraftsTotal         *Gauge
	TagsTotal           *Gauge
	PagesRenderedTotal  *Counter
	SiteRefreshDuration *Histogram

	// Search
	SearchQueriesTotal *Counter
	SearchDuration     *Histogram

	// Routes
	RoutesTotal          *Gauge
	RouteRebuildDuration *Histogram
	RouteNotFoundTotal   *Counter

	// System
	GoRoutinesCount *Gauge
	MemoryUsage     *Gauge
	UptimeSeconds   *Gauge

	// Rate limiting
	RateLimitHits   *Counter
	RateLimitBlocks *Counter

	startTime time.Time
}

// NewMetricsCollector creates a collector with all metrics zeroed.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		HTTPRequestsTotal:    NewCounter(),
		HTTPRequestDuration:  NewHistogram(),
		HTTPRequestsInFlight: NewGauge(),
		HTTPResponseSize:     NewHistogram(),
		HTTPErrorsTotal:      NewCounter(),

		FilesTotal:             NewGauge(),
		FileProcessingDuration: NewHistogram(),
		SourceChanges:          NewCounter(),

		PluginExecutionDuration: NewHistogram(),
		PluginErrorsTotal:       NewCounter(),
		PluginsRegistered:       NewGauge(),

		PostsTotal:          NewGauge(),
		DraftsTotal:         NewGauge(),
		TagsTotal:           NewGauge(),
		PagesRenderedTotal:  NewCounter(),
		SiteRefreshDuration: NewHistogram(),

		SearchQueriesTotal: NewCounter(),
		SearchDuration:     NewHistogram(),

		RoutesTotal:          NewGauge(),
		RouteRebuildDuration: NewHistogram(),
		RouteNotFoundTotal:   NewCounter(),

		GoRoutinesCount: NewGauge(),
		MemoryUsage:     NewGauge(),
		UptimeSeconds:   NewGauge(),

		RateLimitHits:   NewCounter(),
		RateLimitBlocks: NewCounter(),

		startTime: time.Now(),
	}
}

// UpdateSystemMetrics refreshes the runtime-derived gauges.
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	mc.GoRoutinesCount.Set(int64(runtime.NumGoroutine()))
	mc.MemoryUsage.Set(int64(memStats.Alloc))
	mc.UptimeSeconds.Set(int64(time.Since(mc.startTime).Seconds()))
}

// Snapshot returns every metric under its exported name. Counters and
// gauges export as int64, histograms as HistogramSnapshot, so the result
// marshals to JSON as-is.
func (mc *MetricsCollector) Snapshot() map[string]any {
	mc.UpdateSystemMetrics()

	return map[string]any{
		"http_requests_total":      mc.HTTPRequestsTotal.Get(),
		"http_request_duration_ms": mc.HTTPRequestDuration.Snapshot(),
		"http_requests_in_flight":  mc.HTTPRequestsInFlight.Get(),
		"http_response_size_bytes": mc.HTTPResponseSize.Snapshot(),
		"http_errors_total":        mc.HTTPErrorsTotal.Get(),

		"files_total":                 mc.FilesTotal.Get(),
		"file_processing_duration_ms": mc.FileProcessingDuration.Snapshot(),
		"source_changes_total":        mc.SourceChanges.Get(),

		"plugin_execution_duration_ms": mc.PluginExecutionDuration.Snapshot(),
		"plugin_errors_total":          mc.PluginErrorsTotal.Get(),
		"plugins_registered":           mc.PluginsRegistered.Get(),

		"posts_total":              mc.PostsTotal.Get(),
		"drafts_total":             mc.DraftsTotal.Get(),
		"tags_total":               mc.TagsTotal.Get(),
		"pages_rendered_total":     mc.PagesRenderedTotal.Get(),
		"site_refresh_duration_ms": mc.SiteRefreshDuration.Snapshot(),

		"search_queries_total": mc.SearchQueriesTotal.Get(),
		"search_duration_ms":   mc.SearchDuration.Snapshot(),

		"routes_total":              mc.RoutesTotal.Get(),
		"route_rebuild_duration_ms": mc.RouteRebuildDuration.Snapshot(),
		"route_not_found_total":     mc.RouteNotFoundTotal.Get(),

		"go_routines_count":  mc.GoRoutinesCount.Get(),
		"memory_usage_bytes": mc.MemoryUsage.Get(),
		"uptime_seconds":     mc.UptimeSeconds.Get(),

		"rate_limit_hits_total":   mc.RateLimitHits.Get(),
		"rate_limit_blocks_total": mc.RateLimitBlocks.Get(),
	}
}

// MetricsMiddleware observes every request except the monitoring
// endpoints themselves, which would otherwise inflate their own numbers.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/metrics" || path == "/metrics.json" {
			c.Next()
			return
		}

		start := time.Now()
		mc.HTTPRequestsInFlight.Inc()
		timer := NewTimer(mc.HTTPRequestDuration)

		c.Next()

		timer.ObserveDuration()
		mc.HTTPRequestsInFlight.Dec()
		mc.HTTPRequestsTotal.Inc()

		if c.Writer.Size() > 0 {
			mc.HTTPResponseSize.Observe(float64(c.Writer.Size()))
		}

		if c.Writer.Status() >= 400 {
			mc.HTTPErrorsTotal.Inc()
			if c.Writer.Status() == http.StatusNotFound {
				mc.RouteNotFoundTotal.Inc()
			}
		}

		if duration := time.Since(start); duration > 1*time.Second {
			Info("Slow request detected: %s %s took %v", c.Request.Method, path, duration)
		}
	}
}

// MetricsHandler serves the /metrics.json endpoint.
func (mc *MetricsCollector) MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"timestamp": time.Now(),
			"metrics":   mc.Snapshot(),
		})
	}
}

// PrometheusHandler serves the /metrics endpoint in text exposition
// format.
func (mc *MetricsCollector) PrometheusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.String(http.StatusOK, renderPrometheus(mc.Snapshot()))
	}
}

// renderPrometheus writes the snapshot in a stable order so scrapes and
// diffs are reproducible. Names ending in _total are counters, plain
// numbers are gauges, HistogramSnapshots get the full bucket treatment.
func renderPrometheus(snapshot map[string]any) string {
	var sb strings.Builder

	for _, name := range slices.Sorted(maps.Keys(snapshot)) {
		switch v := snapshot[name].(type) {
		case int64:
			kind := "gauge"
			if strings.HasSuffix(name, "_total") {
				kind = "counter"
			}
			fmt.Fprintf(&sb, "# TYPE %s %s\n", name, kind)
			fmt.Fprintf(&sb, "%s %d\n", name, v)

		case HistogramSnapshot:
			fmt.Fprintf(&sb, "# TYPE %s histogram\n", name)
			for i, bound := range v.Bounds {
				le := strconv.FormatFloat(bound, 'f', -1, 64)
				fmt.Fprintf(&sb, "%s_bucket{le=%q} %d\n", name, le, v.Counts[i])
			}
			fmt.Fprintf(&sb, "%s_bucket{le=\"+Inf\"} %d\n", name, v.Count)
			fmt.Fprintf(&sb, "%s_sum %.2f\n", name, v.Sum)
			fmt.Fprintf(&sb, "%s_count %d\n", name, v.Count)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// StartMetricsCollector refreshes system metrics in the background until
// the context is cancelled.
func (mc *MetricsCollector) StartMetricsCollector(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}

// GlobalMetrics is the collector the whole engine reports into.
var GlobalMetrics = NewMetricsCollector()

// Convenience functions for global metrics

func RecordSourceChanges(n int) {
	GlobalMetrics.SourceChanges.Add(int64(n))
}

func RecordPluginError() {
	GlobalMetrics.PluginErrorsTotal.Inc()
}

func RecordPageRender() {
	GlobalMetrics.PagesRenderedTotal.Inc()
}

func RecordSearchQuery() {
	GlobalMetrics.SearchQueriesTotal.Inc()
}

func RecordRateLimitHit() {
	GlobalMetrics.RateLimitHits.Inc()
}

func RecordRateLimitBlock() {
	GlobalMetrics.RateLimitBlocks.Inc()
}

func SetFilesCount(count int) {
	GlobalMetrics.FilesTotal.Set(int64(count))
}

func SetRoutesCount(count int) {
	GlobalMetrics.RoutesTotal.Set(int64(count))
}

func SetPluginsCount(count int) {
	GlobalMetrics.PluginsRegistered.Set(int64(count))
}

func SetPostsCount(count int) {
	GlobalMetrics.PostsTotal.Set(int64(count))
}

func SetDraftsCount(count int) {
	GlobalMetrics.DraftsTotal.Set(int64(count))
}

func SetTagsCount(count int) {
	GlobalMetrics.TagsTotal.Set(int64(count))
}

func NewFileProcessingTimer() *Timer {
	return NewTimer(GlobalMetrics.FileProcessingDuration)
}

func NewPluginExecutionTimer() *Timer {
	return NewTimer(GlobalMetrics.PluginExecutionDuration)
}

func NewRouteRebuildTimer() *Timer {
	return NewTimer(GlobalMetrics.RouteRebuildDuration)
}

func NewSiteRefreshTimer() *Timer {
	return NewTimer(GlobalMetrics.SiteRefreshDuration)
}

func NewSearchTimer() *Timer {
	return NewTimer(GlobalMetrics.SearchDuration)
}
