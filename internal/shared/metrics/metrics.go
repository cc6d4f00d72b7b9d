package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
)

var durationBuckets = []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000}

var (
	analysisStartedTotal   = newCounterVec()
	analysisCompletedTotal = newCounterVec()
	analysisFailedTotal    = newCounterVec()
	analysisErrorTotal     = newCounterVec()
	batchTotal             = newCounterVec()
	failureKindTotal       = newCounterVec()
	httpPanicTotal         = newCounterVec()

	analysisDuration = newHistogramVec(durationBuckets)
)

// IncAnalysisStarted increments the started counter for an analysis type.
func IncAnalysisStarted(analysisType string) {
	analysisStartedTotal.inc(analysisType)
}

// IncAnalysisCompleted increments the completed counter for an analysis type.
func IncAnalysisCompleted(analysisType string) {
	analysisCompletedTotal.inc(analysisType)
}

// IncAnalysisFailed increments the clean-failure counter for an analysis type.
func IncAnalysisFailed(analysisType string) {
	analysisFailedTotal.inc(analysisType)
}

// IncAnalysisError increments the unexpected-error counter for an analysis type.
func IncAnalysisError(analysisType string) {
	analysisErrorTotal.inc(analysisType)
}

// IncBatch increments the batch counter for an analysis type.
func IncBatch(analysisType string) {
	batchTotal.inc(analysisType)
}

// IncFailureKind counts a failed extraction by failure kind.
func IncFailureKind(kind string) {
	failureKindTotal.inc(kind)
}

// IncHTTPPanic counts a recovered handler panic by route.
func IncHTTPPanic(route string) {
	if route == "" {
		route = "unmatched"
	}
	httpPanicTotal.inc(route)
}

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(analysisType string, value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.observe(analysisType, value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_started_total", "analysis_type", "Total analyses started", analysisStartedTotal.snapshot())
	writeCounter(&buf, "analysis_completed_total", "analysis_type", "Total analyses completed", analysisCompletedTotal.snapshot())
	writeCounter(&buf, "analysis_failed_total", "analysis_type", "Total analyses that failed extraction", analysisFailedTotal.snapshot())
	writeCounter(&buf, "analysis_error_total", "analysis_type", "Total analyses that hit an unexpected error", analysisErrorTotal.snapshot())
	writeCounter(&buf, "batch_total", "analysis_type", "Total batches processed", batchTotal.snapshot())
	writeCounter(&buf, "analysis_failure_kind_total", "kind", "Failed extractions by failure kind", failureKindTotal.snapshot())
	writeCounter(&buf, "http_panic_total", "route", "Recovered handler panics by route", httpPanicTotal.snapshot())
	writeHistogram(&buf, "analysis_duration_ms", "Analysis duration in milliseconds", analysisDuration.snapshot())
	return buf.String()
}

// Reset clears every series. Tests use it to start from zero.
func Reset() {
	for _, c := range []*counterVec{analysisStartedTotal, analysisCompletedTotal, analysisFailedTotal, analysisErrorTotal, batchTotal, failureKindTotal, httpPanicTotal} {
		c.reset()
	}
	analysisDuration.reset()
}

type counterVec struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec() *counterVec {
	return &counterVec{values: map[string]uint64{}}
}

func (c *counterVec) inc(label string) {
	c.mu.Lock()
	c.values[label]++
	c.mu.Unlock()
}

func (c *counterVec) reset() {
	c.mu.Lock()
	c.values = map[string]uint64{}
	c.mu.Unlock()
}

func (c *counterVec) snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramVec struct {
	mu      sync.Mutex
	buckets []float64
	series  map[string]*histogram
}

func newHistogramVec(buckets []float64) *histogramVec {
	return &histogramVec{buckets: buckets, series: map[string]*histogram{}}
}

func (h *histogramVec) observe(label string, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.series[label]
	if !ok {
		s = &histogram{buckets: h.buckets, counts: make([]uint64, len(h.buckets))}
		h.series[label] = s
	}
	s.count++
	s.sum += value
	for i, bound := range s.buckets {
		if value <= bound {
			s.counts[i]++
			break
		}
	}
}

func (h *histogramVec) reset() {
	h.mu.Lock()
	h.series = map[string]*histogram{}
	h.mu.Unlock()
}

func (h *histogramVec) snapshot() map[string]histogram {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]histogram, len(h.series))
	for k, s := range h.series {
		out[k] = histogram{
			buckets: append([]float64(nil), s.buckets...),
			counts:  append([]uint64(nil), s.counts...),
			sum:     s.sum,
			count:   s.count,
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeCounter(buf *bytes.Buffer, name, labelName, help string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	for _, label := range sortedKeys(values) {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, labelName, label, values[label])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, series map[string]histogram) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	for _, label := range sortedKeys(series) {
		snap := series[label]
		var cumulative uint64
		for i, bound := range snap.buckets {
			cumulative += snap.counts[i]
			fmt.Fprintf(buf, "%s_bucket{analysis_type=%q,le=\"%s\"} %d\n", name, label, formatFloat(bound), cumulative)
		}
		fmt.Fprintf(buf, "%s_bucket{analysis_type=%q,le=\"+Inf\"} %d\n", name, label, snap.count)
		fmt.Fprintf(buf, "%s_sum{analysis_type=%q} %s\n", name, label, formatFloat(snap.sum))
		fmt.Fprintf(buf, "%s_count{analysis_type=%q} %d\n", name, label, snap.count)
	}
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
