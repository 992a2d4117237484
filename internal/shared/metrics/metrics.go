package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	sessionsStartedTotal   atomic.Uint64
	sessionsCompletedTotal atomic.Uint64
	sessionsResetTotal     atomic.Uint64
	extractionTimeoutTotal atomic.Uint64
	readinessTimeoutTotal  atomic.Uint64

	extractionWaitDuration = newHistogram([]float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 180000})
	readinessWaitDuration  = newHistogram([]float64{1000, 2500, 5000, 10000, 30000, 60000, 120000, 180000, 300000})
)

// IncSessionStarted increments the started counter.
func IncSessionStarted() {
	sessionsStartedTotal.Add(1)
}

// IncSessionCompleted increments the completed counter.
func IncSessionCompleted() {
	sessionsCompletedTotal.Add(1)
}

// IncSessionReset increments the counter of sessions reset during resumption.
func IncSessionReset() {
	sessionsResetTotal.Add(1)
}

// IncExtractionTimeout counts blocking waits that hit the extraction ceiling.
func IncExtractionTimeout() {
	extractionTimeoutTotal.Add(1)
}

// IncReadinessTimeout counts readiness waits that hit the ceiling.
func IncReadinessTimeout() {
	readinessTimeoutTotal.Add(1)
}

// ObserveExtractionWaitMs records how long a blocking extraction wait took.
func ObserveExtractionWaitMs(value float64) {
	if value < 0 {
		value = 0
	}
	extractionWaitDuration.Observe(value)
}

// ObserveReadinessWaitMs records how long a readiness wait took.
func ObserveReadinessWaitMs(value float64) {
	if value < 0 {
		value = 0
	}
	readinessWaitDuration.Observe(value)
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
	writeCounter(&buf, "onboarding_sessions_started_total", "Total onboarding sessions started", sessionsStartedTotal.Load())
	writeCounter(&buf, "onboarding_sessions_completed_total", "Total onboarding sessions completed", sessionsCompletedTotal.Load())
	writeCounter(&buf, "onboarding_sessions_reset_total", "Total sessions reset during resumption", sessionsResetTotal.Load())
	writeCounter(&buf, "onboarding_extraction_timeout_total", "Blocking extraction waits that hit the ceiling", extractionTimeoutTotal.Load())
	writeCounter(&buf, "onboarding_readiness_timeout_total", "Readiness waits that hit the ceiling", readinessTimeoutTotal.Load())
	writeHistogram(&buf, "onboarding_extraction_wait_ms", "Blocking extraction wait duration in milliseconds", extractionWaitDuration.Snapshot())
	writeHistogram(&buf, "onboarding_readiness_wait_ms", "Readiness wait duration in milliseconds", readinessWaitDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
