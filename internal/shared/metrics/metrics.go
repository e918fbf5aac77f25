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
	jobsSubmittedTotal   atomic.Uint64
	jobsProcessedTotal   atomic.Uint64
	jobsFailedTotal      atomic.Uint64
	jobsDegradedTotal    atomic.Uint64
	chatTurnsTotal       atomic.Uint64
	rewriteRequestsTotal atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	processingDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 180000})
)

// IncJobSubmitted increments the submitted counter.
func IncJobSubmitted() {
	jobsSubmittedTotal.Add(1)
}

// IncJobProcessed increments the processed counter.
func IncJobProcessed() {
	jobsProcessedTotal.Add(1)
}

// IncJobFailed increments the failed counter.
func IncJobFailed() {
	jobsFailedTotal.Add(1)
}

// IncJobDegraded increments the degraded counter. A degraded job is
// processed but carries the fallback record.
func IncJobDegraded() {
	jobsDegradedTotal.Add(1)
}

// IncChatTurn increments the chat turn counter.
func IncChatTurn() {
	chatTurnsTotal.Add(1)
}

// IncRewriteRequest increments the rewrite counter.
func IncRewriteRequest() {
	rewriteRequestsTotal.Add(1)
}

// IncJobsReceived counts queue messages received by the worker.
func IncJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncJobsDeletedUnrecoverable counts messages dropped as unrecoverable.
func IncJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverableTotal.Add(1)
}

// ObserveProcessingDurationMs records a pipeline duration in milliseconds.
func ObserveProcessingDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	processingDuration.Observe(value)
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
	writeCounter(&buf, "jobs_submitted_total", "Total jobs submitted", jobsSubmittedTotal.Load())
	writeCounter(&buf, "jobs_processed_total", "Total jobs processed", jobsProcessedTotal.Load())
	writeCounter(&buf, "jobs_failed_total", "Total jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "jobs_degraded_total", "Total jobs processed with a fallback record", jobsDegradedTotal.Load())
	writeCounter(&buf, "chat_turns_total", "Total chat turns answered", chatTurnsTotal.Load())
	writeCounter(&buf, "rewrite_requests_total", "Total rewrite requests served", rewriteRequestsTotal.Load())
	writeCounter(&buf, "jobs_received_total", "Total queue messages received", jobsReceivedTotal.Load())
	writeCounter(&buf, "jobs_deleted_unrecoverable_total", "Total queue messages dropped as unrecoverable", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "job_processing_duration_ms", "Job processing duration in milliseconds", processingDuration.Snapshot())
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
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
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

// NowMillis returns the current time in milliseconds for duration math.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
