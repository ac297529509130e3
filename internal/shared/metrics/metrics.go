package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	uploadsStartedTotal   atomic.Uint64
	uploadsCompletedTotal atomic.Uint64
	uploadsFailedTotal    atomic.Uint64
	filesRejectedTotal    atomic.Uint64
	sessionsOpen          atomic.Int64
	noticesShownTotal     atomic.Uint64
	stepAdvancesTotal     atomic.Uint64

	applicationsSubmittedTotal atomic.Uint64
	applicationsFailedTotal    atomic.Uint64
	reviewJobsReceivedTotal    atomic.Uint64
	reviewJobsCompletedTotal   atomic.Uint64
	reviewJobsFailedTotal      atomic.Uint64
	reviewJobsDroppedTotal     atomic.Uint64
	licenseSeatsAssignedTotal  atomic.Uint64

	submitDuration = newHistogram([]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000})
)

// IncNoticesShown counts inline notices shown to applicants.
func IncNoticesShown() { noticesShownTotal.Add(1) }

// IncStepAdvances counts moves from the organization step to the admin step.
func IncStepAdvances() { stepAdvancesTotal.Add(1) }

// IncUploadsStarted increments the started uploads counter.
func IncUploadsStarted() { uploadsStartedTotal.Add(1) }

// IncUploadsCompleted increments the completed uploads counter.
func IncUploadsCompleted() { uploadsCompletedTotal.Add(1) }

// IncUploadsFailed increments the failed uploads counter.
func IncUploadsFailed() { uploadsFailedTotal.Add(1) }

// AddFilesRejected counts files dropped by the intake policy.
func AddFilesRejected(n int) {
	if n > 0 {
		filesRejectedTotal.Add(uint64(n))
	}
}

// SessionOpened tracks a new signup session.
func SessionOpened() { sessionsOpen.Add(1) }

// SessionClosed tracks a torn-down signup session.
func SessionClosed() { sessionsOpen.Add(-1) }

// IncApplicationsSubmitted increments the submitted applications counter.
func IncApplicationsSubmitted() { applicationsSubmittedTotal.Add(1) }

// IncApplicationsFailed increments the failed submissions counter.
func IncApplicationsFailed() { applicationsFailedTotal.Add(1) }

func IncReviewJobsReceived() { reviewJobsReceivedTotal.Add(1) }

func IncReviewJobsCompleted() { reviewJobsCompletedTotal.Add(1) }

func IncReviewJobsFailed() { reviewJobsFailedTotal.Add(1) }

// IncReviewJobsDeletedUnrecoverable counts messages removed because they can never succeed.
func IncReviewJobsDeletedUnrecoverable() { reviewJobsDroppedTotal.Add(1) }

// AddSeatsAssigned counts license seats handed out.
func AddSeatsAssigned(n int) {
	if n > 0 {
		licenseSeatsAssignedTotal.Add(uint64(n))
	}
}

// ObserveSubmitDurationMs records a submission duration in milliseconds.
func ObserveSubmitDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	submitDuration.Observe(value)
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
	writeCounter(&buf, "signup_uploads_started_total", "Total document uploads started", uploadsStartedTotal.Load())
	writeCounter(&buf, "signup_uploads_completed_total", "Total document uploads completed", uploadsCompletedTotal.Load())
	writeCounter(&buf, "signup_uploads_failed_total", "Total document uploads failed", uploadsFailedTotal.Load())
	writeCounter(&buf, "signup_files_rejected_total", "Total files rejected by type or size", filesRejectedTotal.Load())
	writeCounter(&buf, "signup_notices_shown_total", "Total inline notices shown", noticesShownTotal.Load())
	writeCounter(&buf, "signup_step_advances_total", "Total moves to the admin step", stepAdvancesTotal.Load())
	writeGauge(&buf, "signup_sessions_open", "Signup sessions currently open", sessionsOpen.Load())
	writeCounter(&buf, "applications_submitted_total", "Total applications submitted", applicationsSubmittedTotal.Load())
	writeCounter(&buf, "applications_failed_total", "Total application submissions failed", applicationsFailedTotal.Load())
	writeCounter(&buf, "review_jobs_received_total", "Total review jobs received", reviewJobsReceivedTotal.Load())
	writeCounter(&buf, "review_jobs_completed_total", "Total review jobs completed", reviewJobsCompletedTotal.Load())
	writeCounter(&buf, "review_jobs_failed_total", "Total review jobs failed", reviewJobsFailedTotal.Load())
	writeCounter(&buf, "review_jobs_deleted_unrecoverable_total", "Total review jobs deleted as unrecoverable", reviewJobsDroppedTotal.Load())
	writeCounter(&buf, "license_seats_assigned_total", "Total license seats assigned", licenseSeatsAssignedTotal.Load())
	writeHistogram(&buf, "applications_submit_duration_ms", "Application submission duration in milliseconds", submitDuration.Snapshot())
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

func writeGauge(buf *bytes.Buffer, name, help string, value int64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s gauge\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	// Observe already counts each value in every bucket it fits, so counts are cumulative.
	for i, bound := range snap.buckets {
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), snap.counts[i])
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
