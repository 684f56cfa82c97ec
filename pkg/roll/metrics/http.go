package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPMetrics tracks request statistics for the roll server.
type HTTPMetrics struct {
	requestCount      int64
	errorCount        int64 // responses >= 400
	totalResponseTime int64 // nanoseconds
	maxResponseTime   int64 // nanoseconds
	pendingRequests   int64

	mu            sync.RWMutex
	startTime     time.Time
	responseTimes []int64
	next          int
	maxSamples    int
}

func NewHTTPMetrics(maxSamples int) *HTTPMetrics {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &HTTPMetrics{
		responseTimes: make([]int64, 0, maxSamples),
		maxSamples:    maxSamples,
		startTime:     time.Now(),
	}
}

type HTTPStats struct {
	RequestCount    int64     `json:"request_count"`
	ErrorCount      int64     `json:"error_count"`
	ErrorRate       float64   `json:"error_rate"`        // percentage
	RequestRate     float64   `json:"request_rate"`      // per second
	AvgResponseTime int64     `json:"avg_response_time"` // nanoseconds
	MaxResponseTime int64     `json:"max_response_time"` // nanoseconds
	PendingRequests int64     `json:"pending_requests"`
	Timestamp       time.Time `json:"timestamp"`
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(data)
}

// Middleware records timing and status for every request passing through.
// Upgraded websocket connections are not wrapped, since the wrapper hides
// http.Hijacker.
func (h *HTTPMetrics) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&h.pendingRequests, 1)
		defer atomic.AddInt64(&h.pendingRequests, -1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		h.observe(time.Since(start).Nanoseconds(), wrapped.statusCode)
	}
}

func (h *HTTPMetrics) observe(durationNs int64, status int) {
	atomic.AddInt64(&h.requestCount, 1)
	atomic.AddInt64(&h.totalResponseTime, durationNs)

	for {
		current := atomic.LoadInt64(&h.maxResponseTime)
		if durationNs <= current || atomic.CompareAndSwapInt64(&h.maxResponseTime, current, durationNs) {
			break
		}
	}

	if status >= 400 {
		atomic.AddInt64(&h.errorCount, 1)
	}

	h.mu.Lock()
	if len(h.responseTimes) < h.maxSamples {
		h.responseTimes = append(h.responseTimes, durationNs)
	} else {
		h.responseTimes[h.next] = durationNs
	}
	h.next = (h.next + 1) % h.maxSamples
	h.mu.Unlock()
}

func (h *HTTPMetrics) GetStats() HTTPStats {
	requestCount := atomic.LoadInt64(&h.requestCount)
	errorCount := atomic.LoadInt64(&h.errorCount)

	stats := HTTPStats{
		RequestCount:    requestCount,
		ErrorCount:      errorCount,
		MaxResponseTime: atomic.LoadInt64(&h.maxResponseTime),
		PendingRequests: atomic.LoadInt64(&h.pendingRequests),
		Timestamp:       time.Now(),
	}

	if requestCount > 0 {
		stats.ErrorRate = float64(errorCount) / float64(requestCount) * 100
		stats.AvgResponseTime = atomic.LoadInt64(&h.totalResponseTime) / requestCount

		h.mu.RLock()
		uptime := time.Since(h.startTime)
		h.mu.RUnlock()
		if uptime > 0 {
			stats.RequestRate = float64(requestCount) / uptime.Seconds()
		}
	}

	return stats
}

// GetResponseTimeSamples returns recent response time samples (thread-safe copy)
func (h *HTTPMetrics) GetResponseTimeSamples() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	samples := make([]int64, len(h.responseTimes))
	copy(samples, h.responseTimes)
	return samples
}

// Reset clears all metrics (useful for testing)
func (h *HTTPMetrics) Reset() {
	atomic.StoreInt64(&h.requestCount, 0)
	atomic.StoreInt64(&h.errorCount, 0)
	atomic.StoreInt64(&h.totalResponseTime, 0)
	atomic.StoreInt64(&h.maxResponseTime, 0)
	atomic.StoreInt64(&h.pendingRequests, 0)

	h.mu.Lock()
	h.startTime = time.Now()
	h.responseTimes = h.responseTimes[:0]
	h.next = 0
	h.mu.Unlock()
}
