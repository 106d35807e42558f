package middleware

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is the subset of the structured logger the middleware writes to
type Logger interface {
	Warn(message string, fields ...map[string]interface{})
	Error(message string, err error, fields ...map[string]interface{})
}

// PerformanceMetrics is a snapshot of request metrics
type PerformanceMetrics struct {
	RequestCount  int64            `json:"request_count"`
	ErrorRate     float64          `json:"error_rate"`
	MemoryUsage   MemoryStats      `json:"memory_usage"`
	EndpointStats map[string]Stats `json:"endpoint_stats"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated uint64 `json:"allocated"`
	Sys       uint64 `json:"sys"`
	GCRuns    uint32 `json:"gc_runs"`
	HeapInUse uint64 `json:"heap_in_use"`
}

// Stats represents endpoint-specific statistics
type Stats struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	AverageTime   time.Duration `json:"average_time"`
	ErrorCount    int64         `json:"error_count"`
	SlowCount     int64         `json:"slow_count"`
}

// PerformanceMonitor tracks per-endpoint latency and error counts
type PerformanceMonitor struct {
	mu            sync.Mutex
	requests      int64
	errors        int64
	endpoints     map[string]Stats
	slowThreshold time.Duration
	startTime     time.Time
	logger        Logger
}

// NewPerformanceMonitor creates a new performance monitor; logger may be nil
func NewPerformanceMonitor(slowThreshold time.Duration, logger Logger) *PerformanceMonitor {
	return &PerformanceMonitor{
		endpoints:     make(map[string]Stats),
		slowThreshold: slowThreshold,
		startTime:     time.Now(),
		logger:        logger,
	}
}

// PerformanceMiddleware tracks request performance
func (pm *PerformanceMonitor) PerformanceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		if path == "/health" || path == "" {
			c.Next()
			return
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		pm.record(c.Request.Method+" "+path, duration, status >= 400)

		if pm.logger == nil {
			return
		}
		fields := map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": duration.String(),
		}
		if duration > pm.slowThreshold {
			pm.logger.Warn("slow request", fields)
		}
		if status >= 500 {
			pm.logger.Error("request failed", nil, fields)
		}
	}
}

func (pm *PerformanceMonitor) record(endpoint string, duration time.Duration, isError bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.requests++
	stats := pm.endpoints[endpoint]
	stats.Count++
	stats.TotalDuration += duration
	stats.AverageTime = stats.TotalDuration / time.Duration(stats.Count)
	if isError {
		stats.ErrorCount++
		pm.errors++
	}
	if duration > pm.slowThreshold {
		stats.SlowCount++
	}
	pm.endpoints[endpoint] = stats
}

// GetMetrics returns a copy of the current metrics
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	metrics := PerformanceMetrics{
		RequestCount:  pm.requests,
		EndpointStats: make(map[string]Stats, len(pm.endpoints)),
		MemoryUsage: MemoryStats{
			Allocated: m.Alloc,
			Sys:       m.Sys,
			GCRuns:    m.NumGC,
			HeapInUse: m.HeapInuse,
		},
	}
	for k, v := range pm.endpoints {
		metrics.EndpointStats[k] = v
	}
	if pm.requests > 0 {
		metrics.ErrorRate = float64(pm.errors) / float64(pm.requests) * 100
	}
	return metrics
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// RequestSizeLimitMiddleware rejects bodies larger than maxSize
func RequestSizeLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "PAYLOAD_TOO_LARGE",
				"message": fmt.Sprintf("Request body exceeds %s", formatBytes(uint64(maxSize))),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// RateLimiter allows a fixed number of events per key within a sliding window
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, clients: make(map[string][]time.Time)}
}

// Allow records an event for key at now and reports whether it is within the limit
func (rl *RateLimiter) Allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.clients[key][:0]
	for _, t := range rl.clients[key] {
		if now.Sub(t) < rl.window {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.limit {
		rl.clients[key] = recent
		return false
	}
	rl.clients[key] = append(recent, now)
	return true
}

// RateLimitMiddleware limits requests per client IP per minute
func RateLimitMiddleware(requestsPerMinute int) gin.HandlerFunc {
	limiter := NewRateLimiter(requestsPerMinute, time.Minute)
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// HealthCheck reports the health of one dependency
type HealthCheck func() error

// HealthHandler serves /health with request metrics and dependency checks
func HealthHandler(pm *PerformanceMonitor, checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics := pm.GetMetrics()

		health := gin.H{
			"status":     "healthy",
			"timestamp":  time.Now(),
			"uptime":     time.Since(pm.startTime).String(),
			"requests":   metrics.RequestCount,
			"error_rate": fmt.Sprintf("%.2f%%", metrics.ErrorRate),
			"memory": gin.H{
				"allocated": formatBytes(metrics.MemoryUsage.Allocated),
				"sys":       formatBytes(metrics.MemoryUsage.Sys),
				"gc_runs":   metrics.MemoryUsage.GCRuns,
			},
		}

		if metrics.ErrorRate > 10 {
			health["status"] = "degraded"
		}

		results := gin.H{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(); err != nil {
				results[name] = err.Error()
				health["status"] = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		if len(results) > 0 {
			health["checks"] = results
		}

		c.JSON(code, health)
	}
}

// formatBytes formats byte count as human readable string
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
