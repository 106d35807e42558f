package monitoring

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrNotTracked is returned when resolving an unknown fingerprint
var ErrNotTracked = errors.New("error not tracked")

// ErrorSeverity represents error severity levels
type ErrorSeverity int

const (
	LOW ErrorSeverity = iota
	MEDIUM
	HIGH
	CRITICAL
)

// String returns string representation of error severity
func (es ErrorSeverity) String() string {
	switch es {
	case LOW:
		return "LOW"
	case MEDIUM:
		return "MEDIUM"
	case HIGH:
		return "HIGH"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// severityForStatus grades a failed response
func severityForStatus(status int) ErrorSeverity {
	switch {
	case status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		return MEDIUM
	case status >= 500:
		return HIGH
	default:
		return LOW
	}
}

// ErrorDetails is one distinct failure and how often it happened
type ErrorDetails struct {
	Fingerprint string     `json:"fingerprint"`
	Component   string     `json:"component"`
	Operation   string     `json:"operation"`
	Error       string     `json:"error"`
	Severity    string     `json:"severity"`
	Status      int        `json:"status,omitempty"`
	Count       int        `json:"count"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// AlertRule fires when one failure reaches Threshold occurrences
type AlertRule struct {
	Severity  ErrorSeverity
	Threshold int
	Component string // optional filter
}

// AlertChannel delivers alerts
type AlertChannel interface {
	SendAlert(details ErrorDetails, rule AlertRule)
}

// AlertFunc adapts a function to AlertChannel
type AlertFunc func(details ErrorDetails, rule AlertRule)

func (f AlertFunc) SendAlert(details ErrorDetails, rule AlertRule) { f(details, rule) }

// ErrorTracker groups failures of remote calls and requests by fingerprint
type ErrorTracker struct {
	mutex     sync.Mutex
	errors    map[string]*ErrorDetails
	rules     []AlertRule
	channels  []AlertChannel
	maxErrors int
	now       func() time.Time
}

// NewErrorTracker creates a tracker keeping at most maxErrors distinct failures
func NewErrorTracker(maxErrors int) *ErrorTracker {
	if maxErrors <= 0 {
		maxErrors = 200
	}
	return &ErrorTracker{
		errors:    make(map[string]*ErrorDetails),
		maxErrors: maxErrors,
		now:       time.Now,
	}
}

// AddAlertRule adds an alert rule
func (et *ErrorTracker) AddAlertRule(rule AlertRule) {
	et.mutex.Lock()
	defer et.mutex.Unlock()
	et.rules = append(et.rules, rule)
}

// AddAlertChannel adds an alert channel
func (et *ErrorTracker) AddAlertChannel(channel AlertChannel) {
	et.mutex.Lock()
	defer et.mutex.Unlock()
	et.channels = append(et.channels, channel)
}

// Capture records one occurrence and returns the updated entry
func (et *ErrorTracker) Capture(component, operation string, err error, severity ErrorSeverity, status int) ErrorDetails {
	message := ""
	if err != nil {
		message = err.Error()
	}
	fingerprint := generateFingerprint(component, operation, message)
	now := et.now().UTC()

	et.mutex.Lock()
	entry, exists := et.errors[fingerprint]
	if !exists {
		entry = &ErrorDetails{
			Fingerprint: fingerprint,
			Component:   component,
			Operation:   operation,
			Error:       message,
			Severity:    severity.String(),
			Status:      status,
			FirstSeen:   now,
			LastSeen:    now,
		}
		et.errors[fingerprint] = entry
		if len(et.errors) > et.maxErrors {
			et.evictOldestError()
		}
	}
	entry.Count++
	entry.LastSeen = now
	entry.Resolved = false
	entry.ResolvedAt = nil

	snapshot := *entry
	var alerts []AlertRule
	for _, rule := range et.rules {
		if severity < rule.Severity || (rule.Component != "" && rule.Component != component) {
			continue
		}
		if entry.Count == rule.Threshold {
			alerts = append(alerts, rule)
		}
	}
	channels := append([]AlertChannel(nil), et.channels...)
	et.mutex.Unlock()

	for _, rule := range alerts {
		for _, ch := range channels {
			ch.SendAlert(snapshot, rule)
		}
	}
	return snapshot
}

// Middleware captures the errors attached to failed API responses
func (et *ErrorTracker) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusInternalServerError || len(c.Errors) == 0 {
			return
		}
		operation := c.FullPath()
		if operation == "" {
			operation = c.Request.URL.Path
		}
		et.Capture("api", c.Request.Method+" "+operation, c.Errors.Last().Err, severityForStatus(status), status)
	}
}

// GetErrors returns the tracked failures, most recent first
func (et *ErrorTracker) GetErrors(includeResolved bool, limit int) []ErrorDetails {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	out := make([]ErrorDetails, 0, len(et.errors))
	for _, e := range et.errors {
		if e.Resolved && !includeResolved {
			continue
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// ResolveError marks a failure as resolved until it happens again
func (et *ErrorTracker) ResolveError(fingerprint string) error {
	et.mutex.Lock()
	defer et.mutex.Unlock()

	e, exists := et.errors[fingerprint]
	if !exists {
		return ErrNotTracked
	}
	now := et.now().UTC()
	e.Resolved = true
	e.ResolvedAt = &now
	return nil
}

// ListHandler serves the open failures; ?all=true includes resolved ones
func (et *ErrorTracker) ListHandler(c *gin.Context) {
	errs := et.GetErrors(c.Query("all") == "true", 100)
	c.JSON(http.StatusOK, gin.H{"errors": errs, "count": len(errs)})
}

// ResolveHandler resolves the failure named by :fingerprint
func (et *ErrorTracker) ResolveHandler(c *gin.Context) {
	if err := et.ResolveError(c.Param("fingerprint")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NOT_TRACKED",
			"message": err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// evictOldestError removes the failure seen least recently; caller holds the lock
func (et *ErrorTracker) evictOldestError() {
	var oldestKey string
	var oldest time.Time
	for key, e := range et.errors {
		if oldestKey == "" || e.LastSeen.Before(oldest) {
			oldestKey, oldest = key, e.LastSeen
		}
	}
	delete(et.errors, oldestKey)
}

func generateFingerprint(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}
