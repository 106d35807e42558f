package scan

import (
	"sync"
	"time"
)

// BarcodeKey is the debounce key of a barcode payload
func BarcodeKey(payload string) string {
	return "barcode:" + payload
}

// DebounceGuard suppresses re-emission of the same key within a cooldown.
// Only the most recent emission is remembered.
type DebounceGuard struct {
	mutex    sync.RWMutex
	cooldown time.Duration

	lastKey     string
	lastEmitted time.Time
	hasEmission bool
}

// NewDebounceGuard creates a guard with the given cooldown
func NewDebounceGuard(cooldown time.Duration) *DebounceGuard {
	if cooldown <= 0 {
		cooldown = 3 * time.Second
	}

	return &DebounceGuard{
		cooldown: cooldown,
	}
}

// ShouldSuppress reports whether key was emitted less than cooldown before now
func (g *DebounceGuard) ShouldSuppress(key string, now time.Time) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if !g.hasEmission || g.lastKey != key {
		return false
	}
	return now.Sub(g.lastEmitted) < g.cooldown
}

// RecordEmission remembers key as the last emitted value
func (g *DebounceGuard) RecordEmission(key string, now time.Time) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.lastKey = key
	g.lastEmitted = now
	g.hasEmission = true
}

// Reset forgets the last emission
func (g *DebounceGuard) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.lastKey = ""
	g.lastEmitted = time.Time{}
	g.hasEmission = false
}

// GetStats returns guard state for diagnostics
func (g *DebounceGuard) GetStats() map[string]interface{} {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	stats := map[string]interface{}{
		"cooldownMs": g.cooldown.Milliseconds(),
		"armed":      g.hasEmission,
	}
	if g.hasEmission {
		stats["lastKey"] = g.lastKey
		stats["lastEmittedMs"] = g.lastEmitted.UnixMilli()
	}
	return stats
}
