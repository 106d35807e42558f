package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStabilityTracker(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		stable  bool
	}{
		{"no samples", nil, true},
		{"first sample sets baseline only", []Sample{{X: 5, Y: 5, Z: 5}}, true},
		{"small movement", []Sample{{0, 0, -1}, {0.1, 0.1, -1.1}}, true},
		{"movement at threshold", []Sample{{0, 0, -1}, {0.2, 0.2, -1}}, false},
		{"large movement", []Sample{{0, 0, -1}, {1, 0, 0}}, false},
		{"settles again", []Sample{{0, 0, -1}, {1, 0, 0}, {1, 0.05, 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewStabilityTracker(0.4)
			for _, s := range tt.samples {
				tracker.Observe(s)
			}
			assert.Equal(t, tt.stable, tracker.IsStable())
		})
	}
}
