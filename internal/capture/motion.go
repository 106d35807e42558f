package capture

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go-alias-scanner/internal/scan"
)

// DefaultSensorInterval is the accelerometer update interval
const DefaultSensorInterval = 100 * time.Millisecond

// ReplayMotion plays back recorded accelerometer samples at a fixed interval
type ReplayMotion struct {
	Recorded []scan.Sample
	Interval time.Duration
	// Loop restarts from the first sample when the recording ends
	Loop bool
}

// NewReplayMotion creates a replay source
func NewReplayMotion(samples []scan.Sample, interval time.Duration) *ReplayMotion {
	if interval <= 0 {
		interval = DefaultSensorInterval
	}
	return &ReplayMotion{Recorded: samples, Interval: interval}
}

// Samples starts the playback
func (r *ReplayMotion) Samples(ctx context.Context) (<-chan scan.Sample, error) {
	if len(r.Recorded) == 0 {
		return nil, errors.New("no motion samples to replay")
	}

	out := make(chan scan.Sample)
	go func() {
		defer close(out)
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			if i == len(r.Recorded) {
				if !r.Loop {
					return
				}
				i = 0
			}

			select {
			case <-ctx.Done():
				return
			case out <- r.Recorded[i]:
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

// ReadSamples parses CSV lines of x,y,z. Blank lines and lines starting with # are skipped.
func ReadSamples(r io.Reader) ([]scan.Sample, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var samples []scan.Sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid motion sample: %w", err)
		}

		var v [3]float64
		for i, field := range record {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				line, _ := reader.FieldPos(i)
				return nil, fmt.Errorf("invalid motion sample on line %d: %w", line, err)
			}
		}
		samples = append(samples, scan.Sample{X: v[0], Y: v[1], Z: v[2]})
	}
	return samples, nil
}

// LoadSamples reads a CSV file of samples
func LoadSamples(path string) ([]scan.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSamples(f)
}
