// Package perfstats tracks a rolling window of durations per named
// operation and returns a min/max/avg summary, which the pipeline logs for
// its image and grid-generation timings.
package perfstats

import "sync"

const windowSize = 50

// Tracker keeps the last windowSize samples for each named operation.
type Tracker struct {
	mu      sync.Mutex
	samples map[string][]float64
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{samples: make(map[string][]float64)}
}

// Summary is the min/max/avg view of a tracked operation's recent samples.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Avg   float64
}

// Record appends a duration (in seconds) for operation, evicting the oldest
// sample once the window exceeds 50 entries, and returns the updated summary.
func (t *Tracker) Record(operation string, seconds float64) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := append(t.samples[operation], seconds)
	if len(samples) > windowSize {
		samples = samples[len(samples)-windowSize:]
	}
	t.samples[operation] = samples

	return summarize(samples)
}

func summarize(samples []float64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	min, max, sum := samples[0], samples[0], 0.0
	for _, s := range samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	return Summary{
		Count: len(samples),
		Min:   min,
		Max:   max,
		Avg:   sum / float64(len(samples)),
	}
}
