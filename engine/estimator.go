package engine

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

const estimatorWindow = 50

// estimator predicts the remaining time from a moving average of recent
// per-coordinate durations.
type estimator struct {
	window  int
	samples []float64
}

func newEstimator(window int) *estimator {
	return &estimator{window: window, samples: make([]float64, 0, window)}
}

func (e *estimator) add(d time.Duration) {
	if len(e.samples) == e.window {
		copy(e.samples, e.samples[1:])
		e.samples = e.samples[:e.window-1]
	}
	e.samples = append(e.samples, d.Seconds())
}

// remaining returns the seconds needed for left more coordinates, or nil
// before any sample exists.
func (e *estimator) remaining(left int) *float64 {
	if len(e.samples) == 0 {
		return nil
	}
	r := stat.Mean(e.samples, nil) * float64(left)
	return &r
}
