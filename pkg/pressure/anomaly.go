package pressure

import (
	"fmt"
	"math"

	"github.com/opscart/agent-resource-manager/pkg/history"
	"github.com/opscart/agent-resource-manager/pkg/models"
)

// AnomalyDetector flags readings deviating from recent behavior.
// Observe records the value and reports whether it is anomalous relative
// to the window seen so far.
type AnomalyDetector interface {
	Observe(resource models.ResourceType, value float64) bool
	Name() string
}

// NewAnomalyDetector creates a detector by strategy name. "statistical" is
// the baseline; unknown names are a configuration error.
func NewAnomalyDetector(strategy string, window int, sigma float64) (AnomalyDetector, error) {
	switch strategy {
	case "statistical":
		return NewStatisticalDetector(window, sigma), nil
	default:
		return nil, fmt.Errorf("unknown anomaly strategy: %s", strategy)
	}
}

// StatisticalDetector flags a value as anomalous when it deviates from the
// rolling-window mean by more than sigma times the rolling standard deviation.
type StatisticalDetector struct {
	window  int
	sigma   float64
	samples map[models.ResourceType]*history.Ring[float64]
}

// NewStatisticalDetector creates the baseline detector
func NewStatisticalDetector(window int, sigma float64) *StatisticalDetector {
	if window < 2 {
		window = 2
	}
	if sigma <= 0 {
		sigma = 3.0
	}
	return &StatisticalDetector{
		window:  window,
		sigma:   sigma,
		samples: make(map[models.ResourceType]*history.Ring[float64]),
	}
}

// Observe records value for the resource and reports whether it is anomalous.
// The first few samples of a resource are never anomalous: there is no
// baseline to deviate from yet.
func (d *StatisticalDetector) Observe(resource models.ResourceType, value float64) bool {
	ring, ok := d.samples[resource]
	if !ok {
		ring = history.NewRing[float64](d.window)
		d.samples[resource] = ring
	}

	anomalous := false
	if ring.Len() >= 3 {
		mean, stddev := meanStddev(ring.Items())
		if stddev > 0 && math.Abs(value-mean) > d.sigma*stddev {
			anomalous = true
		}
	}

	ring.Append(value)
	return anomalous
}

// Name identifies the strategy
func (d *StatisticalDetector) Name() string {
	return "statistical"
}

func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return mean, math.Sqrt(sumSquaredDiff / float64(len(values)))
}
