package models

import "time"

// PressureLevel classifies how close the system is to resource exhaustion
type PressureLevel string

const (
	PressureNone     PressureLevel = "none"
	PressureModerate PressureLevel = "moderate"
	PressureHigh     PressureLevel = "high"
	PressureCritical PressureLevel = "critical"
)

// Severity orders pressure levels for comparison (higher = worse)
func (l PressureLevel) Severity() int {
	switch l {
	case PressureModerate:
		return 1
	case PressureHigh:
		return 2
	case PressureCritical:
		return 3
	default:
		return 0
	}
}

// PressureTrend describes the short-term direction of the combined score
type PressureTrend string

const (
	TrendIncreasing  PressureTrend = "increasing"
	TrendDecreasing  PressureTrend = "decreasing"
	TrendStable      PressureTrend = "stable"
	TrendFluctuating PressureTrend = "fluctuating"
)

// RiskLevel grades a predicted pressure outcome
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// PressureMetric is the per-resource breakdown behind a PressureStatus
type PressureMetric struct {
	Value              float64
	Threshold          float64
	PercentOfThreshold float64
	RateOfChange       float64 // percentage points per second
	Anomalous          bool
}

// PressurePrediction is a short-horizon extrapolation of the combined score
type PressurePrediction struct {
	Horizon        time.Duration
	PredictedScore float64
	Confidence     float64 // 0-1, regression fit quality
	Risk           RiskLevel
}

// PressureStatus is produced once per detection tick.
// CombinedScore reflects the single worst resource, never an average,
// so one saturated resource cannot be diluted by idle ones.
type PressureStatus struct {
	Timestamp           time.Time
	Level               PressureLevel
	Resources           map[ResourceType]PressureMetric
	CombinedScore       float64 // 0-100
	Trend               PressureTrend
	ContributingFactors []string
	RecommendedActions  []string
	Prediction          *PressurePrediction
}

// DominantResource returns the resource contributing the combined score
func (s PressureStatus) DominantResource() ResourceType {
	var worst ResourceType
	var worstPct float64
	for resource, metric := range s.Resources {
		if metric.PercentOfThreshold > worstPct {
			worstPct = metric.PercentOfThreshold
			worst = resource
		}
	}
	return worst
}

// PressureAlert is delivered to subscribers when the detector classifies
// high or critical pressure
type PressureAlert struct {
	Timestamp    time.Time
	Level        PressureLevel
	PressureType ResourceType // dominant resource behind the alert
	Status       PressureStatus
}
