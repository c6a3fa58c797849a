package pressure

import "github.com/opscart/agent-resource-manager/pkg/models"

// ThresholdSet holds the moderate/high/critical boundaries for one resource,
// as utilization percentages
type ThresholdSet struct {
	Moderate float64
	High     float64
	Critical float64
}

// Classify maps a utilization value to the pressure level it crosses
func (t ThresholdSet) Classify(value float64) models.PressureLevel {
	switch {
	case value >= t.Critical:
		return models.PressureCritical
	case value >= t.High:
		return models.PressureHigh
	case value >= t.Moderate:
		return models.PressureModerate
	default:
		return models.PressureNone
	}
}

// ActiveThreshold returns the boundary of the crossed level. Below moderate
// the moderate boundary is used, so scores stay proportional.
func (t ThresholdSet) ActiveThreshold(level models.PressureLevel) float64 {
	switch level {
	case models.PressureCritical:
		return t.Critical
	case models.PressureHigh:
		return t.High
	default:
		return t.Moderate
	}
}

// Thresholds maps each resource to its threshold set
type Thresholds map[models.ResourceType]ThresholdSet

// DefaultThresholds returns conservative defaults matching typical
// node-saturation guidance
func DefaultThresholds() Thresholds {
	return Thresholds{
		models.ResourceCPU:     {Moderate: 70, High: 85, Critical: 95},
		models.ResourceMemory:  {Moderate: 75, High: 85, Critical: 95},
		models.ResourceDisk:    {Moderate: 75, High: 88, Critical: 95},
		models.ResourceNetwork: {Moderate: 70, High: 85, Critical: 95},
	}
}
