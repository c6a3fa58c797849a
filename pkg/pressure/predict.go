package pressure

import (
	"time"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// scorePoint is one combined-score observation used for extrapolation
type scorePoint struct {
	Timestamp time.Time
	Score     float64
}

// predictScore extrapolates the combined score over the horizon using
// linear regression. Returns nil when there is not enough history to fit.
func predictScore(points []scorePoint, horizon time.Duration) *models.PressurePrediction {
	if len(points) < 5 {
		return nil
	}

	startTime := points[0].Timestamp
	x := make([]float64, len(points)) // seconds since first point
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp.Sub(startTime).Seconds()
		y[i] = p.Score
	}

	slope, intercept, r2 := linearRegression(x, y)

	target := x[len(x)-1] + horizon.Seconds()
	predicted := slope*target + intercept
	if predicted < 0 {
		predicted = 0
	}
	if predicted > 100 {
		predicted = 100
	}

	// slope in score points per minute drives the rate component of risk
	ratePerMinute := slope * 60

	return &models.PressurePrediction{
		Horizon:        horizon,
		PredictedScore: predicted,
		Confidence:     r2,
		Risk:           deriveRisk(predicted, ratePerMinute),
	}
}

// deriveRisk combines predicted score and rate-of-change into a risk grade
func deriveRisk(predictedScore, ratePerMinute float64) models.RiskLevel {
	switch {
	case predictedScore >= 95:
		return models.RiskCritical
	case predictedScore >= 85 || (predictedScore >= 70 && ratePerMinute > 2):
		return models.RiskHigh
	case predictedScore >= 60 || ratePerMinute > 5:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// linearRegression performs simple linear regression
// Returns: slope, intercept, R² (coefficient of determination)
func linearRegression(x, y []float64) (slope, intercept, r2 float64) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0, 0
	}

	meanX := mean(x)
	meanY := mean(y)

	numerator := 0.0
	denominator := 0.0
	for i := 0; i < len(x); i++ {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}
	if denominator == 0 {
		return 0, meanY, 0
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	ssTotal := 0.0
	ssRes := 0.0
	for i := 0; i < len(x); i++ {
		predicted := slope*x[i] + intercept
		ssRes += (y[i] - predicted) * (y[i] - predicted)
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
	}

	if ssTotal == 0 {
		r2 = 0
	} else {
		r2 = 1.0 - (ssRes / ssTotal)
	}
	if r2 < 0 {
		r2 = 0
	} else if r2 > 1 {
		r2 = 1
	}

	return slope, intercept, r2
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
