package pressure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

func TestNewAnomalyDetectorFactory(t *testing.T) {
	detector, err := NewAnomalyDetector("statistical", 10, 3.0)
	require.NoError(t, err)
	assert.Equal(t, "statistical", detector.Name())

	_, err = NewAnomalyDetector("isolation-forest", 10, 3.0)
	assert.Error(t, err, "unimplemented strategies must fail at construction")
}

func TestStatisticalDetectorFlagsSpike(t *testing.T) {
	detector := NewStatisticalDetector(20, 3.0)

	// steady baseline around 50 with slight wobble
	baseline := []float64{50, 51, 49, 50, 52, 48, 50, 51, 49, 50}
	for _, v := range baseline {
		assert.False(t, detector.Observe(models.ResourceCPU, v), "baseline value %v flagged", v)
	}

	assert.True(t, detector.Observe(models.ResourceCPU, 95), "spike not flagged")
}

func TestStatisticalDetectorNeedsBaseline(t *testing.T) {
	detector := NewStatisticalDetector(20, 3.0)

	assert.False(t, detector.Observe(models.ResourceMemory, 10))
	assert.False(t, detector.Observe(models.ResourceMemory, 90))
	assert.False(t, detector.Observe(models.ResourceMemory, 10))
}

func TestStatisticalDetectorPerResourceWindows(t *testing.T) {
	detector := NewStatisticalDetector(20, 3.0)

	for _, v := range []float64{50, 50, 51, 49, 50, 50, 51, 49} {
		detector.Observe(models.ResourceCPU, v)
	}
	// memory has no baseline yet, same value must not be flagged there
	assert.True(t, detector.Observe(models.ResourceCPU, 99))
	assert.False(t, detector.Observe(models.ResourceMemory, 99))
}

func TestStatisticalDetectorConstantSeries(t *testing.T) {
	detector := NewStatisticalDetector(10, 3.0)

	for i := 0; i < 10; i++ {
		assert.False(t, detector.Observe(models.ResourceDisk, 40))
	}
}
