package costing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonthlyCost(t *testing.T) {
	m := NewModel(23.0, 3.0)

	// 2 cores + 4 GiB
	cost := m.MonthlyCost(2000, 4<<30)
	assert.InDelta(t, 2*23.0+4*3.0, cost, 0.001)
}

func TestZeroRatesFallBackToDefaults(t *testing.T) {
	m := NewModel(0, 0)

	assert.InDelta(t, 23.0, m.MonthlyCost(1000, 0), 0.001)
	assert.InDelta(t, 3.0, m.MonthlyCost(0, 1<<30), 0.001)
}

func TestDeltaDescription(t *testing.T) {
	m := NewModel(23.0, 3.0)

	assert.Equal(t, "+$23.00/month", m.DeltaDescription(1000, 2000, 0, 0))
	assert.Equal(t, "-$23.00/month", m.DeltaDescription(2000, 1000, 0, 0))
	assert.Equal(t, "unchanged", m.DeltaDescription(1000, 1000, 1<<30, 1<<30))
}
