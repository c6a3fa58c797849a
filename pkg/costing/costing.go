package costing

import (
	"fmt"
	"math"
)

// Model estimates monthly cost of committed capacity. Used to price the
// cost dimension of recommendation impact; rates default to conservative
// on-prem figures when unset.
type Model struct {
	cpuCostPerCore   float64
	memoryCostPerGiB float64
}

// NewModel creates a cost model with per-core and per-GiB monthly rates
func NewModel(cpuCostPerCore, memoryCostPerGiB float64) *Model {
	if cpuCostPerCore == 0 {
		cpuCostPerCore = 23.0
	}
	if memoryCostPerGiB == 0 {
		memoryCostPerGiB = 3.0
	}
	return &Model{
		cpuCostPerCore:   cpuCostPerCore,
		memoryCostPerGiB: memoryCostPerGiB,
	}
}

// MonthlyCost prices a capacity commitment in USD per month
func (m *Model) MonthlyCost(cpuMillicores, memoryBytes int64) float64 {
	cpuCores := float64(cpuMillicores) / 1000.0
	memoryGiB := float64(memoryBytes) / (1024.0 * 1024.0 * 1024.0)

	return (cpuCores * m.cpuCostPerCore) + (memoryGiB * m.memoryCostPerGiB)
}

// DeltaDescription describes the monthly cost change of moving from the
// current to the proposed capacity, e.g. "+$12.40/month"
func (m *Model) DeltaDescription(currentCPU, proposedCPU, currentMemory, proposedMemory int64) string {
	delta := m.MonthlyCost(proposedCPU, proposedMemory) - m.MonthlyCost(currentCPU, currentMemory)
	if math.Abs(delta) < 0.01 {
		return "unchanged"
	}
	sign := "+"
	if delta < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s$%.2f/month", sign, math.Abs(delta))
}
