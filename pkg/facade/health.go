package facade

import (
	"time"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// AgentSummary is one agent's line in a health report
type AgentSummary struct {
	AgentID                  string
	Status                   models.AgentStatus
	CPUUtilizationPercent    float64
	MemoryUtilizationPercent float64
	Replicas                 models.ReplicaStatus
}

// HealthReport is a point-in-time snapshot of the whole pool. Fields for
// components with no data yet hold zero values rather than errors.
type HealthReport struct {
	Timestamp time.Time

	SystemStatus  models.ResourceStatus
	PressureLevel models.PressureLevel
	PressureScore float64
	PressureTrend models.PressureTrend

	RegisteredAgents int
	Agents           []AgentSummary

	Committed         models.ResourceQuantity
	Available         models.ResourceQuantity
	ActiveAllocations int
}

// HealthReport assembles the current pool state. It always returns a
// value, even before the first sample or mid-failure.
func (f *Facade) HealthReport() HealthReport {
	report := HealthReport{
		Timestamp:     time.Now(),
		SystemStatus:  models.StatusOffline,
		PressureLevel: models.PressureNone,
	}

	if metrics, ok := f.monitor.Latest(); ok {
		report.SystemStatus = metrics.Status
	}
	if status, ok := f.detector.Latest(); ok {
		report.PressureLevel = status.Level
		report.PressureScore = status.CombinedScore
		report.PressureTrend = status.Trend
	}

	for _, cfg := range f.manager.ListAgents() {
		summary := AgentSummary{
			AgentID: cfg.AgentID,
			Status:  models.AgentHealthy,
		}
		if usage, err := f.manager.GetAgentUsage(cfg.AgentID); err == nil {
			summary.Status = usage.Status
			summary.CPUUtilizationPercent = usage.CPU.UtilizationPercent
			summary.MemoryUtilizationPercent = usage.Memory.UtilizationPercent
			summary.Replicas = usage.Replicas
		}
		report.Agents = append(report.Agents, summary)
	}
	report.RegisteredAgents = len(report.Agents)

	report.Committed = f.allocator.Committed()
	report.Available = f.allocator.Available()
	report.ActiveAllocations = len(f.allocator.Allocations())

	return report
}
