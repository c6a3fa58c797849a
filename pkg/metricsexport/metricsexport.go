// Package metricsexport publishes the manager's internal state as
// Prometheus metrics so the pool can be observed with the same tooling
// it samples from.
package metricsexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// Exporter owns the gauge families describing agents, pressure and
// allocation state
type Exporter struct {
	agentCPUUtilization    *prometheus.GaugeVec
	agentMemoryUtilization *prometheus.GaugeVec
	agentReplicas          *prometheus.GaugeVec

	pressureScore prometheus.Gauge
	pressureLevel prometheus.Gauge

	allocatorCommitted *prometheus.GaugeVec
	registeredAgents   prometheus.Gauge
}

// New creates an exporter and registers its collectors. Pass
// prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Exporter {
	e := &Exporter{
		agentCPUUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arm_agent_cpu_utilization_percent",
			Help: "Agent CPU utilization against its configured limit",
		}, []string{"agent_id"}),
		agentMemoryUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arm_agent_memory_utilization_percent",
			Help: "Agent memory utilization against its configured limit",
		}, []string{"agent_id"}),
		agentReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arm_agent_replicas",
			Help: "Agent replica counts by state",
		}, []string{"agent_id", "state"}),
		pressureScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arm_pressure_combined_score",
			Help: "Combined system pressure score, 0-100",
		}),
		pressureLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arm_pressure_level",
			Help: "Pressure level severity: 0 none, 1 moderate, 2 high, 3 critical",
		}),
		allocatorCommitted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arm_allocator_committed",
			Help: "Committed capacity per resource dimension",
		}, []string{"resource"}),
		registeredAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arm_registered_agents",
			Help: "Number of registered agents",
		}),
	}

	reg.MustRegister(
		e.agentCPUUtilization,
		e.agentMemoryUtilization,
		e.agentReplicas,
		e.pressureScore,
		e.pressureLevel,
		e.allocatorCommitted,
		e.registeredAgents,
	)
	return e
}

// ObserveAgentUsage records one agent usage sample
func (e *Exporter) ObserveAgentUsage(usage models.AgentResourceUsage) {
	e.agentCPUUtilization.WithLabelValues(usage.AgentID).Set(usage.CPU.UtilizationPercent)
	e.agentMemoryUtilization.WithLabelValues(usage.AgentID).Set(usage.Memory.UtilizationPercent)
	e.agentReplicas.WithLabelValues(usage.AgentID, "current").Set(float64(usage.Replicas.Current))
	e.agentReplicas.WithLabelValues(usage.AgentID, "desired").Set(float64(usage.Replicas.Desired))
	e.agentReplicas.WithLabelValues(usage.AgentID, "healthy").Set(float64(usage.Replicas.Healthy))
}

// RemoveAgent drops all series for an unregistered agent
func (e *Exporter) RemoveAgent(agentID string) {
	e.agentCPUUtilization.DeleteLabelValues(agentID)
	e.agentMemoryUtilization.DeleteLabelValues(agentID)
	e.agentReplicas.DeletePartialMatch(prometheus.Labels{"agent_id": agentID})
}

// ObservePressure records the latest pressure status
func (e *Exporter) ObservePressure(status models.PressureStatus) {
	e.pressureScore.Set(status.CombinedScore)
	e.pressureLevel.Set(float64(status.Level.Severity()))
}

// ObserveCommitted records the allocator's committed capacity
func (e *Exporter) ObserveCommitted(committed models.ResourceQuantity) {
	e.allocatorCommitted.WithLabelValues("cpu_millicores").Set(float64(committed.CPUMillicores))
	e.allocatorCommitted.WithLabelValues("memory_bytes").Set(float64(committed.MemoryBytes))
	e.allocatorCommitted.WithLabelValues("disk_bytes").Set(float64(committed.DiskBytes))
	e.allocatorCommitted.WithLabelValues("network_mbps").Set(float64(committed.NetworkMbps))
}

// SetRegisteredAgents records the registry size
func (e *Exporter) SetRegisteredAgents(count int) {
	e.registeredAgents.Set(float64(count))
}
