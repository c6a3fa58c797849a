package metricsexport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

func TestExporterPublishesAgentSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(reg)

	e.ObserveAgentUsage(models.AgentResourceUsage{
		AgentID: "worker-1",
		CPU:     models.CPUUsage{UtilizationPercent: 72.5},
		Memory:  models.MemoryUsage{UtilizationPercent: 41.0},
		Replicas: models.ReplicaStatus{
			Current: 3, Desired: 3, Healthy: 2,
		},
	})

	assert.Equal(t, 72.5, testutil.ToFloat64(e.agentCPUUtilization.WithLabelValues("worker-1")))
	assert.Equal(t, 41.0, testutil.ToFloat64(e.agentMemoryUtilization.WithLabelValues("worker-1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.agentReplicas.WithLabelValues("worker-1", "current")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.agentReplicas.WithLabelValues("worker-1", "healthy")))

	e.RemoveAgent("worker-1")
	assert.Equal(t, 0, testutil.CollectAndCount(e.agentCPUUtilization))
	assert.Equal(t, 0, testutil.CollectAndCount(e.agentReplicas))
}

func TestExporterPublishesPressureAndAllocation(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(reg)

	e.ObservePressure(models.PressureStatus{
		Level:         models.PressureHigh,
		CombinedScore: 88.4,
	})
	assert.Equal(t, 88.4, testutil.ToFloat64(e.pressureScore))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.pressureLevel))

	e.ObserveCommitted(models.ResourceQuantity{
		CPUMillicores: 4000,
		MemoryBytes:   8 << 30,
	})
	assert.Equal(t, 4000.0, testutil.ToFloat64(e.allocatorCommitted.WithLabelValues("cpu_millicores")))
	assert.Equal(t, float64(8<<30), testutil.ToFloat64(e.allocatorCommitted.WithLabelValues("memory_bytes")))

	e.SetRegisteredAgents(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(e.registeredAgents))
}
