package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

func TestHealthCheckPassesOnModerateUsage(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	cfg.HealthCheck = models.HealthCheckPolicy{
		Enabled:            true,
		FailureThreshold:   3,
		CPULimitPercent:    90,
		MemoryLimitPercent: 90,
	}
	require.NoError(t, m.RegisterAgent(cfg))

	_, err := m.UpdateAgentUsage(context.Background(), "worker-1", 500, 100<<20)
	require.NoError(t, err)

	health, err := m.CheckAgentHealth("worker-1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentHealthy, health.Status)
	assert.Zero(t, health.ConsecutiveFailures)
	assert.Len(t, health.Checks, 3)
	for _, check := range health.Checks {
		assert.True(t, check.Passing, "check %s should pass", check.Type)
	}
}

func TestHealthCheckEscalatesAtFailureThreshold(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	cfg.HealthCheck = models.HealthCheckPolicy{
		Enabled:            true,
		FailureThreshold:   2,
		CPULimitPercent:    90,
		MemoryLimitPercent: 90,
	}
	require.NoError(t, m.RegisterAgent(cfg))

	// 98% CPU fails the CPU check
	_, err := m.UpdateAgentUsage(context.Background(), "worker-1", 980, 100<<20)
	require.NoError(t, err)

	health, err := m.CheckAgentHealth("worker-1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentDegraded, health.Status)
	assert.Equal(t, 1, health.ConsecutiveFailures)

	health, err = m.CheckAgentHealth("worker-1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentUnhealthy, health.Status)
	assert.Equal(t, 2, health.ConsecutiveFailures)

	// Recovery resets the failure counter
	_, err = m.UpdateAgentUsage(context.Background(), "worker-1", 200, 100<<20)
	require.NoError(t, err)
	health, err = m.CheckAgentHealth("worker-1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentHealthy, health.Status)
	assert.Zero(t, health.ConsecutiveFailures)
}

func TestHealthCheckWithoutUsagePasses(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.HealthCheck.Enabled = true
	require.NoError(t, m.RegisterAgent(cfg))

	health, err := m.CheckAgentHealth("worker-1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentHealthy, health.Status)
}

func TestGetAgentHealthDoesNotReevaluate(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	cfg.HealthCheck = models.HealthCheckPolicy{
		Enabled:          true,
		FailureThreshold: 5,
		CPULimitPercent:  90,
	}
	require.NoError(t, m.RegisterAgent(cfg))

	_, err := m.UpdateAgentUsage(context.Background(), "worker-1", 980, 100<<20)
	require.NoError(t, err)

	_, err = m.CheckAgentHealth("worker-1")
	require.NoError(t, err)

	first, err := m.GetAgentHealth("worker-1")
	require.NoError(t, err)
	second, err := m.GetAgentHealth("worker-1")
	require.NoError(t, err)
	assert.Equal(t, first.ConsecutiveFailures, second.ConsecutiveFailures)

	_, err = m.GetAgentHealth("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
