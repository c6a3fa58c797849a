package manager

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// StartHealthChecks runs the background health evaluation loop until the
// context is cancelled or the manager shuts down. Each tick evaluates the
// agents whose per-agent interval has elapsed.
func (m *Manager) StartHealthChecks(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.healthCancel != nil {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.healthCancel = cancel
	m.healthDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.opts.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.runDueHealthChecks()
			}
		}
	}()
}

func (m *Manager) runDueHealthChecks() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	now := m.now()
	for _, id := range ids {
		state, err := m.agent(id)
		if err != nil {
			continue
		}

		state.mu.Lock()
		policy := state.config.HealthCheck
		due := policy.Enabled &&
			(state.lastHealthRun.IsZero() || now.Sub(state.lastHealthRun) >= policy.Interval)
		if due {
			state.lastHealthRun = now
		}
		state.mu.Unlock()

		if due {
			if _, err := m.CheckAgentHealth(id); err != nil {
				m.logger.Warn("health check failed",
					zap.String("agent_id", id), zap.Error(err))
			}
		}
	}
}

// CheckAgentHealth evaluates the agent's health checks against its latest
// usage and returns the aggregated status. An agent exceeding its failure
// threshold is marked unhealthy and an event is emitted.
func (m *Manager) CheckAgentHealth(agentID string) (*models.AgentHealthStatus, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	policy := state.config.HealthCheck
	usage := state.usage
	replicas := state.replicas
	state.mu.Unlock()

	checks := evaluateChecks(policy, usage, replicas)

	passing := true
	for _, check := range checks {
		if !check.Passing {
			passing = false
			break
		}
	}

	state.mu.Lock()
	state.health.Checks = checks
	if passing {
		state.health.Status = models.AgentHealthy
		state.health.LastHealthyTime = m.now()
		state.health.ConsecutiveFailures = 0
	} else {
		state.health.ConsecutiveFailures++
		threshold := policy.FailureThreshold
		if threshold < 1 {
			threshold = 1
		}
		if state.health.ConsecutiveFailures >= threshold {
			state.health.Status = models.AgentUnhealthy
		} else {
			state.health.Status = models.AgentDegraded
		}
	}
	result := state.health
	state.mu.Unlock()

	if result.Status == models.AgentUnhealthy {
		m.logger.Warn("agent unhealthy",
			zap.String("agent_id", agentID),
			zap.Int("consecutive_failures", result.ConsecutiveFailures))
		m.emit(models.EventAgentUnhealthy, agentID, result)
	}

	return &result, nil
}

// GetAgentHealth returns the most recent health evaluation without
// re-running the checks
func (m *Manager) GetAgentHealth(agentID string) (*models.AgentHealthStatus, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	health := state.health
	return &health, nil
}

func evaluateChecks(policy models.HealthCheckPolicy, usage *models.AgentResourceUsage, replicas models.ReplicaStatus) []models.HealthCheck {
	cpuLimit := policy.CPULimitPercent
	if cpuLimit <= 0 {
		cpuLimit = 95
	}
	memLimit := policy.MemoryLimitPercent
	if memLimit <= 0 {
		memLimit = 95
	}

	// No usage yet means nothing to fail on.
	if usage == nil {
		return []models.HealthCheck{
			{Type: models.CheckCPU, Passing: true, Threshold: cpuLimit, Message: "no usage recorded yet"},
			{Type: models.CheckMemory, Passing: true, Threshold: memLimit, Message: "no usage recorded yet"},
			{Type: models.CheckReplicas, Passing: true, Message: "no usage recorded yet"},
		}
	}

	checks := []models.HealthCheck{
		{
			Type:      models.CheckCPU,
			Passing:   usage.CPU.UtilizationPercent <= cpuLimit,
			Value:     usage.CPU.UtilizationPercent,
			Threshold: cpuLimit,
		},
		{
			Type:      models.CheckMemory,
			Passing:   usage.Memory.UtilizationPercent <= memLimit,
			Value:     usage.Memory.UtilizationPercent,
			Threshold: memLimit,
		},
		{
			Type:      models.CheckReplicas,
			Passing:   replicas.Healthy >= replicas.Desired,
			Value:     float64(replicas.Healthy),
			Threshold: float64(replicas.Desired),
		},
	}

	for i := range checks {
		if !checks[i].Passing {
			checks[i].Message = fmt.Sprintf("%s check failed: value %.1f, threshold %.1f",
				checks[i].Type, checks[i].Value, checks[i].Threshold)
		}
	}
	return checks
}
