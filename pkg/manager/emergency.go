package manager

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// maxEmergencyEvictions caps how many agents a single critical alert may
// scale down. Repeated alerts shed further load one batch at a time.
const maxEmergencyEvictions = 3

// HandlePressureAlert sheds load in response to a critical pressure alert
// by scaling down the lowest-priority agents. High and moderate alerts are
// ignored here; they are surfaced to operators instead.
func (m *Manager) HandlePressureAlert(ctx context.Context, alert models.PressureAlert) {
	if alert.Level != models.PressureCritical {
		return
	}

	type candidate struct {
		agentID  string
		priority int
	}

	m.mu.RLock()
	states := make(map[string]*agentState, len(m.agents))
	for id, state := range m.agents {
		states[id] = state
	}
	m.mu.RUnlock()

	var candidates []candidate
	for id, state := range states {
		state.mu.Lock()
		eligible := state.config.Scaling.Enabled &&
			state.replicas.Current > state.config.Scaling.MinReplicas
		priority := state.config.Priority
		state.mu.Unlock()

		if eligible {
			candidates = append(candidates, candidate{agentID: id, priority: priority})
		}
	}

	if len(candidates) == 0 {
		m.logger.Warn("critical pressure alert but no agent can shed replicas",
			zap.String("pressure_type", string(alert.PressureType)))
		return
	}

	// Lowest priority is sacrificed first; ties break on agent ID so the
	// selection is deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].agentID < candidates[j].agentID
	})

	if len(candidates) > maxEmergencyEvictions {
		candidates = candidates[:maxEmergencyEvictions]
	}

	reason := fmt.Sprintf("emergency scaling due to %s pressure", alert.PressureType)

	m.logger.Warn("handling critical pressure alert",
		zap.String("pressure_type", string(alert.PressureType)),
		zap.Float64("score", alert.Status.CombinedScore),
		zap.Int("targets", len(candidates)))

	for _, target := range candidates {
		// Emergency shedding bypasses the scale-down cooldown; a failure
		// on one agent must not stop the rest of the batch.
		if _, err := m.scale(ctx, target.agentID, models.ScaleDown, "emergency", reason, true); suppressQuietNoOps(err) != nil {
			m.logger.Error("emergency scale-down failed",
				zap.String("agent_id", target.agentID), zap.Error(err))
		}
	}
}
