package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// ScaleAgentUp adds one replica to the agent. Returns true when a replica
// was added. A scale blocked by the replica ceiling or an active cooldown
// is a quiet no-op: (false, nil).
func (m *Manager) ScaleAgentUp(ctx context.Context, agentID, reason string) (bool, error) {
	scaled, err := m.scale(ctx, agentID, models.ScaleUp, "manual", reason, false)
	return scaled, suppressQuietNoOps(err)
}

// ScaleAgentDown removes one replica from the agent. Returns true when a
// replica was removed. A scale blocked by the replica floor or an active
// cooldown is a quiet no-op: (false, nil).
func (m *Manager) ScaleAgentDown(ctx context.Context, agentID, reason string) (bool, error) {
	scaled, err := m.scale(ctx, agentID, models.ScaleDown, "manual", reason, false)
	return scaled, suppressQuietNoOps(err)
}

// suppressQuietNoOps converts bound and cooldown rejections into nil.
// Genuine failures (unknown agent, disabled policy, scaler errors) pass through.
func suppressQuietNoOps(err error) error {
	if errors.Is(err, ErrReplicaBound) || errors.Is(err, ErrCooldownActive) {
		return nil
	}
	return err
}

// scale is the single path all scaling flows go through: auto, manual and
// emergency. The cooldown timestamp is consumed before the scaler call so
// a slow or failing backend cannot be hammered by concurrent attempts.
func (m *Manager) scale(ctx context.Context, agentID string, direction models.ScalingEventType, trigger, reason string, force bool) (bool, error) {
	if m.isClosed() {
		return false, ErrManagerClosed
	}

	state, err := m.agent(agentID)
	if err != nil {
		return false, err
	}

	state.mu.Lock()
	config := state.config

	if !config.Scaling.Enabled {
		state.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrScalingDisabled, agentID)
	}

	now := m.now()
	current := state.replicas.Current

	var target int32
	var cooldown time.Duration

	if direction == models.ScaleUp {
		target = current + 1
		cooldown = config.Scaling.ScaleUpCooldown
		if target > config.Scaling.MaxReplicas {
			state.mu.Unlock()
			return false, fmt.Errorf("%w: agent %s already at max replicas %d",
				ErrReplicaBound, agentID, config.Scaling.MaxReplicas)
		}
	} else {
		target = current - 1
		cooldown = config.Scaling.ScaleDownCooldown
		if target < config.Scaling.MinReplicas {
			state.mu.Unlock()
			return false, fmt.Errorf("%w: agent %s already at min replicas %d",
				ErrReplicaBound, agentID, config.Scaling.MinReplicas)
		}
	}

	// The cooldown measures from the last scaling action in either
	// direction, so a scale-up cannot be immediately undone by the next
	// usage sample. Each direction contributes its own window length.
	if !force && cooldown > 0 && !state.lastScale.IsZero() && now.Sub(state.lastScale) < cooldown {
		remaining := cooldown - now.Sub(state.lastScale)
		state.mu.Unlock()
		m.logger.Debug("scaling suppressed by cooldown",
			zap.String("agent_id", agentID),
			zap.String("direction", string(direction)),
			zap.Duration("remaining", remaining))
		return false, fmt.Errorf("%w: agent %s, %s remaining",
			ErrCooldownActive, agentID, remaining.Round(time.Millisecond))
	}

	// Consume the cooldown and mark the transition before releasing the
	// lock; the scaler call must not hold a lock that readers need.
	state.lastScale = now
	state.scaling = true
	state.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.opts.ScaleCallTimeout)
	start := m.now()
	scaleErr := m.scaler.ScaleTo(callCtx, agentID, target)
	duration := m.now().Sub(start)
	cancel()

	event := models.ScalingEvent{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		Timestamp:    now,
		Type:         direction,
		Trigger:      trigger,
		FromReplicas: current,
		ToReplicas:   target,
		Reason:       reason,
		Duration:     duration,
		Success:      scaleErr == nil,
	}
	if scaleErr != nil {
		event.Error = scaleErr.Error()
	}

	state.mu.Lock()
	state.scaling = false
	// A shutdown may have completed while the scaler call was in flight;
	// its result must not be recorded after the manager closed.
	if m.isClosed() {
		state.mu.Unlock()
		m.logger.Warn("discarding scale result after shutdown",
			zap.String("agent_id", agentID),
			zap.String("direction", string(direction)),
			zap.Int32("target", target))
		return false, ErrManagerClosed
	}
	if scaleErr == nil {
		state.replicas.Current = target
		state.replicas.Desired = target
		state.replicas.Healthy = target
	}
	state.events.Append(event)
	state.mu.Unlock()

	if m.opts.Store != nil {
		if err := m.opts.Store.SaveScalingEvent(ctx, &event); err != nil {
			m.logger.Warn("failed to persist scaling event",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}

	if scaleErr != nil {
		m.logger.Error("scaling failed",
			zap.String("agent_id", agentID),
			zap.String("direction", string(direction)),
			zap.String("trigger", trigger),
			zap.Int32("target", target),
			zap.Error(scaleErr))
		m.emit(models.EventAgentScalingFailed, agentID, event)
		return false, fmt.Errorf("failed to scale agent %s: %w", agentID, scaleErr)
	}

	m.logger.Info("agent scaled",
		zap.String("agent_id", agentID),
		zap.String("direction", string(direction)),
		zap.String("trigger", trigger),
		zap.Int32("from", current),
		zap.Int32("to", target),
		zap.String("reason", reason))

	if direction == models.ScaleUp {
		m.emit(models.EventAgentScaledUp, agentID, event)
	} else {
		m.emit(models.EventAgentScaledDown, agentID, event)
	}
	return true, nil
}
