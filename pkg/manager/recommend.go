package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

const (
	minRecommendationSamples = 5

	cpuOverloadPercent  = 80
	cpuIdlePercent      = 30
	memOverloadPercent  = 85
	qosPromotionPercent = 70

	maxRecommendedCPUMillicores = 16000
	maxRecommendedMemoryBytes   = 32 * 1024 * 1024 * 1024

	// churnWindow and churnEventLimit flag agents whose scaling policy
	// flaps: more than churnEventLimit events inside the window suggests
	// the thresholds are too close together.
	churnWindow     = 24 * time.Hour
	churnEventLimit = 10
)

// GenerateRecommendations analyzes an agent's usage history and produces
// advisory configuration changes. Recommendations are never applied
// automatically; callers review and pass them to ApplyRecommendation.
func (m *Manager) GenerateRecommendations(ctx context.Context, agentID string) ([]*models.Recommendation, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	config := state.config
	samples := state.history.Items()
	events := state.events.Items()
	state.mu.Unlock()

	if len(samples) < minRecommendationSamples {
		return nil, nil
	}

	var cpuSum, memSum float64
	for _, sample := range samples {
		cpuSum += sample.CPU.UtilizationPercent
		memSum += sample.Memory.UtilizationPercent
	}
	avgCPU := cpuSum / float64(len(samples))
	avgMem := memSum / float64(len(samples))

	confidence := float64(len(samples)) / float64(m.opts.UsageHistorySize)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0.1 {
		confidence = 0.1
	}

	var recommendations []*models.Recommendation

	if rec := m.recommendCPU(config, avgCPU, confidence); rec != nil {
		recommendations = append(recommendations, rec)
	}
	if rec := m.recommendMemory(config, avgMem, confidence); rec != nil {
		recommendations = append(recommendations, rec)
	}
	if rec := m.recommendScalingPolicy(config, events, confidence); rec != nil {
		recommendations = append(recommendations, rec)
	}
	if rec := m.recommendQoS(config, avgCPU, avgMem, confidence); rec != nil {
		recommendations = append(recommendations, rec)
	}

	if m.opts.Store != nil {
		for _, rec := range recommendations {
			if err := m.opts.Store.SaveRecommendation(ctx, rec); err != nil {
				m.logger.Warn("failed to persist recommendation",
					zap.String("agent_id", agentID), zap.Error(err))
			}
		}
	}

	return recommendations, nil
}

func (m *Manager) recommendCPU(config models.AgentResourceConfig, avgCPU, confidence float64) *models.Recommendation {
	current := config.CPU.MaxMillicores

	var proposed int64
	var reasoning string
	switch {
	case avgCPU > cpuOverloadPercent:
		proposed = int64(float64(current) * 1.5)
		if proposed > maxRecommendedCPUMillicores {
			proposed = maxRecommendedCPUMillicores
		}
		reasoning = fmt.Sprintf("average CPU utilization %.1f%% exceeds %d%%; raise the CPU ceiling", avgCPU, cpuOverloadPercent)
	case avgCPU < cpuIdlePercent:
		proposed = int64(float64(current) * 0.8)
		if proposed < config.CPU.MinMillicores {
			proposed = config.CPU.MinMillicores
		}
		reasoning = fmt.Sprintf("average CPU utilization %.1f%% below %d%%; reclaim unused CPU", avgCPU, cpuIdlePercent)
	default:
		return nil
	}

	if proposed == current {
		return nil
	}

	perf := "reduces CPU throttling under sustained load"
	stability := "lower risk of saturation"
	if proposed < current {
		perf = "no measurable impact at observed utilization"
		stability = "neutral"
	}

	return &models.Recommendation{
		ID:          uuid.New().String(),
		AgentID:     config.AgentID,
		Type:        models.RecommendationResourceAdjustment,
		Current:     models.ConfigFragment{CPUMaxMillicores: ptr(current)},
		Recommended: models.ConfigFragment{CPUMaxMillicores: ptr(proposed)},
		Impact: models.Impact{
			Performance: perf,
			Cost:        m.opts.Costs.DeltaDescription(current, proposed, 0, 0),
			Stability:   stability,
		},
		Confidence: confidence,
		Reasoning:  []string{reasoning},
		CreatedAt:  m.now(),
	}
}

func (m *Manager) recommendMemory(config models.AgentResourceConfig, avgMem, confidence float64) *models.Recommendation {
	if avgMem <= memOverloadPercent {
		return nil
	}

	current := config.Memory.MaxBytes
	proposed := int64(float64(current) * 1.3)
	if proposed > maxRecommendedMemoryBytes {
		proposed = maxRecommendedMemoryBytes
	}
	if proposed == current {
		return nil
	}

	return &models.Recommendation{
		ID:          uuid.New().String(),
		AgentID:     config.AgentID,
		Type:        models.RecommendationResourceAdjustment,
		Current:     models.ConfigFragment{MemoryMaxBytes: ptr(current)},
		Recommended: models.ConfigFragment{MemoryMaxBytes: ptr(proposed)},
		Impact: models.Impact{
			Performance: "headroom against memory pressure and OOM kills",
			Cost:        m.opts.Costs.DeltaDescription(0, 0, current, proposed),
			Stability:   "lower risk of eviction",
		},
		Confidence: confidence,
		Reasoning: []string{fmt.Sprintf("average memory utilization %.1f%% exceeds %d%%; raise the memory ceiling",
			avgMem, memOverloadPercent)},
		CreatedAt: m.now(),
	}
}

func (m *Manager) recommendScalingPolicy(config models.AgentResourceConfig, events []models.ScalingEvent, confidence float64) *models.Recommendation {
	if !config.Scaling.Enabled {
		return nil
	}

	cutoff := m.now().Add(-churnWindow)
	recent := 0
	for _, event := range events {
		if event.Timestamp.After(cutoff) {
			recent++
		}
	}
	if recent <= churnEventLimit {
		return nil
	}

	up := config.Scaling.ScaleUpThreshold + 5
	down := config.Scaling.ScaleDownThreshold - 5
	if up > 95 {
		up = 95
	}
	if down < 5 {
		down = 5
	}
	if up == config.Scaling.ScaleUpThreshold && down == config.Scaling.ScaleDownThreshold {
		return nil
	}

	return &models.Recommendation{
		ID:      uuid.New().String(),
		AgentID: config.AgentID,
		Type:    models.RecommendationScalingPolicy,
		Current: models.ConfigFragment{
			ScaleUpThreshold:   ptr(config.Scaling.ScaleUpThreshold),
			ScaleDownThreshold: ptr(config.Scaling.ScaleDownThreshold),
		},
		Recommended: models.ConfigFragment{
			ScaleUpThreshold:   ptr(up),
			ScaleDownThreshold: ptr(down),
		},
		Impact: models.Impact{
			Performance: "slower reaction to load changes",
			Cost:        "unchanged",
			Stability:   "fewer replica oscillations",
		},
		Confidence: confidence,
		Reasoning: []string{fmt.Sprintf("%d scaling events in the last %s indicate threshold flapping; widen the band",
			recent, churnWindow)},
		CreatedAt: m.now(),
	}
}

func (m *Manager) recommendQoS(config models.AgentResourceConfig, avgCPU, avgMem, confidence float64) *models.Recommendation {
	if config.QoS != models.QoSBestEffort {
		return nil
	}
	if avgCPU <= qosPromotionPercent || avgMem <= qosPromotionPercent {
		return nil
	}

	proposed := models.QoSBurstable
	currentQoS := config.QoS

	return &models.Recommendation{
		ID:          uuid.New().String(),
		AgentID:     config.AgentID,
		Type:        models.RecommendationQoSChange,
		Current:     models.ConfigFragment{QoS: &currentQoS},
		Recommended: models.ConfigFragment{QoS: &proposed},
		Impact: models.Impact{
			Performance: "protected from eviction under pressure",
			Cost:        "unchanged",
			Stability:   "higher survival priority",
		},
		Confidence: confidence,
		Reasoning: []string{fmt.Sprintf("sustained utilization (cpu %.1f%%, memory %.1f%%) is too high for best-effort QoS",
			avgCPU, avgMem)},
		CreatedAt: m.now(),
	}
}

// ApplyRecommendation merges a recommendation's fragment into the agent's
// config. Nil fields in the fragment leave the current value untouched.
// The fragment is applied all-or-nothing: a rejected fragment leaves the
// live config exactly as it was.
func (m *Manager) ApplyRecommendation(agentID string, rec *models.Recommendation) error {
	if rec == nil {
		return fmt.Errorf("recommendation must not be nil")
	}

	state, err := m.agent(agentID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	// Stage the merge on a copy; commit only after every check passes.
	updated := state.config
	fragment := rec.Recommended
	if fragment.CPUMaxMillicores != nil {
		if *fragment.CPUMaxMillicores < updated.CPU.MinMillicores {
			return fmt.Errorf("recommended CPU max %dm below configured min %dm",
				*fragment.CPUMaxMillicores, updated.CPU.MinMillicores)
		}
		updated.CPU.MaxMillicores = *fragment.CPUMaxMillicores
	}
	if fragment.MemoryMaxBytes != nil {
		if *fragment.MemoryMaxBytes < updated.Memory.MinBytes {
			return fmt.Errorf("recommended memory max %d below configured min %d",
				*fragment.MemoryMaxBytes, updated.Memory.MinBytes)
		}
		updated.Memory.MaxBytes = *fragment.MemoryMaxBytes
	}
	if fragment.ScaleUpThreshold != nil {
		updated.Scaling.ScaleUpThreshold = *fragment.ScaleUpThreshold
	}
	if fragment.ScaleDownThreshold != nil {
		updated.Scaling.ScaleDownThreshold = *fragment.ScaleDownThreshold
	}
	if updated.Scaling.Enabled &&
		updated.Scaling.ScaleDownThreshold >= updated.Scaling.ScaleUpThreshold {
		return fmt.Errorf("recommended thresholds invert the scaling band")
	}
	if fragment.QoS != nil {
		updated.QoS = *fragment.QoS
	}
	state.config = updated

	m.logger.Info("recommendation applied",
		zap.String("agent_id", agentID),
		zap.String("recommendation_id", rec.ID),
		zap.String("type", string(rec.Type)))
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
