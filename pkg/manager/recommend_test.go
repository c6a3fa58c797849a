package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

func feedUsage(t *testing.T, m *Manager, agentID string, cpuMillicores, memoryBytes int64, samples int) {
	t.Helper()
	for i := 0; i < samples; i++ {
		_, err := m.UpdateAgentUsage(context.Background(), agentID, cpuMillicores, memoryBytes)
		require.NoError(t, err)
	}
}

func TestRecommendationsRequireEnoughHistory(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	require.NoError(t, m.RegisterAgent(cfg))

	feedUsage(t, m, "worker-1", 500, 100<<20, 3)

	recs, err := m.GenerateRecommendations(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHighCPURecommendsLargerCeiling(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	cfg.CPU.MaxMillicores = 4000
	require.NoError(t, m.RegisterAgent(cfg))

	// 3600m of 4000m is a sustained 90%
	feedUsage(t, m, "worker-1", 3600, 100<<20, 10)

	recs, err := m.GenerateRecommendations(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	var adjustment *models.Recommendation
	for _, rec := range recs {
		if rec.Type == models.RecommendationResourceAdjustment && rec.Recommended.CPUMaxMillicores != nil {
			adjustment = rec
			break
		}
	}
	require.NotNil(t, adjustment, "expected a CPU resource_adjustment recommendation")
	assert.Greater(t, *adjustment.Recommended.CPUMaxMillicores, int64(4000))
	assert.Equal(t, int64(6000), *adjustment.Recommended.CPUMaxMillicores)
	assert.NotEmpty(t, adjustment.Reasoning)
	assert.Greater(t, adjustment.Confidence, 0.0)
}

func TestIdleCPURecommendsSmallerCeiling(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	cfg.CPU.MaxMillicores = 4000
	cfg.CPU.MinMillicores = 500
	require.NoError(t, m.RegisterAgent(cfg))

	// 400m of 4000m is a sustained 10%
	feedUsage(t, m, "worker-1", 400, 100<<20, 10)

	recs, err := m.GenerateRecommendations(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	found := false
	for _, rec := range recs {
		if rec.Type == models.RecommendationResourceAdjustment && rec.Recommended.CPUMaxMillicores != nil {
			assert.Equal(t, int64(3200), *rec.Recommended.CPUMaxMillicores)
			found = true
		}
	}
	assert.True(t, found)
}

func TestCPURecommendationCapAndFloor(t *testing.T) {
	m := newTestManager(t, nil)

	// 1.5x of 12000m would exceed the 16-core cap
	cfg := testConfig("capped")
	cfg.Scaling.Enabled = false
	cfg.CPU.MaxMillicores = 12000
	require.NoError(t, m.RegisterAgent(cfg))
	feedUsage(t, m, "capped", 11400, 100<<20, 10)

	recs, err := m.GenerateRecommendations(context.Background(), "capped")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	require.NotNil(t, recs[0].Recommended.CPUMaxMillicores)
	assert.Equal(t, int64(16000), *recs[0].Recommended.CPUMaxMillicores)
}

func TestHighMemoryRecommendsLargerCeiling(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	cfg.Memory.MaxBytes = 1 << 30
	require.NoError(t, m.RegisterAgent(cfg))

	// 90% of 1 GiB
	feedUsage(t, m, "worker-1", 500, (1<<30)*9/10, 10)

	recs, err := m.GenerateRecommendations(context.Background(), "worker-1")
	require.NoError(t, err)

	found := false
	for _, rec := range recs {
		if rec.Recommended.MemoryMaxBytes != nil {
			assert.Greater(t, *rec.Recommended.MemoryMaxBytes, int64(1<<30))
			found = true
		}
	}
	assert.True(t, found, "expected a memory resource_adjustment recommendation")
}

func TestBestEffortUnderSustainedLoadSuggestsBurstable(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	cfg.Scaling.Enabled = false
	cfg.QoS = models.QoSBestEffort
	require.NoError(t, m.RegisterAgent(cfg))

	// 80% CPU and 78% memory, both above the 70% promotion line
	feedUsage(t, m, "worker-1", 800, (1<<30)*78/100, 10)

	recs, err := m.GenerateRecommendations(context.Background(), "worker-1")
	require.NoError(t, err)

	var qosRec *models.Recommendation
	for _, rec := range recs {
		if rec.Type == models.RecommendationQoSChange {
			qosRec = rec
			break
		}
	}
	require.NotNil(t, qosRec, "expected a qos_change recommendation")
	require.NotNil(t, qosRec.Recommended.QoS)
	assert.Equal(t, models.QoSBurstable, *qosRec.Recommended.QoS)
}

func TestScalingChurnSuggestsWiderBand(t *testing.T) {
	scaler := &fakeScaler{}
	m := newTestManager(t, scaler)

	cfg := testConfig("worker-1")
	require.NoError(t, m.RegisterAgent(cfg))

	// Generate 12 scaling events by bouncing between the bounds
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		scaled, err := m.ScaleAgentUp(ctx, "worker-1", "churn")
		require.NoError(t, err)
		require.True(t, scaled)
		scaled, err = m.ScaleAgentDown(ctx, "worker-1", "churn")
		require.NoError(t, err)
		require.True(t, scaled)
	}

	feedUsage(t, m, "worker-1", 500, 500<<20, 10)

	recs, err := m.GenerateRecommendations(ctx, "worker-1")
	require.NoError(t, err)

	var policyRec *models.Recommendation
	for _, rec := range recs {
		if rec.Type == models.RecommendationScalingPolicy {
			policyRec = rec
			break
		}
	}
	require.NotNil(t, policyRec, "expected a scaling_policy recommendation")
	assert.Equal(t, 80.0, *policyRec.Recommended.ScaleUpThreshold)
	assert.Equal(t, 20.0, *policyRec.Recommended.ScaleDownThreshold)
}

func TestApplyRecommendationMergesFragment(t *testing.T) {
	m := newTestManager(t, nil)

	cfg := testConfig("worker-1")
	require.NoError(t, m.RegisterAgent(cfg))

	newMax := int64(2000)
	rec := &models.Recommendation{
		ID:          "rec-1",
		AgentID:     "worker-1",
		Type:        models.RecommendationResourceAdjustment,
		Recommended: models.ConfigFragment{CPUMaxMillicores: &newMax},
	}
	require.NoError(t, m.ApplyRecommendation("worker-1", rec))

	got, err := m.GetAgentConfig("worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.CPU.MaxMillicores)
	// Untouched fields survive
	assert.Equal(t, int64(1<<30), got.Memory.MaxBytes)
}

func TestApplyRecommendationRejectsInvalidFragment(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.RegisterAgent(testConfig("worker-1")))

	belowMin := int64(50) // config min is 100m
	rec := &models.Recommendation{
		Recommended: models.ConfigFragment{CPUMaxMillicores: &belowMin},
	}
	assert.Error(t, m.ApplyRecommendation("worker-1", rec))

	up, down := 30.0, 60.0 // inverted band
	rec = &models.Recommendation{
		Recommended: models.ConfigFragment{ScaleUpThreshold: &up, ScaleDownThreshold: &down},
	}
	assert.Error(t, m.ApplyRecommendation("worker-1", rec))

	assert.ErrorIs(t, m.ApplyRecommendation("ghost", rec), ErrNotFound)
}

func TestApplyRecommendationRejectionLeavesConfigUntouched(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.RegisterAgent(testConfig("worker-1")))
	before, err := m.GetAgentConfig("worker-1")
	require.NoError(t, err)

	// The CPU field on its own would pass; the inverted band must reject
	// the whole fragment without committing any of it.
	newMax := int64(2000)
	up, down := 30.0, 60.0
	rec := &models.Recommendation{
		Recommended: models.ConfigFragment{
			CPUMaxMillicores:   &newMax,
			ScaleUpThreshold:   &up,
			ScaleDownThreshold: &down,
		},
	}
	require.Error(t, m.ApplyRecommendation("worker-1", rec))

	after, err := m.GetAgentConfig("worker-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(1000), after.CPU.MaxMillicores)
	assert.Equal(t, 75.0, after.Scaling.ScaleUpThreshold)
	assert.Equal(t, 25.0, after.Scaling.ScaleDownThreshold)
}
