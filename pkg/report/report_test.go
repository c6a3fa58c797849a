package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/agent-resource-manager/pkg/facade"
	"github.com/opscart/agent-resource-manager/pkg/models"
)

func sampleReport() facade.HealthReport {
	return facade.HealthReport{
		Timestamp:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		SystemStatus:  models.StatusHealthy,
		PressureLevel: models.PressureModerate,
		PressureScore: 62.5,
		PressureTrend: models.TrendStable,
		Agents: []facade.AgentSummary{
			{
				AgentID:                  "worker-1",
				Status:                   models.AgentHealthy,
				CPUUtilizationPercent:    55.2,
				MemoryUtilizationPercent: 40.0,
				Replicas:                 models.ReplicaStatus{Current: 2, Desired: 2, Healthy: 2},
			},
		},
		RegisteredAgents: 1,
		Committed:        models.ResourceQuantity{CPUMillicores: 2000, MemoryBytes: 4 << 30},
		Available:        models.ResourceQuantity{CPUMillicores: 62000, MemoryBytes: 252 << 30},
	}
}

func sampleEvents() map[string][]models.ScalingEvent {
	return map[string][]models.ScalingEvent{
		"worker-1": {
			{
				Timestamp:    time.Date(2026, 8, 1, 11, 58, 0, 0, time.UTC),
				Type:         models.ScaleUp,
				Trigger:      "auto",
				FromReplicas: 1,
				ToReplicas:   2,
				Success:      true,
			},
			{
				Timestamp:    time.Date(2026, 8, 1, 11, 59, 0, 0, time.UTC),
				Type:         models.ScaleUp,
				Trigger:      "manual",
				FromReplicas: 2,
				ToReplicas:   3,
				Success:      false,
				Error:        "deployment not found",
			},
		},
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatText).Render(&buf, sampleReport(), sampleEvents()))

	out := buf.String()
	assert.Contains(t, out, "System:   healthy")
	assert.Contains(t, out, "moderate (score 62.5, trend stable)")
	assert.Contains(t, out, "worker-1")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "scale_up 1->2 (auto) ok")
	assert.Contains(t, out, "FAILED: deployment not found")
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatMarkdown).Render(&buf, sampleReport(), sampleEvents()))

	out := buf.String()
	assert.Contains(t, out, "# Agent Resource Manager Status")
	assert.Contains(t, out, "| worker-1 | healthy | 55.2 | 40.0 | 2/2 |")
	assert.Contains(t, out, "**failed**: deployment not found")
}

func TestUnknownFormatFallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New("yaml").Render(&buf, sampleReport(), nil))
	assert.Contains(t, buf.String(), "System:   healthy")
}
