package storage

import (
	"context"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// Store defines the interface for persistent storage. Persistence is
// best-effort from the control loop's point of view: a store failure is
// logged, never propagated into scaling decisions.
type Store interface {
	SaveScalingEvent(ctx context.Context, event *models.ScalingEvent) error
	ListScalingEvents(ctx context.Context, agentID string, limit int) ([]*models.ScalingEvent, error)

	SaveRecommendation(ctx context.Context, rec *models.Recommendation) error
	ListRecommendations(ctx context.Context, agentID string, limit int) ([]*models.Recommendation, error)

	SaveUsageSnapshot(ctx context.Context, usage *models.AgentResourceUsage) error
	GetUsageHistory(ctx context.Context, agentID string, limit int) ([]*models.AgentResourceUsage, error)

	Ping(ctx context.Context) error
	Close() error
}
