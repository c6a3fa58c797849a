package monitor

import (
	"context"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// Sampler defines the interface for collecting raw resource readings.
// The monitor never reads hardware directly; a sampler is injected so a
// Prometheus-backed, metrics-server-backed, or fake source can be swapped in.
type Sampler interface {
	Sample(ctx context.Context) (models.ResourceMetrics, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}
