package manager

import (
	"context"
	"fmt"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Scaler applies a replica count to an agent's backing workload.
// Implementations must be safe for concurrent use; the manager serializes
// calls per agent but not across agents.
type Scaler interface {
	// ScaleTo sets the workload backing agentID to the given replica count
	ScaleTo(ctx context.Context, agentID string, replicas int32) error

	// Name returns the scaler name for logging
	Name() string
}

// KubernetesScaler scales agents backed by Kubernetes Deployments.
// The agent ID is used as the Deployment name.
type KubernetesScaler struct {
	client    kubernetes.Interface
	namespace string
}

// NewKubernetesScaler creates a scaler targeting Deployments in a namespace
func NewKubernetesScaler(client kubernetes.Interface, namespace string) *KubernetesScaler {
	if namespace == "" {
		namespace = "default"
	}
	return &KubernetesScaler{
		client:    client,
		namespace: namespace,
	}
}

// ScaleTo updates the Deployment's scale subresource
func (s *KubernetesScaler) ScaleTo(ctx context.Context, agentID string, replicas int32) error {
	scale, err := s.client.AppsV1().Deployments(s.namespace).GetScale(ctx, agentID, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get scale for deployment %s: %w", agentID, err)
	}

	scale.Spec.Replicas = replicas

	_, err = s.client.AppsV1().Deployments(s.namespace).UpdateScale(ctx, agentID, scale, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to scale deployment %s to %d replicas: %w", agentID, replicas, err)
	}

	return nil
}

// Name returns the scaler name
func (s *KubernetesScaler) Name() string {
	return "kubernetes"
}

// NoopScaler accepts every scaling call without touching any backend.
// Useful for dry runs and for deployments where replica counts are
// tracked but not enforced.
type NoopScaler struct {
	mu       sync.Mutex
	replicas map[string]int32
}

// NewNoopScaler creates a scaler that only records requested counts
func NewNoopScaler() *NoopScaler {
	return &NoopScaler{replicas: make(map[string]int32)}
}

// ScaleTo records the requested replica count
func (s *NoopScaler) ScaleTo(_ context.Context, agentID string, replicas int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicas[agentID] = replicas
	return nil
}

// Replicas returns the last requested count for an agent
func (s *NoopScaler) Replicas(agentID string) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replicas[agentID]
	return r, ok
}

// Name returns the scaler name
func (s *NoopScaler) Name() string {
	return "noop"
}
