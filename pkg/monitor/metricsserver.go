package monitor

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// MetricsServerSampler reads node-level metrics from the Kubernetes
// metrics API, summed across the cluster's nodes. Disk and network are not
// exposed by metrics-server and stay zero.
type MetricsServerSampler struct {
	clientset     kubernetes.Interface
	metricsClient metricsv.Interface
}

// NewMetricsServerSampler creates a sampler backed by metrics-server
func NewMetricsServerSampler(clientset kubernetes.Interface, metricsClient metricsv.Interface) *MetricsServerSampler {
	return &MetricsServerSampler{
		clientset:     clientset,
		metricsClient: metricsClient,
	}
}

// Sample collects one snapshot by listing node metrics and node capacity
func (m *MetricsServerSampler) Sample(ctx context.Context) (models.ResourceMetrics, error) {
	nodeMetrics, err := m.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return models.ResourceMetrics{}, fmt.Errorf("failed to list node metrics: %w", err)
	}

	nodes, err := m.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return models.ResourceMetrics{}, fmt.Errorf("failed to list nodes: %w", err)
	}

	var capacityCPU, capacityMemory int64
	for _, node := range nodes.Items {
		cpu := node.Status.Allocatable[corev1.ResourceCPU]
		mem := node.Status.Allocatable[corev1.ResourceMemory]
		capacityCPU += cpu.MilliValue()
		capacityMemory += mem.Value()
	}

	var usedCPU, usedMemory int64
	for _, nm := range nodeMetrics.Items {
		cpu := nm.Usage[corev1.ResourceCPU]
		mem := nm.Usage[corev1.ResourceMemory]
		usedCPU += cpu.MilliValue()
		usedMemory += mem.Value()
	}

	var cpuPercent float64
	if capacityCPU > 0 {
		cpuPercent = float64(usedCPU) / float64(capacityCPU) * 100.0
	}

	return models.ResourceMetrics{
		Timestamp: time.Now(),
		CPU: models.CPUMetrics{
			UsagePercent: cpuPercent,
			Cores:        int(capacityCPU / 1000),
		},
		Memory: models.MemoryMetrics{
			UsedBytes:      usedMemory,
			TotalBytes:     capacityMemory,
			AvailableBytes: capacityMemory - usedMemory,
		},
	}, nil
}

// IsAvailable reports whether the metrics API answers
func (m *MetricsServerSampler) IsAvailable(ctx context.Context) bool {
	_, err := m.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{Limit: 1})
	return err == nil
}

// Name identifies the sampler in logs and health reports
func (m *MetricsServerSampler) Name() string {
	return "metrics-server"
}
