package monitor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// PrometheusSampler reads node-level resource metrics from a Prometheus
// server scraping node_exporter.
type PrometheusSampler struct {
	client v1.API
	url    string
	logger *zap.Logger
}

// NewPrometheusSampler creates a sampler backed by the given Prometheus URL
func NewPrometheusSampler(url string, logger *zap.Logger) (*PrometheusSampler, error) {
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusSampler{
		client: v1.NewAPI(client),
		url:    url,
		logger: logger,
	}, nil
}

// Sample collects one ResourceMetrics snapshot. Missing series (e.g. no GPU
// exporter) are omitted rather than treated as errors; only a failure of the
// core CPU query fails the sample.
func (p *PrometheusSampler) Sample(ctx context.Context) (models.ResourceMetrics, error) {
	cpuPercent, err := p.querySingle(ctx, `100 - (avg(rate(node_cpu_seconds_total{mode="idle"}[1m])) * 100)`)
	if err != nil {
		return models.ResourceMetrics{}, fmt.Errorf("CPU query failed: %w", err)
	}

	loadAvg, err := p.querySingle(ctx, `node_load1`)
	if err != nil {
		loadAvg = 0
	}

	memTotal, err := p.querySingle(ctx, `node_memory_MemTotal_bytes`)
	if err != nil {
		memTotal = 0
	}
	memAvailable, err := p.querySingle(ctx, `node_memory_MemAvailable_bytes`)
	if err != nil {
		memAvailable = 0
	}

	diskTotal, err := p.querySingle(ctx, `sum(node_filesystem_size_bytes{fstype!~"tmpfs|overlay"})`)
	if err != nil {
		diskTotal = 0
	}
	diskAvail, err := p.querySingle(ctx, `sum(node_filesystem_avail_bytes{fstype!~"tmpfs|overlay"})`)
	if err != nil {
		diskAvail = 0
	}
	iops, err := p.querySingle(ctx, `sum(rate(node_disk_reads_completed_total[1m]) + rate(node_disk_writes_completed_total[1m]))`)
	if err != nil {
		iops = 0
	}

	bytesIn, err := p.querySingle(ctx, `sum(rate(node_network_receive_bytes_total{device!="lo"}[1m]))`)
	if err != nil {
		bytesIn = 0
	}
	bytesOut, err := p.querySingle(ctx, `sum(rate(node_network_transmit_bytes_total{device!="lo"}[1m]))`)
	if err != nil {
		bytesOut = 0
	}

	metrics := models.ResourceMetrics{
		Timestamp: time.Now(),
		CPU: models.CPUMetrics{
			UsagePercent: cpuPercent,
			Cores:        runtime.NumCPU(),
			LoadAverage:  loadAvg,
		},
		Memory: models.MemoryMetrics{
			UsedBytes:      int64(memTotal - memAvailable),
			TotalBytes:     int64(memTotal),
			AvailableBytes: int64(memAvailable),
		},
		Disk: models.DiskMetrics{
			UsedBytes:      int64(diskTotal - diskAvail),
			TotalBytes:     int64(diskTotal),
			AvailableBytes: int64(diskAvail),
			IOPS:           iops,
		},
		Network: models.NetworkMetrics{
			BytesIn:  int64(bytesIn),
			BytesOut: int64(bytesOut),
		},
	}

	// GPU series are only present when a DCGM exporter runs; absence is normal
	if gpuUsage, err := p.queryVector(ctx, `DCGM_FI_DEV_GPU_UTIL`); err == nil {
		for i, sample := range gpuUsage {
			metrics.GPUs = append(metrics.GPUs, models.GPUMetrics{
				Index:        i,
				Name:         string(sample.Metric["modelName"]),
				UsagePercent: float64(sample.Value),
			})
		}
	}

	return metrics, nil
}

func (p *PrometheusSampler) querySingle(ctx context.Context, query string) (float64, error) {
	vector, err := p.queryVector(ctx, query)
	if err != nil {
		return 0, err
	}

	sum := 0.0
	for _, sample := range vector {
		sum += float64(sample.Value)
	}
	return sum, nil
}

func (p *PrometheusSampler) queryVector(ctx context.Context, query string) (model.Vector, error) {
	result, warnings, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(warnings) > 0 {
		p.logger.Warn("prometheus query warnings", zap.Strings("warnings", warnings), zap.String("query", query))
	}

	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		return nil, fmt.Errorf("no data for query: %s", query)
	}
	return vector, nil
}

// IsAvailable reports whether the Prometheus endpoint answers queries
func (p *PrometheusSampler) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

// Name identifies the sampler in logs and health reports
func (p *PrometheusSampler) Name() string {
	return "Prometheus"
}
