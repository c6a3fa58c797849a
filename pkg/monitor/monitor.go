package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/history"
	"github.com/opscart/agent-resource-manager/pkg/models"
)

// Options configures a Monitor
type Options struct {
	Interval          time.Duration
	CollectionTimeout time.Duration
	HistorySize       int
	OfflineThreshold  int // consecutive failed ticks before status -> offline
	// OnOffline is invoked once when the failure threshold is crossed.
	// It runs on the sampling goroutine and must not block.
	OnOffline func(consecutiveFailures int, err error)
}

// Monitor samples resource metrics on an interval, keeps a bounded history,
// and pushes snapshots to subscribers. A single failed tick is logged and
// skipped; only repeated failures degrade the derived status to offline.
type Monitor struct {
	sampler Sampler
	logger  *zap.Logger
	opts    Options

	mu          sync.Mutex
	hist        *history.Ring[models.ResourceMetrics]
	subscribers map[int]func(models.ResourceMetrics)
	nextSubID   int
	failures    int
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a Monitor around the injected sampler
func New(sampler Sampler, logger *zap.Logger, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.CollectionTimeout <= 0 {
		opts.CollectionTimeout = 10 * time.Second
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 1000
	}
	if opts.OfflineThreshold <= 0 {
		opts.OfflineThreshold = 3
	}
	return &Monitor{
		sampler:     sampler,
		logger:      logger,
		opts:        opts,
		hist:        history.NewRing[models.ResourceMetrics](opts.HistorySize),
		subscribers: make(map[int]func(models.ResourceMetrics)),
	}
}

// Start begins periodic sampling. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(loopCtx)
}

// Stop cancels periodic sampling and waits for the loop to exit.
// Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Collect(ctx); err != nil {
				m.logger.Warn("sampling tick failed", zap.Error(err))
			}
		}
	}
}

// Collect performs one sampling synchronously and returns the snapshot.
// The snapshot is appended to history and pushed to subscribers.
func (m *Monitor) Collect(ctx context.Context) (models.ResourceMetrics, error) {
	sampleCtx, cancel := context.WithTimeout(ctx, m.opts.CollectionTimeout)
	defer cancel()

	metrics, err := m.sampler.Sample(sampleCtx)
	if err != nil {
		m.recordFailure(err)
		return models.ResourceMetrics{}, fmt.Errorf("sample failed: %w", err)
	}

	metrics.Status = deriveStatus(metrics)

	m.mu.Lock()
	m.failures = 0
	m.hist.Append(metrics)
	subs := make([]func(models.ResourceMetrics), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(metrics)
	}
	return metrics, nil
}

func (m *Monitor) recordFailure(err error) {
	m.mu.Lock()
	m.failures++
	failures := m.failures
	crossed := failures == m.opts.OfflineThreshold
	if crossed {
		if latest, ok := m.hist.Latest(); ok {
			latest.Status = models.StatusOffline
			latest.Timestamp = time.Now()
			m.hist.Append(latest)
		} else {
			m.hist.Append(models.ResourceMetrics{Timestamp: time.Now(), Status: models.StatusOffline})
		}
	}
	onOffline := m.opts.OnOffline
	m.mu.Unlock()

	if crossed {
		m.logger.Error("metrics source considered offline",
			zap.Int("consecutive_failures", failures), zap.Error(err))
		if onOffline != nil {
			onOffline(failures, err)
		}
	}
}

// Subscribe registers a listener for every collected snapshot and returns
// an unsubscribe function
func (m *Monitor) Subscribe(fn func(models.ResourceMetrics)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Latest returns the most recent snapshot, if any
func (m *Monitor) Latest() (models.ResourceMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hist.Latest()
}

// HistoricalMetrics returns retained snapshots within [start, end].
// Zero times leave the corresponding bound open.
func (m *Monitor) HistoricalMetrics(start, end time.Time) []models.ResourceMetrics {
	m.mu.Lock()
	items := m.hist.Items()
	m.mu.Unlock()

	out := make([]models.ResourceMetrics, 0, len(items))
	for _, metric := range items {
		if !start.IsZero() && metric.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && metric.Timestamp.After(end) {
			continue
		}
		out = append(out, metric)
	}
	return out
}

// AverageMetrics averages retained snapshots over the trailing duration
func (m *Monitor) AverageMetrics(duration time.Duration) (models.ResourceMetrics, error) {
	window := m.HistoricalMetrics(time.Now().Add(-duration), time.Time{})
	if len(window) == 0 {
		return models.ResourceMetrics{}, fmt.Errorf("no samples in the last %s", duration)
	}

	// Sum first, divide once: dividing each sample before summing would
	// compound integer truncation across the window.
	var avg models.ResourceMetrics
	n := int64(len(window))
	for _, metric := range window {
		avg.CPU.UsagePercent += metric.CPU.UsagePercent
		avg.CPU.LoadAverage += metric.CPU.LoadAverage
		avg.Memory.UsedBytes += metric.Memory.UsedBytes
		avg.Memory.TotalBytes += metric.Memory.TotalBytes
		avg.Memory.AvailableBytes += metric.Memory.AvailableBytes
		avg.Disk.UsedBytes += metric.Disk.UsedBytes
		avg.Disk.TotalBytes += metric.Disk.TotalBytes
		avg.Disk.AvailableBytes += metric.Disk.AvailableBytes
		avg.Disk.IOPS += metric.Disk.IOPS
		avg.Network.LatencyMillis += metric.Network.LatencyMillis
		avg.Network.BandwidthMbps += metric.Network.BandwidthMbps
		avg.Network.UtilizedMbps += metric.Network.UtilizedMbps
		avg.Network.BytesIn += metric.Network.BytesIn
		avg.Network.BytesOut += metric.Network.BytesOut
	}
	avg.CPU.UsagePercent /= float64(n)
	avg.CPU.LoadAverage /= float64(n)
	avg.CPU.Cores = window[len(window)-1].CPU.Cores
	avg.Memory.UsedBytes /= n
	avg.Memory.TotalBytes /= n
	avg.Memory.AvailableBytes /= n
	avg.Disk.UsedBytes /= n
	avg.Disk.TotalBytes /= n
	avg.Disk.AvailableBytes /= n
	avg.Disk.IOPS /= float64(n)
	avg.Network.LatencyMillis /= float64(n)
	avg.Network.BandwidthMbps /= float64(n)
	avg.Network.UtilizedMbps /= float64(n)
	avg.Network.BytesIn /= n
	avg.Network.BytesOut /= n
	avg.Timestamp = window[len(window)-1].Timestamp
	avg.Status = deriveStatus(avg)
	return avg, nil
}

// ConsecutiveFailures reports the current failed-tick streak
func (m *Monitor) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

func deriveStatus(metrics models.ResourceMetrics) models.ResourceStatus {
	cpu := metrics.CPU.UsagePercent
	mem := metrics.Memory.UtilizationPercent()
	switch {
	case cpu >= 95 || mem >= 95:
		return models.StatusOverloaded
	case cpu >= 85 || mem >= 85:
		return models.StatusDegraded
	default:
		return models.StatusHealthy
	}
}
