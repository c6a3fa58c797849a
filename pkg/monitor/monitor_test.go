package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// fakeSampler returns canned metrics and can be flipped into failure mode
type fakeSampler struct {
	mu      sync.Mutex
	cpu     float64
	memUsed int64
	failing bool
	calls   int
}

func (f *fakeSampler) Sample(ctx context.Context) (models.ResourceMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return models.ResourceMetrics{}, fmt.Errorf("scrape refused")
	}
	used := f.memUsed
	if used == 0 {
		used = 4 << 30
	}
	return models.ResourceMetrics{
		Timestamp: time.Now(),
		CPU:       models.CPUMetrics{UsagePercent: f.cpu, Cores: 8},
		Memory:    models.MemoryMetrics{UsedBytes: used, TotalBytes: 16 << 30, AvailableBytes: 12 << 30},
	}, nil
}

func (f *fakeSampler) IsAvailable(ctx context.Context) bool { return !f.failing }
func (f *fakeSampler) Name() string                         { return "fake" }

func (f *fakeSampler) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func newTestMonitor(s Sampler, opts Options) *Monitor {
	return New(s, zap.NewNop(), opts)
}

func TestCollectAppendsHistoryAndNotifies(t *testing.T) {
	sampler := &fakeSampler{cpu: 42}
	m := newTestMonitor(sampler, Options{HistorySize: 10})

	var got []models.ResourceMetrics
	unsubscribe := m.Subscribe(func(metric models.ResourceMetrics) {
		got = append(got, metric)
	})
	defer unsubscribe()

	metric, err := m.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 42.0, metric.CPU.UsagePercent)
	assert.Equal(t, models.StatusHealthy, metric.Status)
	assert.Len(t, got, 1)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, metric.Timestamp, latest.Timestamp)
}

func TestDerivedStatusThresholds(t *testing.T) {
	tests := []struct {
		cpu    float64
		status models.ResourceStatus
	}{
		{50, models.StatusHealthy},
		{86, models.StatusDegraded},
		{96, models.StatusOverloaded},
	}

	for _, tt := range tests {
		sampler := &fakeSampler{cpu: tt.cpu}
		m := newTestMonitor(sampler, Options{})

		metric, err := m.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.status, metric.Status, "cpu %.0f%%", tt.cpu)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	sampler := &fakeSampler{cpu: 10}
	m := newTestMonitor(sampler, Options{})

	calls := 0
	unsubscribe := m.Subscribe(func(models.ResourceMetrics) { calls++ })

	_, err := m.Collect(context.Background())
	require.NoError(t, err)
	unsubscribe()
	_, err = m.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestConsecutiveFailuresEscalateToOffline(t *testing.T) {
	sampler := &fakeSampler{cpu: 10}
	var offlineFailures int
	m := newTestMonitor(sampler, Options{
		OfflineThreshold: 2,
		OnOffline:        func(failures int, err error) { offlineFailures = failures },
	})

	_, err := m.Collect(context.Background())
	require.NoError(t, err)

	sampler.setFailing(true)
	_, err = m.Collect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, offlineFailures, "one failure must not escalate")

	_, err = m.Collect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, offlineFailures)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, models.StatusOffline, latest.Status)

	// recovery resets the streak
	sampler.setFailing(false)
	_, err = m.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.ConsecutiveFailures())
}

func TestHistoricalMetricsRange(t *testing.T) {
	sampler := &fakeSampler{cpu: 10}
	m := newTestMonitor(sampler, Options{HistorySize: 10})

	for i := 0; i < 3; i++ {
		_, err := m.Collect(context.Background())
		require.NoError(t, err)
	}

	all := m.HistoricalMetrics(time.Time{}, time.Time{})
	assert.Len(t, all, 3)

	none := m.HistoricalMetrics(time.Now().Add(time.Hour), time.Time{})
	assert.Empty(t, none)
}

func TestAverageMetrics(t *testing.T) {
	sampler := &fakeSampler{cpu: 40}
	m := newTestMonitor(sampler, Options{HistorySize: 10})

	_, err := m.Collect(context.Background())
	require.NoError(t, err)
	sampler.mu.Lock()
	sampler.cpu = 60
	sampler.mu.Unlock()
	_, err = m.Collect(context.Background())
	require.NoError(t, err)

	avg, err := m.AverageMetrics(time.Minute)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, avg.CPU.UsagePercent, 0.001)

	_, err = m.AverageMetrics(time.Nanosecond)
	assert.Error(t, err)
}

func TestAverageMetricsSumsBeforeDividing(t *testing.T) {
	// 5 bytes per sample does not divide by 3; truncating each sample
	// before summing would report 3 instead of 5.
	sampler := &fakeSampler{cpu: 10, memUsed: 5}
	m := newTestMonitor(sampler, Options{HistorySize: 10})

	for i := 0; i < 3; i++ {
		_, err := m.Collect(context.Background())
		require.NoError(t, err)
	}

	avg, err := m.AverageMetrics(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), avg.Memory.UsedBytes)
}

func TestStartStopDeterministic(t *testing.T) {
	sampler := &fakeSampler{cpu: 10}
	m := newTestMonitor(sampler, Options{Interval: 5 * time.Millisecond})

	m.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	m.Stop()

	sampler.mu.Lock()
	calls := sampler.calls
	sampler.mu.Unlock()
	assert.Greater(t, calls, 0)

	time.Sleep(15 * time.Millisecond)
	sampler.mu.Lock()
	after := sampler.calls
	sampler.mu.Unlock()
	assert.Equal(t, calls, after, "no samples after Stop")

	// Stop is idempotent
	m.Stop()
}
