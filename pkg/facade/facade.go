// Package facade wires the monitor, pressure detector, allocator and agent
// manager into one embeddable surface with a unified event stream.
package facade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opscart/agent-resource-manager/pkg/allocator"
	"github.com/opscart/agent-resource-manager/pkg/config"
	"github.com/opscart/agent-resource-manager/pkg/costing"
	"github.com/opscart/agent-resource-manager/pkg/manager"
	"github.com/opscart/agent-resource-manager/pkg/metricsexport"
	"github.com/opscart/agent-resource-manager/pkg/models"
	"github.com/opscart/agent-resource-manager/pkg/monitor"
	"github.com/opscart/agent-resource-manager/pkg/pressure"
	"github.com/opscart/agent-resource-manager/pkg/storage"
)

const eventBufferSize = 256

// Options carries the injected collaborators. Sampler and Scaler are
// required; everything else is optional.
type Options struct {
	Sampler   monitor.Sampler
	Scaler    manager.Scaler
	Store     storage.Store
	AlertSink pressure.AlertSink
	Exporter  *metricsexport.Exporter
}

// Facade owns the component graph and its lifecycle
type Facade struct {
	logger *zap.Logger
	cfg    *config.Config

	monitor   *monitor.Monitor
	detector  *pressure.Detector
	allocator *allocator.Allocator
	manager   *manager.Manager
	exporter  *metricsexport.Exporter

	events chan models.Event

	mu          sync.Mutex
	initialized bool
	closed      bool
	cancel      context.CancelFunc
	group       *errgroup.Group
	unsubs      []func()
}

// New builds the component graph from configuration. Nothing starts
// running until Initialize is called.
func New(logger *zap.Logger, cfg *config.Config, opts Options) (*Facade, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Sampler == nil {
		return nil, fmt.Errorf("a metrics sampler is required")
	}
	if opts.Scaler == nil {
		return nil, fmt.Errorf("a scaler is required")
	}

	anomaly, err := pressure.NewAnomalyDetector(cfg.AnomalyStrategy, cfg.AnomalyWindow, cfg.AnomalySigma)
	if err != nil {
		return nil, err
	}

	f := &Facade{
		logger:   logger,
		cfg:      cfg,
		exporter: opts.Exporter,
		events:   make(chan models.Event, eventBufferSize),
	}

	f.monitor = monitor.New(opts.Sampler, logger.Named("monitor"), monitor.Options{
		Interval:          cfg.SamplingInterval,
		CollectionTimeout: cfg.CollectionTimeout,
		HistorySize:       cfg.MetricsHistorySize,
		OfflineThreshold:  cfg.OfflineThreshold,
		OnOffline: func(failures int, err error) {
			f.publish(models.Event{
				Type:      models.EventMonitorOffline,
				Timestamp: time.Now(),
				Payload:   fmt.Sprintf("%d consecutive collection failures: %v", failures, err),
			})
		},
	})

	f.detector = pressure.New(logger.Named("pressure"), pressure.Config{
		Thresholds:        thresholdsFromConfig(cfg),
		ScorePolicy:       pressure.ScorePolicy(cfg.ScorePolicy),
		Anomaly:           anomaly,
		PredictionEnabled: cfg.PredictionEnabled,
		PredictionHorizon: cfg.PredictionHorizon,
		AlertSink:         opts.AlertSink,
		AlertTimeout:      cfg.AlertTimeout,
	})

	f.allocator = allocator.New(logger.Named("allocator"), models.SystemLimits{
		MaxAgents:       cfg.MaxAgents,
		MaxTotalCPU:     cfg.MaxTotalCPU,
		MaxTotalMemory:  cfg.MaxTotalMemory,
		MaxTotalDisk:    cfg.MaxTotalDisk,
		MaxTotalNetwork: cfg.MaxTotalNetwork,
	})

	managerOpts := manager.DefaultOptions()
	managerOpts.UsageHistorySize = cfg.UsageHistorySize
	managerOpts.EventHistorySize = cfg.EventHistorySize
	managerOpts.ScaleCallTimeout = cfg.ScaleCallTimeout
	managerOpts.Store = opts.Store
	managerOpts.Costs = costing.NewModel(cfg.CPUCostPerCore, cfg.MemoryCostPerGiB)
	managerOpts.OnEvent = f.handleManagerEvent
	f.manager = manager.NewManager(logger.Named("manager"), opts.Scaler, managerOpts)

	return f, nil
}

func thresholdsFromConfig(cfg *config.Config) pressure.Thresholds {
	return pressure.Thresholds{
		models.ResourceCPU:     {Moderate: cfg.ModerateCPU, High: cfg.HighCPU, Critical: cfg.CriticalCPU},
		models.ResourceMemory:  {Moderate: cfg.ModerateMemory, High: cfg.HighMemory, Critical: cfg.CriticalMemory},
		models.ResourceDisk:    {Moderate: cfg.ModerateDisk, High: cfg.HighDisk, Critical: cfg.CriticalDisk},
		models.ResourceNetwork: {Moderate: cfg.ModerateNetwork, High: cfg.HighNetwork, Critical: cfg.CriticalNetwork},
	}
}

// Initialize starts the periodic loops: sampling, detection and health
// checks. Calling Initialize twice is a no-op.
func (f *Facade) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("facade is shut down")
	}
	if f.initialized {
		return nil
	}

	group, loopCtx := errgroup.WithContext(ctx)
	loopCtx, cancel := context.WithCancel(loopCtx)
	f.group = group
	f.cancel = cancel

	f.monitor.Start(loopCtx)
	f.manager.StartHealthChecks(loopCtx)

	f.unsubs = append(f.unsubs, f.detector.Subscribe(func(status models.PressureStatus) {
		if f.exporter != nil {
			f.exporter.ObservePressure(status)
		}
	}))

	f.unsubs = append(f.unsubs, f.detector.SubscribeAlerts(func(alert models.PressureAlert) {
		f.publish(models.Event{
			Type:      models.EventPressureAlert,
			Timestamp: alert.Timestamp,
			Payload:   alert,
		})
		f.manager.HandlePressureAlert(loopCtx, alert)
	}))

	group.Go(func() error {
		ticker := time.NewTicker(f.cfg.DetectionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return nil
			case <-ticker.C:
				if metrics, ok := f.monitor.Latest(); ok {
					f.detector.Process(loopCtx, metrics)
				}
			}
		}
	})

	f.initialized = true
	f.logger.Info("resource manager initialized",
		zap.Duration("sampling_interval", f.cfg.SamplingInterval),
		zap.Duration("detection_interval", f.cfg.DetectionInterval))
	return nil
}

// Shutdown stops all loops deterministically. Safe to call more than once;
// in-flight external calls may finish but their results are discarded by
// the already-closed manager.
func (f *Facade) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	cancel := f.cancel
	group := f.group
	unsubs := f.unsubs
	f.unsubs = nil
	f.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if group != nil {
		if err := group.Wait(); err != nil {
			f.logger.Warn("background loop exited with error", zap.Error(err))
		}
	}

	f.monitor.Stop()
	if err := f.manager.Shutdown(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	close(f.events)
	f.mu.Unlock()

	f.logger.Info("resource manager shut down")
	return nil
}

// Events returns the unified event stream. The channel is buffered; when a
// consumer falls behind, the oldest events are dropped. It is closed by
// Shutdown.
func (f *Facade) Events() <-chan models.Event {
	return f.events
}

// publish enqueues an event, evicting the oldest entry when the buffer is
// full so the control loops never block on a slow consumer
func (f *Facade) publish(event models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	select {
	case f.events <- event:
	default:
		select {
		case <-f.events:
		default:
		}
		select {
		case f.events <- event:
		default:
		}
	}
}

func (f *Facade) handleManagerEvent(event models.Event) {
	f.publish(event)

	if f.exporter == nil {
		return
	}
	switch event.Type {
	case models.EventAgentRegistered, models.EventAgentUnregistered:
		f.exporter.SetRegisteredAgents(f.manager.AgentCount())
		if event.Type == models.EventAgentUnregistered {
			f.exporter.RemoveAgent(event.AgentID)
		}
	case models.EventAgentUsageUpdated:
		if usage, ok := event.Payload.(models.AgentResourceUsage); ok {
			f.exporter.ObserveAgentUsage(usage)
		}
	}
}

// RegisterAgent adds an agent to the managed pool
func (f *Facade) RegisterAgent(cfg models.AgentResourceConfig) error {
	return f.manager.RegisterAgent(cfg)
}

// UnregisterAgent removes an agent from the managed pool
func (f *Facade) UnregisterAgent(agentID string) error {
	return f.manager.UnregisterAgent(agentID)
}

// UpdateAgentUsage ingests one usage observation and runs the agent's
// autoscaling evaluation
func (f *Facade) UpdateAgentUsage(ctx context.Context, agentID string, cpuUsedMillicores, memoryUsedBytes int64) (*models.AgentResourceUsage, error) {
	return f.manager.UpdateAgentUsage(ctx, agentID, cpuUsedMillicores, memoryUsedBytes)
}

// ScaleAgentUp manually adds one replica
func (f *Facade) ScaleAgentUp(ctx context.Context, agentID, reason string) (bool, error) {
	return f.manager.ScaleAgentUp(ctx, agentID, reason)
}

// ScaleAgentDown manually removes one replica
func (f *Facade) ScaleAgentDown(ctx context.Context, agentID, reason string) (bool, error) {
	return f.manager.ScaleAgentDown(ctx, agentID, reason)
}

// GetAgentUsage returns the latest usage observation for an agent
func (f *Facade) GetAgentUsage(agentID string) (*models.AgentResourceUsage, error) {
	return f.manager.GetAgentUsage(agentID)
}

// GetUsageHistory returns recent usage observations, oldest first
func (f *Facade) GetUsageHistory(agentID string, limit int) ([]models.AgentResourceUsage, error) {
	return f.manager.GetUsageHistory(agentID, limit)
}

// GetAgentHealth returns the agent's most recent health evaluation
func (f *Facade) GetAgentHealth(agentID string) (*models.AgentHealthStatus, error) {
	return f.manager.GetAgentHealth(agentID)
}

// ScalingEvents returns recent scaling events, oldest first
func (f *Facade) ScalingEvents(agentID string, limit int) ([]models.ScalingEvent, error) {
	return f.manager.ScalingEvents(agentID, limit)
}

// ListAgents returns all registered agent configurations
func (f *Facade) ListAgents() []models.AgentResourceConfig {
	return f.manager.ListAgents()
}

// GenerateRecommendations analyzes an agent's history for advisory changes
func (f *Facade) GenerateRecommendations(ctx context.Context, agentID string) ([]*models.Recommendation, error) {
	return f.manager.GenerateRecommendations(ctx, agentID)
}

// ApplyRecommendation merges a recommendation into the agent's config
func (f *Facade) ApplyRecommendation(agentID string, rec *models.Recommendation) error {
	return f.manager.ApplyRecommendation(agentID, rec)
}

// Allocate requests guaranteed capacity. A denial is a normal result.
func (f *Facade) Allocate(req models.AllocationRequest) models.AllocationResult {
	result := f.allocator.Allocate(req)
	if result.Allocated {
		f.publish(models.Event{
			Type:      models.EventAllocationGranted,
			Timestamp: time.Now(),
			AgentID:   req.AgentID,
			Payload:   result.Allocation,
		})
		if f.exporter != nil {
			f.exporter.ObserveCommitted(f.allocator.Committed())
		}
	}
	return result
}

// Release frees previously committed capacity. Idempotent.
func (f *Facade) Release(requestID string) {
	f.allocator.Release(requestID)
	f.publish(models.Event{
		Type:      models.EventAllocationReleased,
		Timestamp: time.Now(),
		Payload:   requestID,
	})
	if f.exporter != nil {
		f.exporter.ObserveCommitted(f.allocator.Committed())
	}
}

// LatestMetrics returns the monitor's most recent snapshot
func (f *Facade) LatestMetrics() (models.ResourceMetrics, bool) {
	return f.monitor.Latest()
}

// PressureStatus returns the detector's most recent classification
func (f *Facade) PressureStatus() (models.PressureStatus, bool) {
	return f.detector.Latest()
}

// PressureHistory returns up to limit recent pressure statuses, oldest first
func (f *Facade) PressureHistory(limit int) []models.PressureStatus {
	return f.detector.History(limit)
}
