package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/costing"
	"github.com/opscart/agent-resource-manager/pkg/history"
	"github.com/opscart/agent-resource-manager/pkg/models"
	"github.com/opscart/agent-resource-manager/pkg/storage"
)

// Options configures a Manager
type Options struct {
	// UsageHistorySize bounds the per-agent usage ring
	UsageHistorySize int

	// EventHistorySize bounds the per-agent scaling event ring
	EventHistorySize int

	// ScaleCallTimeout bounds each call into the Scaler
	ScaleCallTimeout time.Duration

	// HealthCheckInterval is the tick of the background health loop.
	// Per-agent policies further gate how often each agent is evaluated.
	HealthCheckInterval time.Duration

	// Store receives scaling events, recommendations and usage snapshots.
	// Optional; persistence failures are logged, never propagated.
	Store storage.Store

	// Costs prices recommendation impact. Defaults to NewModel(0, 0).
	Costs *costing.Model

	// OnEvent receives lifecycle events. Called synchronously; must not block.
	OnEvent func(models.Event)
}

// DefaultOptions returns options suitable for most deployments
func DefaultOptions() Options {
	return Options{
		UsageHistorySize:    1000,
		EventHistorySize:    100,
		ScaleCallTimeout:    30 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// agentState is everything the manager tracks per agent. The embedded
// mutex serializes all state transitions for one agent, including the
// scaling check-and-set, without blocking other agents.
type agentState struct {
	mu sync.Mutex

	config  models.AgentResourceConfig
	usage   *models.AgentResourceUsage
	history *history.Ring[models.AgentResourceUsage]
	events  *history.Ring[models.ScalingEvent]
	health  models.AgentHealthStatus

	replicas      models.ReplicaStatus
	lastScale     time.Time
	lastHealthRun time.Time
	scaling       bool
}

// Manager owns the registry of agents and drives scaling, health
// evaluation and recommendations for them
type Manager struct {
	logger *zap.Logger
	scaler Scaler
	opts   Options

	mu     sync.RWMutex
	agents map[string]*agentState
	closed bool

	healthCancel context.CancelFunc
	healthDone   chan struct{}

	now func() time.Time
}

// NewManager creates a manager driving the given scaler
func NewManager(logger *zap.Logger, scaler Scaler, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UsageHistorySize < 1 {
		opts.UsageHistorySize = 1000
	}
	if opts.EventHistorySize < 1 {
		opts.EventHistorySize = 100
	}
	if opts.ScaleCallTimeout <= 0 {
		opts.ScaleCallTimeout = 30 * time.Second
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = 30 * time.Second
	}
	if opts.Costs == nil {
		opts.Costs = costing.NewModel(0, 0)
	}

	return &Manager{
		logger: logger,
		scaler: scaler,
		opts:   opts,
		agents: make(map[string]*agentState),
		now:    time.Now,
	}
}

// RegisterAgent adds an agent to the registry. Registration fails fast
// on a duplicate ID rather than silently overwriting the existing config.
func (m *Manager) RegisterAgent(config models.AgentResourceConfig) error {
	if err := validateConfig(&config); err != nil {
		return err
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, exists := m.agents[config.AgentID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, config.AgentID)
	}

	initial := int32(1)
	if config.Scaling.Enabled && config.Scaling.MinReplicas > initial {
		initial = config.Scaling.MinReplicas
	}

	m.agents[config.AgentID] = &agentState{
		config:  config,
		history: history.NewRing[models.AgentResourceUsage](m.opts.UsageHistorySize),
		events:  history.NewRing[models.ScalingEvent](m.opts.EventHistorySize),
		replicas: models.ReplicaStatus{
			Current: initial,
			Desired: initial,
			Healthy: initial,
		},
		health: models.AgentHealthStatus{
			AgentID:         config.AgentID,
			Status:          models.AgentHealthy,
			LastHealthyTime: m.now(),
		},
	}
	m.mu.Unlock()

	m.logger.Info("agent registered",
		zap.String("agent_id", config.AgentID),
		zap.String("agent_type", config.AgentType),
		zap.String("qos", string(config.QoS)),
		zap.Int("priority", config.Priority))

	m.emit(models.EventAgentRegistered, config.AgentID, config)
	return nil
}

// UnregisterAgent removes an agent and drops its in-memory state
func (m *Manager) UnregisterAgent(agentID string) error {
	m.mu.Lock()
	_, exists := m.agents[agentID]
	if exists {
		delete(m.agents, agentID)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}

	m.logger.Info("agent unregistered", zap.String("agent_id", agentID))
	m.emit(models.EventAgentUnregistered, agentID, nil)
	return nil
}

// UpdateAgentConfig replaces an agent's configuration in place.
// The agent ID itself is immutable.
func (m *Manager) UpdateAgentConfig(config models.AgentResourceConfig) error {
	if err := validateConfig(&config); err != nil {
		return err
	}

	state, err := m.agent(config.AgentID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	state.config = config
	state.mu.Unlock()

	m.logger.Info("agent config updated", zap.String("agent_id", config.AgentID))
	return nil
}

// UpdateAgentUsage records one usage observation for an agent, derives
// its status, and evaluates the autoscaling policy synchronously.
func (m *Manager) UpdateAgentUsage(ctx context.Context, agentID string, cpuUsedMillicores, memoryUsedBytes int64) (*models.AgentResourceUsage, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	config := state.config

	usage := models.AgentResourceUsage{
		AgentID:   agentID,
		Timestamp: m.now(),
		CPU: models.CPUUsage{
			UsedMillicores:  cpuUsedMillicores,
			LimitMillicores: config.CPU.MaxMillicores,
		},
		Memory: models.MemoryUsage{
			UsedBytes:  memoryUsedBytes,
			LimitBytes: config.Memory.MaxBytes,
		},
		Replicas: state.replicas,
	}
	if config.CPU.MaxMillicores > 0 {
		usage.CPU.UtilizationPercent = float64(cpuUsedMillicores) / float64(config.CPU.MaxMillicores) * 100
	}
	if config.Memory.MaxBytes > 0 {
		usage.Memory.UtilizationPercent = float64(memoryUsedBytes) / float64(config.Memory.MaxBytes) * 100
	}
	usage.Status = deriveAgentStatus(usage, state.scaling)

	state.usage = &usage
	state.history.Append(usage)
	state.mu.Unlock()

	m.emit(models.EventAgentUsageUpdated, agentID, usage)

	if m.opts.Store != nil {
		if err := m.opts.Store.SaveUsageSnapshot(ctx, &usage); err != nil {
			m.logger.Warn("failed to persist usage snapshot",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}

	m.evaluateScaling(ctx, agentID, usage, config)

	return &usage, nil
}

// evaluateScaling applies the agent's scaling policy against the average
// of CPU and memory utilization
func (m *Manager) evaluateScaling(ctx context.Context, agentID string, usage models.AgentResourceUsage, config models.AgentResourceConfig) {
	if !config.Scaling.Enabled {
		return
	}

	combined := (usage.CPU.UtilizationPercent + usage.Memory.UtilizationPercent) / 2

	switch {
	case combined >= config.Scaling.ScaleUpThreshold:
		reason := fmt.Sprintf("utilization %.1f%% above scale-up threshold %.1f%%",
			combined, config.Scaling.ScaleUpThreshold)
		if _, err := m.scale(ctx, agentID, models.ScaleUp, "auto", reason, false); suppressQuietNoOps(err) != nil {
			m.logger.Warn("auto scale-up failed",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	case combined <= config.Scaling.ScaleDownThreshold:
		reason := fmt.Sprintf("utilization %.1f%% below scale-down threshold %.1f%%",
			combined, config.Scaling.ScaleDownThreshold)
		if _, err := m.scale(ctx, agentID, models.ScaleDown, "auto", reason, false); suppressQuietNoOps(err) != nil {
			m.logger.Warn("auto scale-down failed",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}
}

// GetAgentConfig returns a copy of the agent's configuration
func (m *Manager) GetAgentConfig(agentID string) (models.AgentResourceConfig, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return models.AgentResourceConfig{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.config, nil
}

// GetAgentUsage returns the most recent usage observation for an agent
func (m *Manager) GetAgentUsage(agentID string) (*models.AgentResourceUsage, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.usage == nil {
		return nil, fmt.Errorf("no usage recorded for agent %s", agentID)
	}
	usage := *state.usage
	return &usage, nil
}

// GetUsageHistory returns up to limit most recent usage observations,
// oldest first. limit <= 0 returns the full retained history.
func (m *Manager) GetUsageHistory(agentID string, limit int) ([]models.AgentResourceUsage, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if limit <= 0 {
		return state.history.Items(), nil
	}
	return state.history.Last(limit), nil
}

// ScalingEvents returns up to limit most recent scaling events, oldest
// first. limit <= 0 returns the full retained history.
func (m *Manager) ScalingEvents(agentID string, limit int) ([]models.ScalingEvent, error) {
	state, err := m.agent(agentID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if limit <= 0 {
		return state.events.Items(), nil
	}
	return state.events.Last(limit), nil
}

// ListAgents returns all registered agent configs, sorted by agent ID
func (m *Manager) ListAgents() []models.AgentResourceConfig {
	m.mu.RLock()
	states := make([]*agentState, 0, len(m.agents))
	for _, state := range m.agents {
		states = append(states, state)
	}
	m.mu.RUnlock()

	configs := make([]models.AgentResourceConfig, 0, len(states))
	for _, state := range states {
		state.mu.Lock()
		configs = append(configs, state.config)
		state.mu.Unlock()
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].AgentID < configs[j].AgentID
	})
	return configs
}

// AgentCount returns the number of registered agents
func (m *Manager) AgentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// Shutdown stops background loops and rejects further registrations
// and scaling. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.healthCancel
	done := m.healthDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.logger.Info("agent manager shut down")
	return nil
}

func (m *Manager) agent(agentID string) (*agentState, error) {
	m.mu.RLock()
	state, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return state, nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) emit(eventType models.EventType, agentID string, payload any) {
	if m.opts.OnEvent == nil {
		return
	}
	m.opts.OnEvent(models.Event{
		Type:      eventType,
		Timestamp: m.now(),
		AgentID:   agentID,
		Payload:   payload,
	})
}

func deriveAgentStatus(usage models.AgentResourceUsage, scaling bool) models.AgentStatus {
	if scaling {
		return models.AgentScaling
	}
	switch {
	case usage.CPU.UtilizationPercent > 95 || usage.Memory.UtilizationPercent > 95:
		return models.AgentUnhealthy
	case usage.CPU.UtilizationPercent > 85 || usage.Memory.UtilizationPercent > 85:
		return models.AgentDegraded
	default:
		return models.AgentHealthy
	}
}

func validateConfig(config *models.AgentResourceConfig) error {
	if config.AgentID == "" {
		return fmt.Errorf("agent ID must not be empty")
	}
	if config.Priority < 1 || config.Priority > 10 {
		return fmt.Errorf("agent %s: priority must be between 1 and 10, got %d",
			config.AgentID, config.Priority)
	}
	if config.CPU.MinMillicores < 0 || config.CPU.MaxMillicores < config.CPU.MinMillicores {
		return fmt.Errorf("agent %s: invalid CPU range [%d, %d]",
			config.AgentID, config.CPU.MinMillicores, config.CPU.MaxMillicores)
	}
	if config.Memory.MinBytes < 0 || config.Memory.MaxBytes < config.Memory.MinBytes {
		return fmt.Errorf("agent %s: invalid memory range [%d, %d]",
			config.AgentID, config.Memory.MinBytes, config.Memory.MaxBytes)
	}
	if config.Scaling.Enabled {
		if config.Scaling.MinReplicas < 1 {
			return fmt.Errorf("agent %s: min replicas must be at least 1", config.AgentID)
		}
		if config.Scaling.MaxReplicas < config.Scaling.MinReplicas {
			return fmt.Errorf("agent %s: max replicas %d below min replicas %d",
				config.AgentID, config.Scaling.MaxReplicas, config.Scaling.MinReplicas)
		}
		if config.Scaling.ScaleDownThreshold >= config.Scaling.ScaleUpThreshold {
			return fmt.Errorf("agent %s: scale-down threshold must be below scale-up threshold",
				config.AgentID)
		}
	}
	if config.QoS == "" {
		config.QoS = models.QoSBurstable
	}
	return nil
}
