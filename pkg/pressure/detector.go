package pressure

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/history"
	"github.com/opscart/agent-resource-manager/pkg/models"
)

// ScorePolicy selects how per-resource pressure combines into one score
type ScorePolicy string

const (
	// ScorePolicyMax takes the single worst resource. Default: one saturated
	// resource must not be diluted by three idle ones.
	ScorePolicyMax ScorePolicy = "max"
	// ScorePolicyWeighted averages resources with fixed weights
	ScorePolicyWeighted ScorePolicy = "weighted"
)

var weightedShares = map[models.ResourceType]float64{
	models.ResourceCPU:     0.4,
	models.ResourceMemory:  0.3,
	models.ResourceDisk:    0.2,
	models.ResourceNetwork: 0.1,
}

// Config configures a Detector
type Config struct {
	Thresholds        Thresholds
	ScorePolicy       ScorePolicy
	Anomaly           AnomalyDetector
	PredictionEnabled bool
	PredictionHorizon time.Duration
	HistorySize       int
	ActionHistorySize int
	AlertSink         AlertSink
	AlertTimeout      time.Duration
}

// Detector classifies resource pressure from metric snapshots. Feed it with
// Process, typically wired to a Monitor subscription.
type Detector struct {
	logger *zap.Logger
	cfg    Config

	mu         sync.Mutex
	prevValues map[models.ResourceType]observation
	hist       *history.Ring[models.PressureStatus]
	scores     *history.Ring[scorePoint]
	actions    []ResponseAction
	actionLast map[string]time.Time
	actionHist *history.Ring[ActionHistoryEntry]
	subs       map[int]func(models.PressureStatus)
	alertSubs  map[int]func(models.PressureAlert)
	nextSubID  int
}

type observation struct {
	value float64
	at    time.Time
}

// New creates a Detector
func New(logger *zap.Logger, cfg Config) *Detector {
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.ScorePolicy == "" {
		cfg.ScorePolicy = ScorePolicyMax
	}
	if cfg.Anomaly == nil {
		cfg.Anomaly = NewStatisticalDetector(20, 3.0)
	}
	if cfg.PredictionHorizon <= 0 {
		cfg.PredictionHorizon = 5 * time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.ActionHistorySize <= 0 {
		cfg.ActionHistorySize = 100
	}
	if cfg.AlertTimeout <= 0 {
		cfg.AlertTimeout = 5 * time.Second
	}
	return &Detector{
		logger:     logger,
		cfg:        cfg,
		prevValues: make(map[models.ResourceType]observation),
		hist:       history.NewRing[models.PressureStatus](cfg.HistorySize),
		scores:     history.NewRing[scorePoint](cfg.HistorySize),
		actionLast: make(map[string]time.Time),
		actionHist: history.NewRing[ActionHistoryEntry](cfg.ActionHistorySize),
		subs:       make(map[int]func(models.PressureStatus)),
		alertSubs:  make(map[int]func(models.PressureAlert)),
	}
}

// Process runs one detection tick over a metrics snapshot and returns the
// resulting status. A resource with no data contributes zero pressure.
func (d *Detector) Process(ctx context.Context, metrics models.ResourceMetrics) models.PressureStatus {
	d.mu.Lock()

	status := models.PressureStatus{
		Timestamp: metrics.Timestamp,
		Level:     models.PressureNone,
		Resources: make(map[models.ResourceType]models.PressureMetric),
	}
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	resources := []models.ResourceType{
		models.ResourceCPU, models.ResourceMemory,
		models.ResourceDisk, models.ResourceNetwork,
	}

	var maxScore, weightedScore float64
	for _, resource := range resources {
		value := metrics.UtilizationFor(resource)
		thresholds := d.cfg.Thresholds[resource]

		rate := 0.0
		if prev, ok := d.prevValues[resource]; ok {
			if dt := status.Timestamp.Sub(prev.at).Seconds(); dt > 0 {
				rate = (value - prev.value) / dt
			}
		}
		d.prevValues[resource] = observation{value: value, at: status.Timestamp}

		anomalous := d.cfg.Anomaly.Observe(resource, value)

		level := thresholds.Classify(value)
		active := thresholds.ActiveThreshold(level)
		pct := 0.0
		if active > 0 {
			pct = value / active * 100
		}

		status.Resources[resource] = models.PressureMetric{
			Value:              value,
			Threshold:          active,
			PercentOfThreshold: pct,
			RateOfChange:       rate,
			Anomalous:          anomalous,
		}

		if level.Severity() > status.Level.Severity() {
			status.Level = level
		}
		if pct > maxScore {
			maxScore = pct
		}
		weightedScore += pct * weightedShares[resource]

		if level != models.PressureNone {
			status.ContributingFactors = append(status.ContributingFactors,
				fmt.Sprintf("%s at %.1f%% (%s)", resource, value, level))
		}
		if anomalous {
			status.ContributingFactors = append(status.ContributingFactors,
				fmt.Sprintf("%s deviates from recent baseline", resource))
		}
	}

	score := maxScore
	if d.cfg.ScorePolicy == ScorePolicyWeighted {
		score = weightedScore
	}
	status.CombinedScore = math.Min(score, 100)

	d.scores.Append(scorePoint{Timestamp: status.Timestamp, Score: status.CombinedScore})
	status.Trend = classifyTrend(d.scores.Last(10))

	if d.cfg.PredictionEnabled {
		status.Prediction = predictScore(d.scores.Items(), d.cfg.PredictionHorizon)
	}

	status.RecommendedActions = recommendedActions(status.Level)

	d.hist.Append(status)

	subs := make([]func(models.PressureStatus), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	var alertSubs []func(models.PressureAlert)
	var alert *models.PressureAlert
	if status.Level.Severity() >= models.PressureHigh.Severity() {
		alert = &models.PressureAlert{
			Timestamp:    status.Timestamp,
			Level:        status.Level,
			PressureType: status.DominantResource(),
			Status:       status,
		}
		for _, fn := range d.alertSubs {
			alertSubs = append(alertSubs, fn)
		}
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
	if alert != nil {
		for _, fn := range alertSubs {
			fn(*alert)
		}
	}

	d.runActions(ctx, status, alert)

	return status
}

// runActions evaluates registered response actions in descending priority,
// honoring per-(level, action) cooldowns. Execution errors are recorded
// in the action history and never propagated.
func (d *Detector) runActions(ctx context.Context, status models.PressureStatus, alert *models.PressureAlert) {
	d.mu.Lock()
	candidates := make([]ResponseAction, 0, len(d.actions))
	now := time.Now()
	for _, action := range d.actions {
		if status.Level.Severity() < action.Trigger.Severity() {
			continue
		}
		key := string(action.Trigger) + "/" + action.Name
		if last, ok := d.actionLast[key]; ok && now.Sub(last) < action.Cooldown {
			continue
		}
		d.actionLast[key] = now
		candidates = append(candidates, action)
	}
	d.mu.Unlock()

	for _, action := range candidates {
		start := time.Now()
		err := d.executeAction(ctx, action, status, alert)

		entry := ActionHistoryEntry{
			ActionName:   action.Name,
			TriggerLevel: action.Trigger,
			Timestamp:    start,
			Duration:     time.Since(start),
			Success:      err == nil,
		}
		if err != nil {
			entry.Error = err.Error()
			d.logger.Warn("response action failed",
				zap.String("action", action.Name), zap.Error(err))
		}

		d.mu.Lock()
		d.actionHist.Append(entry)
		d.mu.Unlock()
	}
}

func (d *Detector) executeAction(ctx context.Context, action ResponseAction, status models.PressureStatus, alert *models.PressureAlert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	switch action.Type {
	case ActionAlert:
		if d.cfg.AlertSink == nil {
			return fmt.Errorf("no alert sink configured")
		}
		payload := models.PressureAlert{
			Timestamp:    status.Timestamp,
			Level:        status.Level,
			PressureType: status.DominantResource(),
			Status:       status,
		}
		if alert != nil {
			payload = *alert
		}
		alertCtx, cancel := context.WithTimeout(ctx, d.cfg.AlertTimeout)
		defer cancel()
		return d.cfg.AlertSink.SendAlert(alertCtx, payload)
	default:
		if action.Execute == nil {
			return fmt.Errorf("action %s has no execute function", action.Name)
		}
		return action.Execute(ctx, status)
	}
}

// RegisterAction adds a response action. Actions are kept sorted by
// descending priority.
func (d *Detector) RegisterAction(action ResponseAction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
	sort.SliceStable(d.actions, func(i, j int) bool {
		return d.actions[i].Priority > d.actions[j].Priority
	})
}

// Subscribe registers a listener for every PressureStatus produced and
// returns an unsubscribe function
func (d *Detector) Subscribe(fn func(models.PressureStatus)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSubID
	d.nextSubID++
	d.subs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// SubscribeAlerts registers a listener invoked for high and critical levels
func (d *Detector) SubscribeAlerts(fn func(models.PressureAlert)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSubID
	d.nextSubID++
	d.alertSubs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.alertSubs, id)
	}
}

// Latest returns the most recent status, if any
func (d *Detector) Latest() (models.PressureStatus, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hist.Latest()
}

// History returns up to limit recent statuses, oldest-first.
// limit <= 0 returns everything retained.
func (d *Detector) History(limit int) []models.PressureStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if limit <= 0 {
		return d.hist.Items()
	}
	return d.hist.Last(limit)
}

// ActionHistory returns recorded action executions, oldest-first
func (d *Detector) ActionHistory() []ActionHistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.actionHist.Items()
}

// classifyTrend inspects recent combined scores. Frequent direction flips
// read as fluctuating; otherwise the overall delta decides.
func classifyTrend(points []scorePoint) models.PressureTrend {
	if len(points) < 3 {
		return models.TrendStable
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Score
	}

	directionChanges := 0
	prevDelta := 0.0
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if math.Abs(delta) < 1 {
			continue
		}
		if prevDelta != 0 && (delta > 0) != (prevDelta > 0) {
			directionChanges++
		}
		prevDelta = delta
	}
	if directionChanges >= len(values)/2 {
		return models.TrendFluctuating
	}

	overall := values[len(values)-1] - values[0]
	switch {
	case overall > 5:
		return models.TrendIncreasing
	case overall < -5:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func recommendedActions(level models.PressureLevel) []string {
	switch level {
	case models.PressureCritical:
		return []string{"trigger emergency scale-down of low-priority agents", "alert operators"}
	case models.PressureHigh:
		return []string{"pause non-essential scale-ups", "review top consumers"}
	case models.PressureModerate:
		return []string{"watch trend before admitting new agents"}
	default:
		return nil
	}
}
