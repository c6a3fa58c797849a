package pressure

import (
	"context"
	"time"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// ActionType distinguishes built-in action behaviors
type ActionType string

const (
	// ActionAlert forwards a structured alert to the configured AlertSink
	ActionAlert ActionType = "alert"
	// ActionCustom runs the caller-supplied Execute function
	ActionCustom ActionType = "custom"
)

// AlertSink receives alert payloads from alert-type response actions.
// Delivery is attempt-once per trigger; failures are recorded, not retried.
type AlertSink interface {
	SendAlert(ctx context.Context, alert models.PressureAlert) error
}

// ResponseAction is evaluated on every detection tick whose level reaches
// Trigger. Actions run in descending Priority order, at most once per
// (trigger level, action) pair within Cooldown.
type ResponseAction struct {
	Name     string
	Type     ActionType
	Trigger  models.PressureLevel
	Priority int
	Cooldown time.Duration
	Execute  func(ctx context.Context, status models.PressureStatus) error
}

// ActionHistoryEntry records one action execution attempt
type ActionHistoryEntry struct {
	ActionName   string
	TriggerLevel models.PressureLevel
	Timestamp    time.Time
	Duration     time.Duration
	Success      bool
	Error        string
}
