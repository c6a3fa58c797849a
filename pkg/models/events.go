package models

import "time"

// EventType labels entries on the unified event stream
type EventType string

const (
	EventAgentRegistered    EventType = "agent-registered"
	EventAgentUnregistered  EventType = "agent-unregistered"
	EventAgentUsageUpdated  EventType = "agent-usage-updated"
	EventAgentScaledUp      EventType = "agent-scaled-up"
	EventAgentScaledDown    EventType = "agent-scaled-down"
	EventAgentScalingFailed EventType = "agent-scaling-failed"
	EventAgentUnhealthy     EventType = "agent-unhealthy"
	EventMonitorOffline     EventType = "monitor-offline"
	EventPressureAlert      EventType = "pressure-alert"
	EventAllocationGranted  EventType = "allocation-granted"
	EventAllocationReleased EventType = "allocation-released"
)

// Event is one entry on the unified event stream
type Event struct {
	Type      EventType
	Timestamp time.Time
	AgentID   string // empty for system-wide events
	Payload   any
}
