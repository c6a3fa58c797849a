package models

import "time"

// QoSClass is the guarantee tier governing how aggressively an agent's
// resources can be reclaimed under pressure
type QoSClass string

const (
	QoSGuaranteed QoSClass = "Guaranteed"
	QoSBurstable  QoSClass = "Burstable"
	QoSBestEffort QoSClass = "BestEffort"
)

// AgentStatus is the derived health of a registered agent
type AgentStatus string

const (
	AgentHealthy   AgentStatus = "healthy"
	AgentDegraded  AgentStatus = "degraded"
	AgentUnhealthy AgentStatus = "unhealthy"
	AgentScaling   AgentStatus = "scaling"
)

// CPURange bounds an agent's CPU allocation in millicores
type CPURange struct {
	MinMillicores    int64
	MaxMillicores    int64
	TargetMillicores int64
}

// MemoryRange bounds an agent's memory allocation in bytes
type MemoryRange struct {
	MinBytes    int64
	MaxBytes    int64
	TargetBytes int64
}

// ScalingPolicy controls the per-agent autoscaling loop
type ScalingPolicy struct {
	Enabled            bool
	MinReplicas        int32
	MaxReplicas        int32
	ScaleUpThreshold   float64 // percent utilization
	ScaleDownThreshold float64
	ScaleUpCooldown    time.Duration
	ScaleDownCooldown  time.Duration
}

// HealthCheckPolicy controls periodic per-agent health evaluation
type HealthCheckPolicy struct {
	Enabled            bool
	Interval           time.Duration
	FailureThreshold   int
	CPULimitPercent    float64
	MemoryLimitPercent float64
}

// AgentResourceConfig is set at registration. AgentID is immutable identity;
// all other fields may be updated in place.
type AgentResourceConfig struct {
	AgentID     string
	AgentType   string
	QoS         QoSClass
	CPU         CPURange
	Memory      MemoryRange
	Priority    int // 1-10, lower = sacrificed first under pressure
	Scaling     ScalingPolicy
	HealthCheck HealthCheckPolicy
}

// CPUUsage is an agent's CPU consumption against its limit
type CPUUsage struct {
	UsedMillicores     int64
	UtilizationPercent float64
	LimitMillicores    int64
}

// MemoryUsage is an agent's memory consumption against its limit
type MemoryUsage struct {
	UsedBytes          int64
	UtilizationPercent float64
	LimitBytes         int64
}

// ReplicaStatus tracks an agent's replica counts
type ReplicaStatus struct {
	Current int32
	Desired int32
	Healthy int32
}

// AgentResourceUsage is the latest observed usage for an agent.
// The manager keeps the latest value plus a bounded history.
type AgentResourceUsage struct {
	AgentID   string
	Timestamp time.Time
	CPU       CPUUsage
	Memory    MemoryUsage
	Replicas  ReplicaStatus
	Status    AgentStatus
}

// ScalingEventType distinguishes scaling directions
type ScalingEventType string

const (
	ScaleUp   ScalingEventType = "scale_up"
	ScaleDown ScalingEventType = "scale_down"
)

// ScalingEvent is an append-only audit record of one scaling attempt
type ScalingEvent struct {
	ID           string
	AgentID      string
	Timestamp    time.Time
	Type         ScalingEventType
	Trigger      string // e.g. "auto", "manual", "emergency"
	FromReplicas int32
	ToReplicas   int32
	Reason       string
	Duration     time.Duration
	Success      bool
	Error        string
}

// HealthCheckType identifies one dimension of a health evaluation
type HealthCheckType string

const (
	CheckCPU      HealthCheckType = "cpu"
	CheckMemory   HealthCheckType = "memory"
	CheckReplicas HealthCheckType = "replicas"
)

// HealthCheck is the outcome of a single check
type HealthCheck struct {
	Type      HealthCheckType
	Passing   bool
	Value     float64
	Threshold float64
	Message   string
}

// AgentHealthStatus aggregates the most recent health evaluation
type AgentHealthStatus struct {
	AgentID             string
	Status              AgentStatus
	Checks              []HealthCheck
	LastHealthyTime     time.Time
	ConsecutiveFailures int
}
