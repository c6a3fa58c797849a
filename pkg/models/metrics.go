package models

import "time"

// ResourceType identifies a monitored resource dimension
type ResourceType string

const (
	ResourceCPU     ResourceType = "cpu"
	ResourceMemory  ResourceType = "memory"
	ResourceDisk    ResourceType = "disk"
	ResourceNetwork ResourceType = "network"
)

// ResourceStatus is the derived health of the sampled system
type ResourceStatus string

const (
	StatusHealthy    ResourceStatus = "healthy"
	StatusDegraded   ResourceStatus = "degraded"
	StatusOverloaded ResourceStatus = "overloaded"
	StatusOffline    ResourceStatus = "offline"
)

// CPUMetrics holds a point-in-time CPU reading
type CPUMetrics struct {
	UsagePercent float64
	Cores        int
	LoadAverage  float64
}

// MemoryMetrics holds a point-in-time memory reading (bytes)
type MemoryMetrics struct {
	UsedBytes      int64
	TotalBytes     int64
	AvailableBytes int64
}

// UtilizationPercent returns used/total as a percentage
func (m MemoryMetrics) UtilizationPercent() float64 {
	if m.TotalBytes <= 0 {
		return 0
	}
	return float64(m.UsedBytes) / float64(m.TotalBytes) * 100.0
}

// DiskMetrics holds a point-in-time disk reading (bytes)
type DiskMetrics struct {
	UsedBytes      int64
	TotalBytes     int64
	AvailableBytes int64
	IOPS           float64
}

// UtilizationPercent returns used/total as a percentage
func (d DiskMetrics) UtilizationPercent() float64 {
	if d.TotalBytes <= 0 {
		return 0
	}
	return float64(d.UsedBytes) / float64(d.TotalBytes) * 100.0
}

// NetworkMetrics holds a point-in-time network reading
type NetworkMetrics struct {
	LatencyMillis float64
	BandwidthMbps float64
	UtilizedMbps  float64
	BytesIn       int64
	BytesOut      int64
}

// UtilizationPercent returns utilized/bandwidth as a percentage
func (n NetworkMetrics) UtilizationPercent() float64 {
	if n.BandwidthMbps <= 0 {
		return 0
	}
	return n.UtilizedMbps / n.BandwidthMbps * 100.0
}

// GPUMetrics holds a point-in-time reading for a single GPU.
// Absent entirely on hosts without GPUs.
type GPUMetrics struct {
	Index            int
	Name             string
	UsagePercent     float64
	MemoryUsedBytes  int64
	MemoryTotalBytes int64
}

// ResourceMetrics is an immutable snapshot produced once per sampling tick.
// Consumers must treat it as read-only.
type ResourceMetrics struct {
	Timestamp time.Time
	CPU       CPUMetrics
	Memory    MemoryMetrics
	Disk      DiskMetrics
	Network   NetworkMetrics
	GPUs      []GPUMetrics
	Status    ResourceStatus
}

// UtilizationFor returns the utilization percentage for a resource type.
// A resource with no data reports zero.
func (r ResourceMetrics) UtilizationFor(resource ResourceType) float64 {
	switch resource {
	case ResourceCPU:
		return r.CPU.UsagePercent
	case ResourceMemory:
		return r.Memory.UtilizationPercent()
	case ResourceDisk:
		return r.Disk.UtilizationPercent()
	case ResourceNetwork:
		return r.Network.UtilizationPercent()
	default:
		return 0
	}
}
