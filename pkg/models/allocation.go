package models

import "time"

// ResourceQuantity bundles the capacity dimensions tracked by the allocator
type ResourceQuantity struct {
	CPUMillicores int64
	MemoryBytes   int64
	DiskBytes     int64
	NetworkMbps   int64
}

// Add returns the component-wise sum of two quantities
func (q ResourceQuantity) Add(other ResourceQuantity) ResourceQuantity {
	return ResourceQuantity{
		CPUMillicores: q.CPUMillicores + other.CPUMillicores,
		MemoryBytes:   q.MemoryBytes + other.MemoryBytes,
		DiskBytes:     q.DiskBytes + other.DiskBytes,
		NetworkMbps:   q.NetworkMbps + other.NetworkMbps,
	}
}

// Sub returns the component-wise difference of two quantities
func (q ResourceQuantity) Sub(other ResourceQuantity) ResourceQuantity {
	return ResourceQuantity{
		CPUMillicores: q.CPUMillicores - other.CPUMillicores,
		MemoryBytes:   q.MemoryBytes - other.MemoryBytes,
		DiskBytes:     q.DiskBytes - other.DiskBytes,
		NetworkMbps:   q.NetworkMbps - other.NetworkMbps,
	}
}

// Fits reports whether q fits entirely within capacity
func (q ResourceQuantity) Fits(capacity ResourceQuantity) bool {
	return q.CPUMillicores <= capacity.CPUMillicores &&
		q.MemoryBytes <= capacity.MemoryBytes &&
		q.DiskBytes <= capacity.DiskBytes &&
		q.NetworkMbps <= capacity.NetworkMbps
}

// AllocationRequest asks the allocator for guaranteed capacity.
// Preferred may exceed Minimum; the grant is never below Minimum.
type AllocationRequest struct {
	RequestID string // assigned when empty
	AgentID   string
	QoS       QoSClass
	Minimum   ResourceQuantity
	Preferred ResourceQuantity
	TTL       time.Duration // zero = no expiry
}

// ResourceAllocation is a committed grant, destroyed on release or expiry
type ResourceAllocation struct {
	RequestID string
	AgentID   string
	QoS       QoSClass
	Granted   ResourceQuantity
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// AllocationResult is the normal return value of Allocate. A denial is not
// an error: Allocated is false and Reason explains why.
type AllocationResult struct {
	Allocated    bool
	Allocation   *ResourceAllocation
	Reason       string
	Alternatives []string
}

// SystemLimits caps aggregate allocations across all agents
type SystemLimits struct {
	MaxAgents       int
	MaxTotalCPU     int64 // millicores
	MaxTotalMemory  int64 // bytes
	MaxTotalDisk    int64 // bytes
	MaxTotalNetwork int64 // Mbps
}

// Capacity returns the limits as an allocatable quantity
func (l SystemLimits) Capacity() ResourceQuantity {
	return ResourceQuantity{
		CPUMillicores: l.MaxTotalCPU,
		MemoryBytes:   l.MaxTotalMemory,
		DiskBytes:     l.MaxTotalDisk,
		NetworkMbps:   l.MaxTotalNetwork,
	}
}
