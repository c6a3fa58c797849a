package allocator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// Allocator performs admission control against system-wide capacity limits.
// Denials are normal return values, not errors: the common
// insufficient-capacity path needs no error handling.
type Allocator struct {
	logger *zap.Logger
	limits models.SystemLimits

	mu          sync.Mutex
	allocations map[string]*models.ResourceAllocation
}

// New creates an Allocator enforcing the given limits
func New(logger *zap.Logger, limits models.SystemLimits) *Allocator {
	return &Allocator{
		logger:      logger,
		limits:      limits,
		allocations: make(map[string]*models.ResourceAllocation),
	}
}

// Allocate services one request. The grant is never below the stated
// minimum and may be below the preferred amount depending on QoS and
// remaining capacity. Aggregate commitments never exceed the system limits,
// regardless of any single agent's own limits.
func (a *Allocator) Allocate(req models.AllocationRequest) models.AllocationResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reclaimExpiredLocked()

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if _, exists := a.allocations[req.RequestID]; exists {
		return models.AllocationResult{
			Allocated: false,
			Reason:    fmt.Sprintf("request %s already has a live allocation", req.RequestID),
		}
	}

	if a.limits.MaxAgents > 0 && !a.agentKnownLocked(req.AgentID) && a.agentCountLocked() >= a.limits.MaxAgents {
		return models.AllocationResult{
			Allocated:    false,
			Reason:       fmt.Sprintf("agent limit reached (%d)", a.limits.MaxAgents),
			Alternatives: []string{"release allocations of retired agents"},
		}
	}

	available := a.limits.Capacity().Sub(a.committedLocked())
	if !req.Minimum.Fits(available) {
		return models.AllocationResult{
			Allocated:    false,
			Reason:       denialReason(req.Minimum, available),
			Alternatives: alternatives(req.Minimum, available),
		}
	}

	granted := grantFor(req, available)

	allocation := &models.ResourceAllocation{
		RequestID: req.RequestID,
		AgentID:   req.AgentID,
		QoS:       req.QoS,
		Granted:   granted,
		CreatedAt: time.Now(),
	}
	if req.TTL > 0 {
		expires := allocation.CreatedAt.Add(req.TTL)
		allocation.ExpiresAt = &expires
	}
	a.allocations[req.RequestID] = allocation

	a.logger.Debug("allocation granted",
		zap.String("request_id", req.RequestID),
		zap.String("agent_id", req.AgentID),
		zap.Int64("cpu_millicores", granted.CPUMillicores),
		zap.Int64("memory_bytes", granted.MemoryBytes))

	copy := *allocation
	return models.AllocationResult{Allocated: true, Allocation: &copy}
}

// grantFor sizes the grant by QoS: BestEffort gets exactly the minimum,
// Burstable gets as much of preferred as fits, Guaranteed gets the full
// preferred amount (its minimum was already checked; preferred falls back
// to minimum when capacity is short).
func grantFor(req models.AllocationRequest, available models.ResourceQuantity) models.ResourceQuantity {
	preferred := req.Preferred
	if (preferred == models.ResourceQuantity{}) {
		preferred = req.Minimum
	}

	switch req.QoS {
	case models.QoSBestEffort:
		return req.Minimum
	default:
		granted := models.ResourceQuantity{
			CPUMillicores: clampInt64(preferred.CPUMillicores, req.Minimum.CPUMillicores, available.CPUMillicores),
			MemoryBytes:   clampInt64(preferred.MemoryBytes, req.Minimum.MemoryBytes, available.MemoryBytes),
			DiskBytes:     clampInt64(preferred.DiskBytes, req.Minimum.DiskBytes, available.DiskBytes),
			NetworkMbps:   clampInt64(preferred.NetworkMbps, req.Minimum.NetworkMbps, available.NetworkMbps),
		}
		return granted
	}
}

func clampInt64(preferred, minimum, available int64) int64 {
	v := preferred
	if v > available {
		v = available
	}
	if v < minimum {
		v = minimum
	}
	return v
}

// Release frees previously committed capacity. Idempotent: releasing an
// unknown or already-released id is a no-op.
func (a *Allocator) Release(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reclaimExpiredLocked()

	if _, ok := a.allocations[requestID]; ok {
		delete(a.allocations, requestID)
		a.logger.Debug("allocation released", zap.String("request_id", requestID))
	}
}

// Committed returns the aggregate committed quantities
func (a *Allocator) Committed() models.ResourceQuantity {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimExpiredLocked()
	return a.committedLocked()
}

// Available returns the capacity still open for admission
func (a *Allocator) Available() models.ResourceQuantity {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimExpiredLocked()
	return a.limits.Capacity().Sub(a.committedLocked())
}

// Allocations lists live allocations
func (a *Allocator) Allocations() []models.ResourceAllocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimExpiredLocked()

	out := make([]models.ResourceAllocation, 0, len(a.allocations))
	for _, alloc := range a.allocations {
		out = append(out, *alloc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestID < out[j].RequestID
	})
	return out
}

// Limits returns the configured system limits
func (a *Allocator) Limits() models.SystemLimits {
	return a.limits
}

// ImportAllocations restores previously exported allocations, replacing
// current state. Used by the facade's state import.
func (a *Allocator) ImportAllocations(allocations []models.ResourceAllocation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.allocations = make(map[string]*models.ResourceAllocation, len(allocations))
	for i := range allocations {
		alloc := allocations[i]
		a.allocations[alloc.RequestID] = &alloc
	}
}

func (a *Allocator) committedLocked() models.ResourceQuantity {
	var total models.ResourceQuantity
	for _, alloc := range a.allocations {
		total = total.Add(alloc.Granted)
	}
	return total
}

func (a *Allocator) agentCountLocked() int {
	agents := make(map[string]struct{})
	for _, alloc := range a.allocations {
		agents[alloc.AgentID] = struct{}{}
	}
	return len(agents)
}

func (a *Allocator) agentKnownLocked(agentID string) bool {
	for _, alloc := range a.allocations {
		if alloc.AgentID == agentID {
			return true
		}
	}
	return false
}

// reclaimExpiredLocked lazily drops allocations past their expiry
func (a *Allocator) reclaimExpiredLocked() {
	now := time.Now()
	for id, alloc := range a.allocations {
		if alloc.ExpiresAt != nil && now.After(*alloc.ExpiresAt) {
			delete(a.allocations, id)
			a.logger.Debug("allocation expired", zap.String("request_id", id))
		}
	}
}

func denialReason(minimum, available models.ResourceQuantity) string {
	switch {
	case minimum.CPUMillicores > available.CPUMillicores:
		return fmt.Sprintf("insufficient CPU: requested %dm minimum, %dm available",
			minimum.CPUMillicores, available.CPUMillicores)
	case minimum.MemoryBytes > available.MemoryBytes:
		return fmt.Sprintf("insufficient memory: requested %d bytes minimum, %d available",
			minimum.MemoryBytes, available.MemoryBytes)
	case minimum.DiskBytes > available.DiskBytes:
		return fmt.Sprintf("insufficient disk: requested %d bytes minimum, %d available",
			minimum.DiskBytes, available.DiskBytes)
	default:
		return fmt.Sprintf("insufficient network: requested %d Mbps minimum, %d available",
			minimum.NetworkMbps, available.NetworkMbps)
	}
}

func alternatives(minimum, available models.ResourceQuantity) []string {
	var out []string
	if minimum.CPUMillicores > available.CPUMillicores && available.CPUMillicores > 0 {
		out = append(out, fmt.Sprintf("retry with cpu minimum <= %dm", available.CPUMillicores))
	}
	if minimum.MemoryBytes > available.MemoryBytes && available.MemoryBytes > 0 {
		out = append(out, fmt.Sprintf("retry with memory minimum <= %d bytes", available.MemoryBytes))
	}
	out = append(out, "release unused allocations or wait for expiries")
	return out
}
