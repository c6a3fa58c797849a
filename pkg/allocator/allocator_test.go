package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

func testLimits() models.SystemLimits {
	return models.SystemLimits{
		MaxAgents:       3,
		MaxTotalCPU:     8000,
		MaxTotalMemory:  16 << 30,
		MaxTotalDisk:    100 << 30,
		MaxTotalNetwork: 1000,
	}
}

func request(agentID string, qos models.QoSClass, minCPU, prefCPU int64) models.AllocationRequest {
	return models.AllocationRequest{
		AgentID:   agentID,
		QoS:       qos,
		Minimum:   models.ResourceQuantity{CPUMillicores: minCPU, MemoryBytes: 1 << 30},
		Preferred: models.ResourceQuantity{CPUMillicores: prefCPU, MemoryBytes: 2 << 30},
	}
}

func TestAllocateGrantsAtLeastMinimum(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	result := a.Allocate(request("worker-1", models.QoSBurstable, 1000, 2000))

	require.True(t, result.Allocated)
	require.NotNil(t, result.Allocation)
	assert.NotEmpty(t, result.Allocation.RequestID)
	assert.Equal(t, int64(2000), result.Allocation.Granted.CPUMillicores)
	assert.GreaterOrEqual(t, result.Allocation.Granted.CPUMillicores, int64(1000))
}

func TestBestEffortGetsExactlyMinimum(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	result := a.Allocate(request("worker-1", models.QoSBestEffort, 500, 4000))

	require.True(t, result.Allocated)
	assert.Equal(t, int64(500), result.Allocation.Granted.CPUMillicores)
}

func TestBurstableGrantClampedToAvailable(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	first := a.Allocate(request("worker-1", models.QoSBurstable, 5000, 5000))
	require.True(t, first.Allocated)

	// 3000m left; preferred 4000m must be trimmed, minimum 2000m still honored
	second := a.Allocate(request("worker-2", models.QoSBurstable, 2000, 4000))
	require.True(t, second.Allocated)
	assert.Equal(t, int64(3000), second.Allocation.Granted.CPUMillicores)
}

func TestDenialIsAValueNotAnError(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	result := a.Allocate(request("worker-1", models.QoSGuaranteed, 9000, 9000))

	assert.False(t, result.Allocated)
	assert.Nil(t, result.Allocation)
	assert.Contains(t, result.Reason, "insufficient CPU")
	assert.NotEmpty(t, result.Alternatives)
}

func TestAggregateCapEnforcedAcrossAgents(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	require.True(t, a.Allocate(request("worker-1", models.QoSGuaranteed, 4000, 4000)).Allocated)
	require.True(t, a.Allocate(request("worker-2", models.QoSGuaranteed, 3000, 3000)).Allocated)

	// individually fine, but the aggregate would exceed 8000m
	result := a.Allocate(request("worker-3", models.QoSGuaranteed, 2000, 2000))
	assert.False(t, result.Allocated)
}

func TestMaxAgentsCap(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, a.Allocate(request(id, models.QoSBestEffort, 100, 100)).Allocated)
	}

	result := a.Allocate(request("d", models.QoSBestEffort, 100, 100))
	assert.False(t, result.Allocated)
	assert.Contains(t, result.Reason, "agent limit")

	// a second allocation for an already-admitted agent is still fine
	assert.True(t, a.Allocate(request("a", models.QoSBestEffort, 100, 100)).Allocated)
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	result := a.Allocate(request("worker-1", models.QoSBurstable, 1000, 1000))
	require.True(t, result.Allocated)
	id := result.Allocation.RequestID

	a.Release(id)
	assert.Zero(t, a.Committed().CPUMillicores)

	// releasing again, or releasing garbage, must not panic or change state
	a.Release(id)
	a.Release("never-existed")
	assert.Zero(t, a.Committed().CPUMillicores)
}

func TestExpiredAllocationsReclaimed(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	req := request("worker-1", models.QoSBurstable, 1000, 1000)
	req.TTL = time.Millisecond
	result := a.Allocate(req)
	require.True(t, result.Allocated)

	time.Sleep(5 * time.Millisecond)

	assert.Zero(t, a.Committed().CPUMillicores)
	assert.Empty(t, a.Allocations())
}

func TestImportAllocationsRestoresState(t *testing.T) {
	a := New(zap.NewNop(), testLimits())
	require.True(t, a.Allocate(request("worker-1", models.QoSBurstable, 1000, 1000)).Allocated)

	exported := a.Allocations()

	b := New(zap.NewNop(), testLimits())
	b.ImportAllocations(exported)

	assert.Equal(t, a.Committed(), b.Committed())
	assert.Len(t, b.Allocations(), 1)
}

func TestDuplicateRequestIDRejected(t *testing.T) {
	a := New(zap.NewNop(), testLimits())

	req := request("worker-1", models.QoSBurstable, 100, 100)
	req.RequestID = "fixed-id"
	require.True(t, a.Allocate(req).Allocated)

	dup := a.Allocate(req)
	assert.False(t, dup.Allocated)
	assert.Contains(t, dup.Reason, "already")
}
