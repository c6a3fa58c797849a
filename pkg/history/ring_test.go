package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingAppendBelowCapacity(t *testing.T) {
	r := NewRing[int](5)

	r.Append(1)
	r.Append(2)
	r.Append(3)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 5, r.Cap())
	assert.Equal(t, []int{1, 2, 3}, r.Items())
}

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[int](3)

	for i := 1; i <= 5; i++ {
		r.Append(i)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Items())
}

func TestRingLast(t *testing.T) {
	r := NewRing[int](4)
	for i := 1; i <= 6; i++ {
		r.Append(i)
	}

	assert.Equal(t, []int{5, 6}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5, 6}, r.Last(10))
	assert.Nil(t, r.Last(0))
}

func TestRingLatest(t *testing.T) {
	r := NewRing[string](2)

	_, ok := r.Latest()
	assert.False(t, ok)

	r.Append("a")
	r.Append("b")
	r.Append("c")

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, "c", latest)
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Append(1)
	r.Append(2)

	assert.Equal(t, 1, r.Cap())
	assert.Equal(t, []int{2}, r.Items())
}
