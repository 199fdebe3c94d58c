package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourcesFits(t *testing.T) {
	capacity := Resources{CPUMillis: 2000, MemoryMB: 4096}

	assert.True(t, capacity.Fits(Resources{CPUMillis: 2000, MemoryMB: 4096}))
	assert.True(t, capacity.Fits(Resources{CPUMillis: 100, MemoryMB: 128}))
	assert.True(t, capacity.Fits(Resources{}), "zero requests fit anywhere")
	assert.False(t, capacity.Fits(Resources{CPUMillis: 2001, MemoryMB: 1}))
	assert.False(t, capacity.Fits(Resources{CPUMillis: 1, MemoryMB: 4097}))
}

func TestResourcesSubtractSaturates(t *testing.T) {
	small := Resources{CPUMillis: 100, MemoryMB: 128}
	big := Resources{CPUMillis: 500, MemoryMB: 512}

	diff := big.Subtract(small)
	assert.Equal(t, Resources{CPUMillis: 400, MemoryMB: 384}, diff)

	// Subtracting past zero clamps instead of wrapping.
	assert.Equal(t, Resources{}, small.Subtract(big))
}

func TestResourcesAdd(t *testing.T) {
	sum := Resources{CPUMillis: 100, MemoryMB: 128}.Add(Resources{CPUMillis: 200, MemoryMB: 256})
	assert.Equal(t, Resources{CPUMillis: 300, MemoryMB: 384}, sum)
}

func TestPodActive(t *testing.T) {
	tests := []struct {
		status PodStatus
		active bool
	}{
		{PodStatusPending, true},
		{PodStatusScheduled, true},
		{PodStatusRunning, true},
		{PodStatusTerminating, false},
		{PodStatusTerminated, false},
		{PodStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			p := Pod{Status: tt.status}
			assert.Equal(t, tt.active, p.Active())
		})
	}
}

func TestPodStatusTerminal(t *testing.T) {
	assert.True(t, PodStatusTerminated.Terminal())
	assert.True(t, PodStatusFailed.Terminal())
	assert.False(t, PodStatusTerminating.Terminal())
	assert.False(t, PodStatusRunning.Terminal())
}

func TestNodeWithUsageFree(t *testing.T) {
	nu := NodeWithUsage{
		Node: Node{Capacity: Resources{CPUMillis: 4000, MemoryMB: 8192}},
		Used: Resources{CPUMillis: 1500, MemoryMB: 2048},
	}
	assert.Equal(t, Resources{CPUMillis: 2500, MemoryMB: 6144}, nu.Free())
}
