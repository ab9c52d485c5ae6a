package staging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/staging"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func TestAllocate_ReturnsFreeSlot(t *testing.T) {
	a := staging.New(2, func(int) bool { return true }, func(int) error { return nil })

	idx := a.Allocate("ticket-1", fabric.StagingOutput, false)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, fabric.StagingOutput, a.Get(idx).State)
	assert.Equal(t, "ticket-1", a.Get(idx).Ticket)
}

func TestAllocate_SkipsSlotsWithoutAFreeWorkerWhenNeeded(t *testing.T) {
	workerAt := map[int]bool{0: false, 1: true}
	a := staging.New(2, func(i int) bool { return workerAt[i] }, func(int) error { return nil })

	idx := a.Allocate("ticket-1", fabric.StagingOutput, true)
	assert.Equal(t, 1, idx)
}

func TestAllocate_ReturnsMinusOneWhenNothingFreeOrFlushable(t *testing.T) {
	a := staging.New(1, func(int) bool { return true }, func(int) error { return nil })
	a.Allocate("ticket-1", fabric.StagingOutput, false)

	idx := a.Allocate("ticket-2", fabric.StagingOutput, false)
	assert.Equal(t, -1, idx)
}

func TestAllocate_FlushesAnInputSlotWhenNothingFree(t *testing.T) {
	flushed := false
	a := staging.New(1, func(int) bool { return true }, func(int) error { flushed = true; return nil })

	first := a.Allocate("ticket-1", fabric.StagingOutput, false)
	a.MarkInput(first)

	second := a.Allocate("ticket-2", fabric.StagingOutput, false)
	assert.Equal(t, first, second)
	assert.True(t, flushed)
	assert.Equal(t, "ticket-2", a.Get(second).Ticket)
}
